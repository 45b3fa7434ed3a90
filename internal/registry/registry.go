// Copyright © 2024 Meroxa, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry lists the sources and stores the solarsink binary is built
// with.
package registry

import (
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/source/generator"
	kafkasource "github.com/quixio/demo-solar-farm-data-generator-sub001/source/kafka"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/store/clickhouse"
	kafkastore "github.com/quixio/demo-solar-farm-data-generator-sub001/store/kafka"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/store/postgres"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/store/questdb"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/store/spanner"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/store/sqlite"
)

// Version is set at build time with -ldflags "-X ...registry.Version=v1.2.3".
var Version = "v0.0.0-dev"

func Specification() connector.Specification {
	return connector.Specification{
		Name:    "solarsink",
		Summary: "Delivers solar farm readings from a stream into a time series store.",
		Description: "solarsink reads panel readings from Kafka or a built-in generator, " +
			"decodes them according to a schema and writes them to the configured store " +
			"in batches, with bounded retries and backpressure.",
		Version: Version,
		Author:  "Quix",
	}
}

func Connector() connector.Connector {
	return connector.Connector{
		NewSpecification: Specification,
		Sources: []connector.SourceConnector{
			generator.Connector(),
			kafkasource.Connector(),
		},
		Stores: []connector.StoreConnector{
			clickhouse.Connector(),
			kafkastore.Connector(),
			postgres.Connector(),
			questdb.Connector(),
			spanner.Connector(),
			sqlite.Connector(),
		},
	}
}
