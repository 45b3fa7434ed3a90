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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/registry"
)

// setFlags collects repeated -set key=value flags.
type setFlags []string

func (s *setFlags) String() string { return strings.Join(*s, ",") }

func (s *setFlags) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var sets setFlags
	configPath := flag.String("config", "", "Path of a YAML configuration file.")
	spec := flag.Bool("spec", false, "Print the specification of all parameters and exit.")
	logLevel := flag.String("log-level", "", "Log level, overrides log_level.")
	flag.Var(&sets, "set", "Set a configuration key, e.g. -set destination=postgres. Can be repeated.")
	flag.Parse()

	c := registry.Connector()
	if *spec {
		if err := c.Specification().Write(os.Stdout); err != nil {
			fatal(err)
		}
		return
	}

	if *logLevel != "" {
		sets = append(sets, connector.ConfigLogLevel+"="+*logLevel)
	}
	cfg, err := connector.LoadConfig(*configPath, os.Environ(), sets)
	if err != nil {
		fatal(err)
	}
	cfg = connector.ApplyDefaults(connector.ServiceParameters(c), cfg)

	logger := connector.NewLogger(os.Stderr, connector.ParseLogLevel(cfg[connector.ConfigLogLevel]), cfg[connector.ConfigLogFormat])
	ctx := logger.WithContext(context.Background())

	a, err := c.Assemble(ctx, cfg)
	if err != nil {
		fatal(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	health := connector.NewHealthServer(reg)
	p := connector.NewPipeline(a.Source, a.Destination, a.Config.PipelineConfig(),
		connector.WithMetrics(connector.NewMetrics(reg)),
		connector.WithHealthServer(health),
	)

	logger.Info().
		Str("source", cfg[connector.ConfigSource]).
		Str("destination", cfg[connector.ConfigDestination]).
		Str("table", a.Config.TargetTable).
		Msg("starting solarsink")
	connector.Serve(ctx, p, connector.ServeConfig{
		MetricsAddress: cfg[connector.ConfigMetricsAddress],
		Health:         health,
	})
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
