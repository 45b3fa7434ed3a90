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

package connector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

const (
	ConfigSource         = "source"
	ConfigDestination    = "destination"
	ConfigLogLevel       = "log_level"
	ConfigLogFormat      = "log_format"
	ConfigMetricsAddress = "metrics_address"
)

// StoreConnector describes a Store implementation and how to build it.
type StoreConnector struct {
	// Name selects the store with the "destination" setting.
	Name string
	// Summary is a one line description used in the specification.
	Summary string
	// Parameters declares the settings the store reads. Keys are expected to
	// be prefixed with the store name.
	Parameters func() Parameters
	// New builds the store from the full configuration. The core settings
	// and the row schema are passed along.
	New func(ctx context.Context, core Config, s schema.Schema, cfg map[string]string) (Store, error)
}

// SourceConnector describes a Source implementation and how to build it.
type SourceConnector struct {
	Name       string
	Summary    string
	Parameters func() Parameters
	New        func(ctx context.Context, cfg map[string]string) (Source, error)
}

// Connector combines the available sources and stores into one sink
// service.
type Connector struct {
	// NewSpecification should create a new Specification that describes the
	// service. Components are filled in by Specification.
	NewSpecification func() Specification
	Sources          []SourceConnector
	Stores           []StoreConnector
}

// ServiceParameters declares the settings that select components and
// configure the process itself.
func ServiceParameters(c Connector) Parameters {
	return Parameters{
		ConfigSource: {
			Default:     firstName(sourceNames(c)),
			Description: "Source the records are read from.",
			Type:        ParameterTypeString,
			Validations: []Validation{ValidationInclusion{List: sourceNames(c)}},
		},
		ConfigDestination: {
			Description: "Store the records are written to.",
			Type:        ParameterTypeString,
			Validations: []Validation{
				ValidationRequired{},
				ValidationInclusion{List: storeNames(c)},
			},
		},
		ConfigLogLevel: {
			Default:     "info",
			Description: "Log level (trace, debug, info, warn, error).",
			Type:        ParameterTypeString,
			Validations: []Validation{ValidationInclusion{List: []string{"trace", "debug", "info", "warn", "error"}}},
		},
		ConfigLogFormat: {
			Default:     "json",
			Description: "Log output format (json or console).",
			Type:        ParameterTypeString,
			Validations: []Validation{ValidationInclusion{List: []string{"json", "console"}}},
		},
		ConfigMetricsAddress: {
			Description: "Listen address of the /metrics, /healthz and /readyz endpoints. Empty disables them.",
			Type:        ParameterTypeString,
		},
	}
}

// Specification returns the specification of the service including the
// parameters of every component.
func (c Connector) Specification() Specification {
	var spec Specification
	if c.NewSpecification != nil {
		spec = c.NewSpecification()
	}
	spec.Components = make(map[string]Parameters, len(c.Sources)+len(c.Stores)+2)
	spec.Components["service"] = ServiceParameters(c)
	spec.Components["core"] = CoreParameters()
	for _, s := range c.Sources {
		spec.Components["source."+s.Name] = s.Parameters()
	}
	for _, s := range c.Stores {
		spec.Components["destination."+s.Name] = s.Parameters()
	}
	return spec
}

// Store returns the store connector with the given name.
func (c Connector) Store(name string) (StoreConnector, error) {
	for _, s := range c.Stores {
		if s.Name == name {
			return s, nil
		}
	}
	return StoreConnector{}, fmt.Errorf("unknown destination %q (available: %v)", name, storeNames(c))
}

// Source returns the source connector with the given name.
func (c Connector) Source(name string) (SourceConnector, error) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, nil
		}
	}
	return SourceConnector{}, fmt.Errorf("unknown source %q (available: %v)", name, sourceNames(c))
}

// Assembled holds the components built from a configuration.
type Assembled struct {
	Config      Config
	Source      Source
	Destination Destination
	Sink        *Sink
}

// Assemble validates cfg and builds the source, the store and the sink
// wrapped in the configured middleware.
func (c Connector) Assemble(ctx context.Context, cfg map[string]string) (Assembled, error) {
	svc := ServiceParameters(c)
	cfg = ApplyDefaults(svc, cfg)
	if err := svc.Validate(cfg); err != nil {
		return Assembled{}, fmt.Errorf("invalid configuration: %w", err)
	}

	core, err := ParseCoreConfig(cfg)
	if err != nil {
		return Assembled{}, err
	}
	sch, err := core.Schema.Build()
	if err != nil {
		return Assembled{}, fmt.Errorf("invalid schema: %w", err)
	}

	sc, err := c.Source(cfg[ConfigSource])
	if err != nil {
		return Assembled{}, err
	}
	dc, err := c.Store(cfg[ConfigDestination])
	if err != nil {
		return Assembled{}, err
	}

	src, err := sc.New(ctx, cfg)
	if err != nil {
		return Assembled{}, fmt.Errorf("failed to create source %s: %w", sc.Name, err)
	}
	store, err := dc.New(ctx, core, sch, cfg)
	if err != nil {
		closeCtx, cancel := context.WithTimeout(ctx, defaultCloseTimeout)
		defer cancel()
		if closeErr := src.Close(closeCtx); closeErr != nil {
			Logger(ctx).Warn().Err(closeErr).Msg("failed to close source")
		}
		return Assembled{}, fmt.Errorf("failed to create destination %s: %w", dc.Name, err)
	}

	opts := []SinkOption{WithRetryPolicy(core.RetryPolicy())}
	sink := NewSink(store, NewSchemaDecoder(sch), opts...)

	return Assembled{
		Config:      core,
		Source:      SourceWithMiddleware(src, core.SourceMiddleware()...),
		Destination: DestinationWithMiddleware(sink, core.Middleware()...),
		Sink:        sink,
	}, nil
}

func storeNames(c Connector) []string {
	names := make([]string, 0, len(c.Stores))
	for _, s := range c.Stores {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

func sourceNames(c Connector) []string {
	names := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// defaultCloseTimeout bounds closing a source that was built for a service
// that failed to assemble.
const defaultCloseTimeout = 10 * time.Second
