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
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

const (
	ConfigBufferSize         = "buffer_size"
	ConfigBufferTimeout      = "buffer_timeout"
	ConfigTargetTable        = "target_table"
	ConfigRetryCount         = "retry_count"
	ConfigRetryDelay         = "retry_delay"
	ConfigRetryMaxDelay      = "retry_max_delay"
	ConfigRetryBackoffFactor = "retry_backoff_factor"
	ConfigBackpressureDelay  = "backpressure_delay"
	ConfigShutdownTimeout    = "shutdown_timeout"
	ConfigRatePerSecond      = "rate_per_second"
	ConfigRateBurst          = "rate_burst"

	ConfigSchemaPreset     = "schema.preset"
	ConfigSchemaColumns    = "schema.columns"
	ConfigSchemaTimePath   = "schema.time_path"
	ConfigSchemaTimeColumn = "schema.time_column"
	ConfigSchemaTimeUnit   = "schema.time_unit"
	ConfigSchemaKey        = "schema.key"
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config holds the settings shared by every sink, independent of the store.
type Config struct {
	BufferSize         int           `mapstructure:"buffer_size"`
	BufferTimeout      time.Duration `mapstructure:"buffer_timeout"`
	TargetTable        string        `mapstructure:"target_table"`
	RetryCount         int           `mapstructure:"retry_count"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
	RetryBackoffFactor float64       `mapstructure:"retry_backoff_factor"`
	BackpressureDelay  time.Duration `mapstructure:"backpressure_delay"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RatePerSecond      float64       `mapstructure:"rate_per_second"`
	RateBurst          int           `mapstructure:"rate_burst"`

	Schema SchemaConfig `mapstructure:",squash"`
}

// SchemaConfig describes the record schema in configuration form.
type SchemaConfig struct {
	Preset     string `mapstructure:"schema.preset"`
	Columns    string `mapstructure:"schema.columns"`
	TimePath   string `mapstructure:"schema.time_path"`
	TimeColumn string `mapstructure:"schema.time_column"`
	TimeUnit   string `mapstructure:"schema.time_unit"`
	Key        string `mapstructure:"schema.key"`
}

// CoreParameters returns the declarations of the settings in Config.
func CoreParameters() Parameters {
	return Parameters{
		ConfigBufferSize: {
			Default:     "1000",
			Description: "Maximum number of records buffered per partition before a batch is written.",
			Type:        ParameterTypeInt,
			Validations: []Validation{ValidationGreaterThan{Value: 0}},
		},
		ConfigBufferTimeout: {
			Default:     "1s",
			Description: "Maximum time a record waits in the buffer before its batch is written. Plain numbers are seconds.",
			Type:        ParameterTypeDuration,
		},
		ConfigTargetTable: {
			Default:     "solar_readings",
			Description: "Name of the table (or measurement) rows are written to. May be schema qualified.",
			Type:        ParameterTypeString,
			Validations: []Validation{ValidationRegex{Regex: tableNameRegex}},
		},
		ConfigRetryCount: {
			Default:     "3",
			Description: "Total number of write attempts per batch for transient failures.",
			Type:        ParameterTypeInt,
			Validations: []Validation{ValidationGreaterThan{Value: 0}},
		},
		ConfigRetryDelay: {
			Default:     "1s",
			Description: "Delay after the first failed attempt.",
			Type:        ParameterTypeDuration,
		},
		ConfigRetryMaxDelay: {
			Default:     "30s",
			Description: "Upper bound of the delay between attempts.",
			Type:        ParameterTypeDuration,
		},
		ConfigRetryBackoffFactor: {
			Default:     "1",
			Description: "Multiplier applied to the delay after each attempt. 1 means a fixed delay.",
			Type:        ParameterTypeFloat,
			Validations: []Validation{ValidationGreaterThan{Value: 0}},
		},
		ConfigBackpressureDelay: {
			Default:     "10s",
			Description: "Pause applied to a partition when the store signals overload without a hint.",
			Type:        ParameterTypeDuration,
		},
		ConfigShutdownTimeout: {
			Default:     "30s",
			Description: "Time allowed to flush buffered records on shutdown.",
			Type:        ParameterTypeDuration,
		},
		ConfigRatePerSecond: {
			Default:     "0",
			Description: "Maximum number of batch writes per second. 0 disables rate limiting.",
			Type:        ParameterTypeFloat,
		},
		ConfigRateBurst: {
			Default:     "1",
			Description: "Number of batch writes allowed to exceed the rate.",
			Type:        ParameterTypeInt,
		},
		ConfigSchemaPreset: {
			Description: "Name of a built-in schema (solar_panel). Explicit schema settings override it.",
			Type:        ParameterTypeString,
		},
		ConfigSchemaColumns: {
			Description: "Comma separated column list, e.g. panel_id:string,temperature:float,location.lat=>lat:float?",
			Type:        ParameterTypeString,
		},
		ConfigSchemaTimePath: {
			Description: "Dotted path of the timestamp field in the message. Empty means the record timestamp is used.",
			Type:        ParameterTypeString,
		},
		ConfigSchemaTimeColumn: {
			Description: "Name of the time column in the target table.",
			Type:        ParameterTypeString,
		},
		ConfigSchemaTimeUnit: {
			Description: "Unit of epoch timestamps in the message (s, ms, us or ns).",
			Type:        ParameterTypeString,
			Validations: []Validation{ValidationInclusion{List: []string{"s", "ms", "us", "ns"}}},
		},
		ConfigSchemaKey: {
			Description: "Comma separated list of columns forming the natural key of a row.",
			Type:        ParameterTypeString,
		},
	}
}

// ParseCoreConfig decodes and validates the shared settings.
func ParseCoreConfig(cfg map[string]string) (Config, error) {
	var c Config
	if err := DecodeConfig(cfg, CoreParameters(), &c); err != nil {
		return Config{}, err
	}
	if c.TargetTable == "" {
		return Config{}, fmt.Errorf("%s must not be empty", ConfigTargetTable)
	}
	return c, nil
}

// RetryPolicy builds the retry policy of the sink.
func (c Config) RetryPolicy() RetryPolicy {
	p := RetryPolicy{
		MaxAttempts:       c.RetryCount,
		Backoff:           FixedBackoff(c.RetryDelay),
		BackpressureDelay: c.BackpressureDelay,
	}
	if c.RetryBackoffFactor > 1 {
		p.Backoff = ExponentialBackoff(c.RetryDelay, c.RetryMaxDelay, c.RetryBackoffFactor)
	}
	return p
}

// PipelineConfig returns the buffering settings of the pipeline.
func (c Config) PipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferSize:      c.BufferSize,
		BufferTimeout:   c.BufferTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

// Build creates the schema. Explicit settings override those of the preset.
func (c SchemaConfig) Build() (schema.Schema, error) {
	var base schema.Schema
	if c.Preset != "" {
		p, ok := schema.Presets[c.Preset]
		if !ok {
			return schema.Schema{}, fmt.Errorf("unknown schema preset %q", c.Preset)
		}
		base = p
	}

	columns := base.Columns
	if strings.TrimSpace(c.Columns) != "" {
		var err error
		if columns, err = schema.Parse(c.Columns); err != nil {
			return schema.Schema{}, fmt.Errorf("invalid %s: %w", ConfigSchemaColumns, err)
		}
	}

	tc := base.Time
	if c.TimePath != "" {
		tc.Path = c.TimePath
	}
	if c.TimeColumn != "" {
		tc.Name = c.TimeColumn
	}
	if c.TimeUnit != "" {
		u, err := schema.ParseUnit(c.TimeUnit)
		if err != nil {
			return schema.Schema{}, fmt.Errorf("invalid %s: %w", ConfigSchemaTimeUnit, err)
		}
		tc.Unit = u
	}

	key := base.Key
	if c.Key != "" {
		key = schema.ParseKey(c.Key)
	}
	return schema.New(columns, tc, key)
}
