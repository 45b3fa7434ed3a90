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
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// MergeParameters combines parameter declarations. It panics if a key is
// declared twice with different types, shared keys such as target_table are
// allowed.
func MergeParameters(ps ...Parameters) Parameters {
	out := make(Parameters)
	for _, p := range ps {
		for k, v := range p {
			if existing, ok := out[k]; ok && existing.Type != v.Type {
				panic(fmt.Errorf("parameter %q declared twice with different types", k))
			}
			out[k] = v
		}
	}
	return out
}

// ApplyDefaults returns a copy of cfg where missing or empty values are
// replaced by the parameter defaults.
func ApplyDefaults(params Parameters, cfg map[string]string) map[string]string {
	out := make(map[string]string, len(cfg)+len(params))
	for k, v := range cfg {
		out[k] = v
	}
	for k, p := range params {
		if out[k] == "" && p.Default != "" {
			out[k] = p.Default
		}
	}
	return out
}

// DecodeConfig applies defaults, validates cfg against params and decodes the
// result into target.
func DecodeConfig(cfg map[string]string, params Parameters, target any) error {
	cfg = ApplyDefaults(params, cfg)
	if err := params.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return ParseConfig(cfg, target)
}

// ParseConfig decodes a flat configuration map into a struct. Under the hood
// it uses mitchellh/mapstructure, keys are matched against the "mapstructure"
// tag. Durations accept Go syntax or plain numbers of seconds, slices are
// parsed from comma separated values.
func ParseConfig(cfg map[string]string, target any) error {
	input := make(map[string]any, len(cfg))
	for k, v := range cfg {
		input[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			durationDecodeHook,
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func durationDecodeHook(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Duration(0), nil
	}
	return parseDuration(s)
}
