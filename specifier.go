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
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Specification contains general information regarding the sink like its
// name and what it does, together with the parameters of every component it
// can be assembled from.
type Specification struct {
	// Name is the name of the sink.
	Name string `yaml:"name"`
	// Summary is a brief description of the sink and what it does.
	Summary string `yaml:"summary"`
	// Description is a more long form area appropriate for README-like text.
	Description string `yaml:"description,omitempty"`
	// Version string. Should be prepended with `v` like Go, e.g. `v1.54.3`.
	Version string `yaml:"version"`
	// Author declares the entity that created or maintains this sink.
	Author string `yaml:"author,omitempty"`
	// Components maps a component name (e.g. "destination.postgres") to its
	// parameters.
	Components map[string]Parameters `yaml:"-"`
}

// Parameters maps a configuration key to its declaration.
type Parameters map[string]Parameter

// Parameter defines a single configuration parameter.
type Parameter struct {
	// Default is the default value of the parameter, if any.
	Default string `yaml:"default,omitempty"`
	// Description holds a description of the field and how to configure it.
	Description string `yaml:"description"`
	// Type defines the parameter data type.
	Type ParameterType `yaml:"type"`
	// Validations slice of validations to be checked for the parameter.
	Validations []Validation `yaml:"-"`
}

// Required reports whether the parameter carries a ValidationRequired.
func (p Parameter) Required() bool {
	for _, v := range p.Validations {
		if _, ok := v.(ValidationRequired); ok {
			return true
		}
	}
	return false
}

// Keys returns the parameter keys in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write renders the specification as YAML.
func (s Specification) Write(w io.Writer) error {
	type param struct {
		Parameter `yaml:",inline"`
		Required  bool `yaml:"required,omitempty"`
	}
	out := struct {
		Specification `yaml:",inline"`
		Components    map[string]map[string]param `yaml:"components"`
	}{Specification: s, Components: make(map[string]map[string]param, len(s.Components))}

	for name, params := range s.Components {
		m := make(map[string]param, len(params))
		for k, p := range params {
			m[k] = param{Parameter: p, Required: p.Required()}
		}
		out.Components[name] = m
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode specification: %w", err)
	}
	return enc.Close()
}
