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
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read by LoadConfig.
// SOLARSINK_POSTGRES__URL sets the key postgres.url.
const EnvPrefix = "SOLARSINK_"

// LoadConfig assembles a flat configuration. Values from the YAML file at
// path (optional) are overridden by environment variables in environ, which
// are overridden by overrides in key=value form. Nested YAML mappings are
// flattened with "." and lists are joined with ",".
func LoadConfig(path string, environ []string, overrides []string) (map[string]string, error) {
	cfg := make(map[string]string)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := parseYAMLConfig(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		k = strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
		cfg[strings.ReplaceAll(k, "__", ".")] = v
	}

	for _, kv := range overrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", kv)
		}
		cfg[strings.TrimSpace(k)] = v
	}
	return cfg, nil
}

func parseYAMLConfig(raw []byte, cfg map[string]string) error {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return flattenYAML("", doc, cfg)
}

func flattenYAML(prefix string, v any, cfg map[string]string) error {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flattenYAML(key, v[k], cfg); err != nil {
				return err
			}
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := yamlScalar(prefix, item)
			if err != nil {
				return err
			}
			parts = append(parts, s)
		}
		cfg[prefix] = strings.Join(parts, ",")
	default:
		s, err := yamlScalar(prefix, v)
		if err != nil {
			return err
		}
		cfg[prefix] = s
	}
	return nil
}

func yamlScalar(key string, v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case map[string]any, []any:
		return "", fmt.Errorf("%s: nested value not allowed here", key)
	default:
		return fmt.Sprint(v), nil
	}
}
