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

package schema

import (
	"fmt"
	"strings"
)

// Parse parses a comma separated list of column definitions. Each entry has
// the form
//
//	path[=>name]:type[:unit][?]
//
// where path is the dotted field path in the message, name is the column
// name (defaults to the path with dots replaced by underscores), type is one
// of string, float, int, bool or time, unit is the epoch unit of time columns
// (s, ms, us or ns, DefaultUnit when omitted) and a trailing question mark
// marks the column as nullable.
//
//	panel_id:string,temperature:float,location.lat=>lat:float?
func Parse(s string) ([]Column, error) {
	var out []Column
	for i, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		c, err := parseColumn(entry)
		if err != nil {
			return nil, fmt.Errorf("column %d (%q): %w", i, entry, err)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no columns defined")
	}
	return out, nil
}

func parseColumn(entry string) (Column, error) {
	var c Column
	if strings.HasSuffix(entry, "?") {
		c.Nullable = true
		entry = strings.TrimSuffix(entry, "?")
	}

	parts := strings.Split(entry, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Column{}, fmt.Errorf("expected path:type")
	}

	path, name, renamed := strings.Cut(parts[0], "=>")
	c.Path = strings.TrimSpace(path)
	c.Name = strings.TrimSpace(name)
	if !renamed {
		c.Name = columnName(c.Path)
	}
	if c.Path == "" || c.Name == "" {
		return Column{}, fmt.Errorf("empty path or name")
	}

	t, err := ParseType(parts[1])
	if err != nil {
		return Column{}, err
	}
	c.Type = t

	if len(parts) == 3 {
		if t != TypeTime {
			return Column{}, fmt.Errorf("unit is only allowed on time columns")
		}
		u, err := ParseUnit(parts[2])
		if err != nil {
			return Column{}, err
		}
		c.Unit = u
	}
	return c, nil
}

// ParseKey parses a comma separated list of key column names.
func ParseKey(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// String formats the columns in the form accepted by Parse.
func String(columns []Column) string {
	var sb strings.Builder
	for i, c := range columns {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c.Path)
		if c.Name != columnName(c.Path) {
			sb.WriteString("=>")
			sb.WriteString(c.Name)
		}
		sb.WriteByte(':')
		sb.WriteString(c.Type.String())
		if c.Type == TypeTime && c.Unit != 0 {
			sb.WriteByte(':')
			sb.WriteString(c.Unit.String())
		}
		if c.Nullable {
			sb.WriteByte('?')
		}
	}
	return sb.String()
}
