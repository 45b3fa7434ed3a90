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

// Package schema describes how a flat or nested JSON message maps to the
// columns of a time-series table, and converts decoded message fields into
// typed column values.
package schema

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultTimeColumn is the name of the time column when none is configured.
const DefaultTimeColumn = "timestamp"

// Type is the type of a column value after coercion.
type Type int

const (
	TypeString Type = iota + 1
	TypeFloat
	TypeInt
	TypeBool
	TypeTime
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeFloat:
		return "float"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType parses a type name. Common aliases are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return TypeString, nil
	case "float", "float64", "double", "number":
		return TypeFloat, nil
	case "int", "int64", "integer", "long":
		return TypeInt, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "time", "timestamp":
		return TypeTime, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Column maps one message field to one table column.
type Column struct {
	// Name is the column name in the target table.
	Name string
	// Path is the dotted path of the field in the message.
	Path string
	Type Type
	// Unit is used for TypeTime columns holding epoch numbers, DefaultUnit
	// when zero.
	Unit Unit
	// Nullable columns accept missing or null fields.
	Nullable bool
}

// TimeColumn describes the row timestamp.
type TimeColumn struct {
	// Name is the column name in the target table.
	Name string
	// Path is the dotted path of the timestamp field in the message. An empty
	// path means the record timestamp reported by the transport is used.
	Path string
	// Unit is the unit of epoch numbers found at Path, DefaultUnit when zero.
	Unit Unit
}

// Schema is the mapping of a message to a table row.
type Schema struct {
	Columns []Column
	Time    TimeColumn
	// Key lists the column names forming the natural key of a row. Stores
	// use it to make redelivered rows idempotent where they can.
	Key []string
}

// New creates a schema, applying defaults and validating the result.
func New(columns []Column, tc TimeColumn, key []string) (Schema, error) {
	if tc.Name == "" {
		tc.Name = DefaultTimeColumn
		if tc.Path != "" {
			tc.Name = columnName(tc.Path)
		}
	}
	if tc.Unit == 0 {
		tc.Unit = DefaultUnit
	}
	s := Schema{Columns: columns, Time: tc, Key: key}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Validate checks that column names are unique and that key columns exist.
func (s Schema) Validate() error {
	var errs []error
	if len(s.Columns) == 0 {
		errs = append(errs, errors.New("schema has no columns"))
	}
	if s.Time.Name == "" {
		errs = append(errs, errors.New("time column has no name"))
	}

	seen := map[string]bool{s.Time.Name: true}
	for _, c := range s.Columns {
		switch {
		case c.Name == "":
			errs = append(errs, fmt.Errorf("column with path %q has no name", c.Path))
		case c.Path == "":
			errs = append(errs, fmt.Errorf("column %q has no path", c.Name))
		case seen[c.Name]:
			errs = append(errs, fmt.Errorf("duplicate column %q", c.Name))
		}
		if c.Type < TypeString || c.Type > TypeTime {
			errs = append(errs, fmt.Errorf("column %q has invalid type %v", c.Name, c.Type))
		}
		seen[c.Name] = true
	}
	for _, k := range s.Key {
		if !seen[k] {
			errs = append(errs, fmt.Errorf("key column %q is not part of the schema", k))
		}
	}
	return errors.Join(errs...)
}

// ColumnNames returns the names of all table columns, starting with the time
// column, in the order stores write them.
func (s Schema) ColumnNames() []string {
	out := make([]string, 0, len(s.Columns)+1)
	out = append(out, s.Time.Name)
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Index returns the position of the named column in Columns, or -1. The time
// column is not part of Columns.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// IsKey reports whether the named column is part of the key.
func (s Schema) IsKey(name string) bool {
	for _, k := range s.Key {
		if k == name {
			return true
		}
	}
	return false
}

func columnName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}
