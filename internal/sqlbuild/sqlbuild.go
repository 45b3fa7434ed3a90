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

// Package sqlbuild generates the DDL and insert statements of the SQL stores
// from a schema.
package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

// Dialect captures the differences between SQL databases.
type Dialect interface {
	// Quote quotes a single identifier.
	Quote(ident string) string
	// Placeholder returns the bind parameter for the n-th argument, starting
	// at 1.
	Placeholder(n int) string
	// ColumnType returns the column definition type for t.
	ColumnType(t schema.Type, nullable bool) string
	// TableClause returns constraints appended inside the column list and the
	// clause appended after it.
	TableClause(s schema.Schema) (constraints []string, suffix string)
}

// QuoteTable quotes a possibly schema qualified table name.
func QuoteTable(d Dialect, table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

// QuoteList quotes every identifier and joins them with ", ".
func QuoteList(d Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = d.Quote(id)
	}
	return strings.Join(quoted, ", ")
}

// CreateTable returns a CREATE TABLE IF NOT EXISTS statement. The time column
// comes first and is never nullable.
func CreateTable(d Dialect, table string, s schema.Schema) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(QuoteTable(d, table))
	b.WriteString(" (\n  ")
	b.WriteString(d.Quote(s.Time.Name))
	b.WriteByte(' ')
	b.WriteString(d.ColumnType(schema.TypeTime, false))
	for _, c := range s.Columns {
		b.WriteString(",\n  ")
		b.WriteString(d.Quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(d.ColumnType(c.Type, c.Nullable))
	}
	constraints, suffix := d.TableClause(s)
	for _, c := range constraints {
		b.WriteString(",\n  ")
		b.WriteString(c)
	}
	b.WriteString("\n)")
	if suffix != "" {
		b.WriteByte(' ')
		b.WriteString(suffix)
	}
	return b.String()
}

// Insert returns a multi-row INSERT statement for rows rows of the given
// columns. With ignoreConflicts rows violating a unique constraint are
// skipped.
func Insert(d Dialect, table string, columns []string, rows int, ignoreConflicts bool) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteTable(d, table))
	b.WriteString(" (")
	b.WriteString(QuoteList(d, columns))
	b.WriteString(") VALUES ")
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	if ignoreConflicts {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}
	return b.String()
}

// ChunkSize returns how many rows of columns columns fit into one statement
// when at most maxParams bind parameters are allowed.
func ChunkSize(columns, maxParams int) int {
	if columns <= 0 {
		return maxParams
	}
	return max(maxParams/columns, 1)
}

func quoteWith(ident string, q byte) string {
	s := string(q)
	return s + strings.ReplaceAll(ident, s, s+s) + s
}

// -- dialects -----------------------------------------------------------------

// SQLite is the dialect of modernc.org/sqlite.
type SQLite struct{}

func (SQLite) Quote(ident string) string { return quoteWith(ident, '"') }
func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) ColumnType(t schema.Type, nullable bool) string {
	var typ string
	switch t {
	case schema.TypeFloat:
		typ = "REAL"
	case schema.TypeInt, schema.TypeBool:
		typ = "INTEGER"
	case schema.TypeTime:
		typ = "TIMESTAMP"
	default:
		typ = "TEXT"
	}
	return notNull(typ, nullable)
}

func (d SQLite) TableClause(s schema.Schema) ([]string, string) {
	if len(s.Key) == 0 {
		return nil, ""
	}
	return []string{"UNIQUE (" + QuoteList(d, s.Key) + ")"}, ""
}

// Postgres is the dialect of PostgreSQL and TimescaleDB.
type Postgres struct{}

func (Postgres) Quote(ident string) string { return quoteWith(ident, '"') }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) ColumnType(t schema.Type, nullable bool) string {
	var typ string
	switch t {
	case schema.TypeFloat:
		typ = "DOUBLE PRECISION"
	case schema.TypeInt:
		typ = "BIGINT"
	case schema.TypeBool:
		typ = "BOOLEAN"
	case schema.TypeTime:
		typ = "TIMESTAMPTZ"
	default:
		typ = "TEXT"
	}
	return notNull(typ, nullable)
}

func (d Postgres) TableClause(s schema.Schema) ([]string, string) {
	if len(s.Key) == 0 {
		return nil, ""
	}
	return []string{"UNIQUE (" + QuoteList(d, s.Key) + ")"}, ""
}

// ClickHouse is the dialect of the ClickHouse native protocol.
type ClickHouse struct {
	// Engine defaults to MergeTree.
	Engine string
}

func (ClickHouse) Quote(ident string) string { return quoteWith(ident, '`') }
func (ClickHouse) Placeholder(int) string { return "?" }

func (ClickHouse) ColumnType(t schema.Type, nullable bool) string {
	var typ string
	switch t {
	case schema.TypeFloat:
		typ = "Float64"
	case schema.TypeInt:
		typ = "Int64"
	case schema.TypeBool:
		typ = "Bool"
	case schema.TypeTime:
		typ = "DateTime64(9, 'UTC')"
	default:
		typ = "String"
	}
	if nullable {
		return "Nullable(" + typ + ")"
	}
	return typ
}

func (d ClickHouse) TableClause(s schema.Schema) ([]string, string) {
	engine := d.Engine
	if engine == "" {
		engine = "MergeTree"
	}
	order := []string{s.Time.Name}
	if len(s.Key) > 0 {
		order = nonNullKey(s)
	}
	return nil, fmt.Sprintf("ENGINE = %s ORDER BY (%s)", engine, QuoteList(d, order))
}

// nonNullKey returns the key columns usable in a sorting key, which cannot be
// nullable in ClickHouse.
func nonNullKey(s schema.Schema) []string {
	var out []string
	for _, k := range s.Key {
		if i := s.Index(k); i >= 0 && s.Columns[i].Nullable {
			continue
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return []string{s.Time.Name}
	}
	return out
}

// Spanner is the GoogleSQL dialect of Cloud Spanner.
type Spanner struct{}

func (Spanner) Quote(ident string) string { return quoteWith(ident, '`') }
func (Spanner) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (Spanner) ColumnType(t schema.Type, nullable bool) string {
	var typ string
	switch t {
	case schema.TypeFloat:
		typ = "FLOAT64"
	case schema.TypeInt:
		typ = "INT64"
	case schema.TypeBool:
		typ = "BOOL"
	case schema.TypeTime:
		typ = "TIMESTAMP"
	default:
		typ = "STRING(MAX)"
	}
	return notNull(typ, nullable)
}

// TableClause returns the primary key, which Spanner requires. Without a
// natural key the time column is used.
func (d Spanner) TableClause(s schema.Schema) ([]string, string) {
	key := s.Key
	if len(key) == 0 {
		key = []string{s.Time.Name}
	}
	return nil, "PRIMARY KEY (" + QuoteList(d, key) + ")"
}

func notNull(typ string, nullable bool) string {
	if nullable {
		return typ
	}
	return typ + " NOT NULL"
}
