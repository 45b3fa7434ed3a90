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
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/goccy/go-json"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

// RowFormatter turns a row into bytes. It is used by stores that write rows
// as messages instead of table rows.
type RowFormatter interface {
	Name() string
	Format(Row) ([]byte, error)
}

const templateFormatPrefix = "template:"

// NewRowFormatter parses a format description. Supported are "json" and
// "template:<go template>", templates can use the sprig functions.
func NewRowFormatter(format string, s schema.Schema) (RowFormatter, error) {
	switch {
	case format == "" || format == "json":
		return JSONRowFormatter{Schema: s}, nil
	case strings.HasPrefix(format, templateFormatPrefix):
		return NewTemplateRowFormatter(strings.TrimPrefix(format, templateFormatPrefix), s)
	default:
		return nil, fmt.Errorf("unknown row format %q", format)
	}
}

// RowFields returns the row as a map of column name to value. The time column
// is rendered as RFC 3339 with nanoseconds.
func RowFields(s schema.Schema, row Row) map[string]any {
	out := make(map[string]any, len(s.Columns)+1)
	out[s.Time.Name] = row.Time.UTC().Format(time.RFC3339Nano)
	for i, c := range s.Columns {
		if i < len(row.Values) {
			out[c.Name] = row.Values[i]
		}
	}
	return out
}

// JSONRowFormatter formats a row as a JSON object keyed by column name.
type JSONRowFormatter struct {
	Schema schema.Schema
}

func (JSONRowFormatter) Name() string { return "json" }

func (f JSONRowFormatter) Format(row Row) ([]byte, error) {
	return json.Marshal(RowFields(f.Schema, row))
}

// TemplateRowFormatter formats a row using a Go template. The template data
// exposes the column values under .Fields, the row time under .Time and the
// source position under .Position.
type TemplateRowFormatter struct {
	schema   schema.Schema
	template *template.Template
}

func NewTemplateRowFormatter(tmpl string, s schema.Schema) (*TemplateRowFormatter, error) {
	t, err := template.New("row").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse row template: %w", err)
	}
	return &TemplateRowFormatter{schema: s, template: t}, nil
}

func (*TemplateRowFormatter) Name() string { return "template" }

func (f *TemplateRowFormatter) Format(row Row) ([]byte, error) {
	return f.Execute(row)
}

// Execute renders the template for row.
func (f *TemplateRowFormatter) Execute(row Row) ([]byte, error) {
	var b bytes.Buffer
	err := f.template.Execute(&b, map[string]any{
		"Fields":   RowFields(f.schema, row),
		"Time":     row.Time,
		"Position": row.Position,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute row template: %w", err)
	}
	return b.Bytes(), nil
}
