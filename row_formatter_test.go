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
	"testing"
	"time"

	"github.com/matryer/is"
)

func testRow() Row {
	return Row{
		Position: Position{Topic: "solar", Partition: 1, Offset: 9},
		Time:     time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		Values:   []any{"p1", 21.5},
	}
}

func TestJSONRowFormatter(t *testing.T) {
	is := is.New(t)

	f, err := NewRowFormatter("json", testSchema(t))
	is.NoErr(err)
	is.Equal(f.Name(), "json")

	got, err := f.Format(testRow())
	is.NoErr(err)
	is.Equal(string(got), `{"panel_id":"p1","temperature":21.5,"timestamp":"2023-11-14T22:13:20Z"}`)
}

func TestTemplateRowFormatter(t *testing.T) {
	is := is.New(t)

	f, err := NewRowFormatter(`template:{{ .Fields.panel_id | upper }}={{ .Fields.temperature }}@{{ .Time.Unix }} {{ .Position.Offset }}`, testSchema(t))
	is.NoErr(err)
	is.Equal(f.Name(), "template")

	got, err := f.Format(testRow())
	is.NoErr(err)
	is.Equal(string(got), "P1=21.5@1700000000 9")
}

func TestTemplateRowFormatter_MissingKey(t *testing.T) {
	is := is.New(t)

	f, err := NewRowFormatter(`template:{{ .Fields.humidity }}`, testSchema(t))
	is.NoErr(err)

	_, err = f.Format(testRow())
	is.True(err != nil)
}

func TestNewRowFormatter_Invalid(t *testing.T) {
	is := is.New(t)

	_, err := NewRowFormatter("avro", testSchema(t))
	is.True(err != nil)

	_, err = NewRowFormatter("template:{{ .Fields", testSchema(t))
	is.True(err != nil)
}
