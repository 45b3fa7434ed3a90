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
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matryer/is"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

func TestSchemaDecoder_Decode(t *testing.T) {
	is := is.New(t)

	d := NewSchemaDecoder(testSchema(t))
	got, err := d.Decode(Record{
		Value:     RawData(`{"panel_id":"p1","temperature":"21.5","timestamp":1700000000000000000,"extra":{"x":1}}`),
		Topic:     "solar",
		Partition: 1,
		Offset:    7,
	})
	is.NoErr(err)

	want := Row{
		Position: Position{Topic: "solar", Partition: 1, Offset: 7},
		Time:     time.Unix(1700000000, 0).UTC(),
		Values:   []any{"p1", 21.5},
	}
	is.Equal("", cmp.Diff(want, got))
}

func TestSchemaDecoder_StructuredData(t *testing.T) {
	is := is.New(t)

	d := NewSchemaDecoder(testSchema(t))
	got, err := d.Decode(Record{
		Value: StructuredData{"panel_id": "p1", "temperature": 3, "timestamp": int64(1700000000000000000)},
	})
	is.NoErr(err)
	is.Equal(got.Values, []any{"p1", 3.0})
}

func TestSchemaDecoder_RecordTimestamp(t *testing.T) {
	is := is.New(t)

	cols, err := schema.Parse("panel_id:string")
	is.NoErr(err)
	sch, err := schema.New(cols, schema.TimeColumn{}, nil)
	is.NoErr(err)
	d := NewSchemaDecoder(sch)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	got, err := d.Decode(Record{Value: RawData(`{"panel_id":"p1"}`), Timestamp: ts})
	is.NoErr(err)
	is.True(got.Time.Equal(ts))
	is.Equal(got.Time.Location(), time.UTC)

	_, err = d.Decode(Record{Value: RawData(`{"panel_id":"p1"}`)})
	var de *DecodeError
	is.True(errors.As(err, &de))
}

func TestSchemaDecoder_Errors(t *testing.T) {
	d := NewSchemaDecoder(testSchema(t))

	testCases := []struct {
		name      string
		value     Data
		wantField string
	}{
		{name: "nil value", value: nil},
		{name: "empty", value: RawData("")},
		{name: "not json", value: RawData("temperature=21")},
		{name: "array", value: RawData(`[1,2]`)},
		{name: "null", value: RawData(`null`)},
		{name: "missing field", value: RawData(`{"temperature":1,"timestamp":1}`), wantField: "panel_id"},
		{name: "bad float", value: RawData(`{"panel_id":"a","temperature":"x","timestamp":1}`), wantField: "temperature"},
		{name: "missing time", value: RawData(`{"panel_id":"a","temperature":1}`), wantField: "timestamp"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			_, err := d.Decode(Record{Value: tc.value})
			var de *DecodeError
			is.True(errors.As(err, &de))
			is.Equal(de.Field, tc.wantField)
		})
	}
}
