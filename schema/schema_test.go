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
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matryer/is"
)

func TestParse(t *testing.T) {
	is := is.New(t)

	got, err := Parse("panel_id:string, temperature:float,location.lat:float?,location.lon=>lng:float,seen:time:ms,count:int")
	is.NoErr(err)

	want := []Column{
		{Name: "panel_id", Path: "panel_id", Type: TypeString},
		{Name: "temperature", Path: "temperature", Type: TypeFloat},
		{Name: "location_lat", Path: "location.lat", Type: TypeFloat, Nullable: true},
		{Name: "lng", Path: "location.lon", Type: TypeFloat},
		{Name: "seen", Path: "seen", Type: TypeTime, Unit: UnitMillis},
		{Name: "count", Path: "count", Type: TypeInt},
	}
	is.Equal("", cmp.Diff(want, got))
	is.Equal(String(got), "panel_id:string,temperature:float,location.lat:float?,location.lon=>lng:float,seen:time:ms,count:int")
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		in   string
	}{
		{name: "empty", in: " , "},
		{name: "missing type", in: "temperature"},
		{name: "unknown type", in: "temperature:decimal"},
		{name: "unit on float", in: "temperature:float:ms"},
		{name: "unknown unit", in: "seen:time:days"},
		{name: "empty name", in: "a=>:string"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			_, err := Parse(tc.in)
			is.True(err != nil)
		})
	}
}

func TestNew_Validate(t *testing.T) {
	is := is.New(t)

	_, err := New([]Column{
		{Name: "a", Path: "a", Type: TypeString},
		{Name: "a", Path: "b", Type: TypeString},
	}, TimeColumn{}, []string{"missing"})
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), `duplicate column "a"`))
	is.True(strings.Contains(err.Error(), `key column "missing"`))

	s, err := New([]Column{{Name: "a", Path: "a", Type: TypeString}}, TimeColumn{Path: "meta.ts"}, []string{"a", "meta_ts"})
	is.NoErr(err)
	is.Equal(s.Time.Name, "meta_ts")
	is.Equal(s.Time.Unit, UnitNanos)
	is.Equal(s.ColumnNames(), []string{"meta_ts", "a"})
	is.True(s.IsKey("meta_ts"))
	is.Equal(s.Index("a"), 0)
	is.Equal(s.Index("meta_ts"), -1)
}

func TestPresets_Valid(t *testing.T) {
	for name, s := range Presets {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			is.NoErr(s.Validate())
		})
	}
}

func TestFlatten(t *testing.T) {
	is := is.New(t)

	got := Flatten(map[string]any{
		"a": 1,
		"b": map[string]any{
			"c": "x",
			"d": map[string]any{"e": true},
		},
		"f": []any{1, 2},
	})
	want := map[string]any{
		"a":     1,
		"b.c":   "x",
		"b.d.e": true,
		"f":     []any{1, 2},
	}
	is.Equal("", cmp.Diff(want, got))
}

func TestDecode(t *testing.T) {
	s, err := New([]Column{
		{Name: "s", Path: "s", Type: TypeString},
		{Name: "f", Path: "f", Type: TypeFloat},
		{Name: "i", Path: "i", Type: TypeInt},
		{Name: "b", Path: "b", Type: TypeBool},
		{Name: "n", Path: "nested.n", Type: TypeFloat, Nullable: true},
	}, TimeColumn{Path: "ts", Unit: UnitMillis}, nil)
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name    string
		in      map[string]any
		want    []any
		wantErr string
	}{{
		name: "native types",
		in:   map[string]any{"s": "x", "f": 1.5, "i": 3, "b": true, "nested": map[string]any{"n": 2.0}},
		want: []any{"x", 1.5, int64(3), true, 2.0},
	}, {
		name: "numeric strings",
		in:   map[string]any{"s": 12, "f": "21.5", "i": "7", "b": "false"},
		want: []any{"12", 21.5, int64(7), false, nil},
	}, {
		name: "json numbers",
		in:   map[string]any{"s": json.Number("1.25"), "f": json.Number("2"), "i": json.Number("40"), "b": 1},
		want: []any{"1.25", 2.0, int64(40), true, nil},
	}, {
		name: "integral float as int",
		in:   map[string]any{"s": "x", "f": 1, "i": 5.0, "b": true},
		want: []any{"x", 1.0, int64(5), true, nil},
	}, {
		name:    "fractional int",
		in:      map[string]any{"s": "x", "f": 1, "i": 5.5, "b": true},
		wantErr: `field "i"`,
	}, {
		name:    "bad float",
		in:      map[string]any{"s": "x", "f": "warm", "i": 1, "b": true},
		wantErr: `field "f"`,
	}, {
		name:    "missing required",
		in:      map[string]any{"f": 1, "i": 1, "b": true},
		wantErr: `field "s": required field is missing`,
	}, {
		name:    "object as string",
		in:      map[string]any{"s": []any{1}, "f": 1, "i": 1, "b": true},
		wantErr: `field "s"`,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			got, err := s.Decode(tc.in)
			if tc.wantErr != "" {
				is.True(err != nil)
				is.True(strings.Contains(err.Error(), tc.wantErr))
				var fe *FieldError
				is.True(errors.As(err, &fe))
				return
			}
			is.NoErr(err)
			is.Equal("", cmp.Diff(tc.want, got))
		})
	}
}

func TestDecodeTime(t *testing.T) {
	want := time.Unix(1700000000, 0).UTC()

	testCases := []struct {
		name string
		unit Unit
		in   any
	}{
		{name: "seconds", unit: UnitSeconds, in: int64(1700000000)},
		{name: "seconds float", unit: UnitSeconds, in: 1700000000.0},
		{name: "millis", unit: UnitMillis, in: json.Number("1700000000000")},
		{name: "micros", unit: UnitMicros, in: "1700000000000000"},
		{name: "nanos", unit: UnitNanos, in: json.Number("1700000000000000000")},
		{name: "rfc3339", unit: UnitNanos, in: "2023-11-14T22:13:20Z"},
		{name: "rfc3339 with offset", unit: UnitNanos, in: "2023-11-14T23:13:20+01:00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			s := Schema{Time: TimeColumn{Name: "ts", Path: "meta.ts", Unit: tc.unit}}
			got, err := s.DecodeTime(map[string]any{"meta": map[string]any{"ts": tc.in}})
			is.NoErr(err)
			is.True(got.Equal(want))
		})
	}
}

func TestDecode_TimeColumnDefaultUnit(t *testing.T) {
	is := is.New(t)
	cols, err := Parse("seen:time")
	is.NoErr(err)
	s, err := New(cols, TimeColumn{Path: "timestamp"}, nil)
	is.NoErr(err)

	fields := map[string]any{
		"seen":      json.Number("1700000000000000000"),
		"timestamp": json.Number("1700000000000000000"),
	}
	values, err := s.Decode(fields)
	is.NoErr(err)
	at, err := s.DecodeTime(fields)
	is.NoErr(err)

	want := time.Unix(1700000000, 0)
	is.True(values[0].(time.Time).Equal(want))
	is.True(at.Equal(want))
	is.Equal(s.Time.Unit, DefaultUnit)
}

func TestDecodeTime_Missing(t *testing.T) {
	is := is.New(t)
	s := Schema{Time: TimeColumn{Name: "ts", Path: "ts", Unit: UnitNanos}}

	_, err := s.DecodeTime(map[string]any{"other": 1})
	is.True(errors.Is(err, ErrMissing))

	_, err = s.DecodeTime(map[string]any{"ts": true})
	var fe *FieldError
	is.True(errors.As(err, &fe))
	is.Equal(fe.Field, "ts")
}

func TestUnit_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 15, 123456789, time.UTC)
	for _, u := range []Unit{UnitSeconds, UnitMillis, UnitMicros, UnitNanos} {
		t.Run(u.String(), func(t *testing.T) {
			is := is.New(t)
			parsed, err := ParseUnit(u.String())
			is.NoErr(err)
			is.Equal(parsed, u)
			is.True(u.FromInt(u.ToInt(ts)).Equal(ts.Truncate(u.Duration())))
		})
	}
}
