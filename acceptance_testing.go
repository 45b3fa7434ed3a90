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
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

// AcceptanceTest is the acceptance test that all store implementations
// should pass. It should manually be called from a test case in each
// implementation:
//
//	func TestAcceptance(t *testing.T) {
//	    // set up test dependencies ...
//	    connector.AcceptanceTest(t, connector.AcceptanceTestConfig{...})
//	}
func AcceptanceTest(t *testing.T, cfg AcceptanceTestConfig) {
	acceptanceTest{config: cfg}.Test(t)
}

type AcceptanceTestConfig struct {
	// NewStore creates a store writing to a fresh table every time it is
	// called with a new table name. Calls with the same name must target the
	// same table.
	NewStore func(t *testing.T, table string) Store
	// Parameters returns the parameters of the store.
	Parameters func() Parameters
	// Schema is the schema rows are written with. Defaults to the
	// solar_panel preset.
	Schema schema.Schema
	// CountRows returns the number of rows in table. If nil, written rows
	// are not verified.
	CountRows func(t *testing.T, table string) int
	// Deduplicates is set for stores that drop rows with a key already
	// present in the table.
	Deduplicates bool
}

type acceptanceTest struct {
	config AcceptanceTestConfig
}

func (a acceptanceTest) Test(t *testing.T) {
	if a.config.NewStore == nil {
		t.Fatalf("acceptance test config is missing the field NewStore")
	}
	if len(a.config.Schema.Columns) == 0 {
		a.config.Schema = schema.Presets["solar_panel"]
	}

	a.run(t, a.testParameters)
	a.run(t, a.testStore_Open_Close)
	a.run(t, a.testStore_Open_Twice)
	a.run(t, a.testStore_Write_Success)
	a.run(t, a.testStore_Write_Redelivery)
	a.run(t, a.testStore_ClassifyError)
	a.run(t, a.testSink_Write)
}

func (acceptanceTest) run(t *testing.T, test func(*testing.T)) {
	name := runtime.FuncForPC(reflect.ValueOf(test).Pointer()).Name()
	name = strings.TrimSuffix(name[strings.LastIndex(name, ".")+1:], "-fm")
	t.Run(name, func(t *testing.T) { test(t) })
}

func (a acceptanceTest) table(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = name[strings.LastIndex(name, "/")+1:]
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	return fmt.Sprintf("acc_%s_%d", name, time.Now().UnixNano()%1e6)
}

func (a acceptanceTest) testParameters(t *testing.T) {
	if a.config.Parameters == nil {
		t.Skip("acceptance test config has no Parameters")
	}
	is := is.NewRelaxed(t) // allow multiple failures for this test

	params := a.config.Parameters()
	is.True(len(params) > 0) // store declares no parameters
	for key, p := range params {
		is.True(strings.TrimSpace(key) == key)         // parameter key starts or ends with whitespace
		is.True(strings.Contains(key, "."))            // parameter key is not prefixed with the store name
		is.True(p.Description != "")                   // parameter description is missing
		is.True(p.Type >= ParameterTypeString)         // parameter type is missing
		is.True(p.Type <= ParameterTypeDuration)       // parameter type is invalid
		is.True(!(p.Required() && p.Default != ""))    // required parameter has a default
	}
}

func (a acceptanceTest) testStore_Open_Close(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s := a.config.NewStore(t, a.table(t))
	is.NoErr(s.Open(ctx))
	is.NoErr(s.Close(ctx))
}

func (a acceptanceTest) testStore_Open_Twice(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	table := a.table(t)

	// schema preparation must be idempotent
	for i := 0; i < 2; i++ {
		s := a.config.NewStore(t, table)
		is.NoErr(s.Open(ctx))
		is.NoErr(s.Close(ctx))
	}
}

func (a acceptanceTest) testStore_Write_Success(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	table := a.table(t)

	s := a.config.NewStore(t, table)
	is.NoErr(s.Open(ctx))
	defer func() { is.NoErr(s.Close(ctx)) }()

	rows := AcceptanceRows(a.config.Schema, 5, time.Now().UTC().Truncate(time.Millisecond))
	is.NoErr(s.Write(ctx, rows))

	if a.config.CountRows != nil {
		is.Equal(a.config.CountRows(t, table), len(rows))
	}
}

func (a acceptanceTest) testStore_Write_Redelivery(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	table := a.table(t)

	s := a.config.NewStore(t, table)
	is.NoErr(s.Open(ctx))
	defer func() { is.NoErr(s.Close(ctx)) }()

	// at-least-once delivery writes the same batch again after a lost ack
	rows := AcceptanceRows(a.config.Schema, 3, time.Now().UTC().Truncate(time.Millisecond))
	is.NoErr(s.Write(ctx, rows))
	is.NoErr(s.Write(ctx, rows))

	if a.config.CountRows != nil {
		want := 2 * len(rows)
		if a.config.Deduplicates && len(a.config.Schema.Key) > 0 {
			want = len(rows)
		}
		is.Equal(a.config.CountRows(t, table), want)
	}
}

func (a acceptanceTest) testStore_ClassifyError(t *testing.T) {
	is := is.New(t)

	s := a.config.NewStore(t, a.table(t))
	c, _ := s.(ErrorClassifier)

	class, _ := classify(context.DeadlineExceeded, c)
	is.Equal(class, ClassTimeout)
	class, _ = classify(Permanent(fmt.Errorf("bad row")), c)
	is.Equal(class, ClassFatal)
}

func (a acceptanceTest) testSink_Write(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	table := a.table(t)

	sink := NewSink(a.config.NewStore(t, table), NewSchemaDecoder(a.config.Schema))
	is.NoErr(sink.Configure(ctx))
	defer func() { is.NoErr(sink.Close(ctx)) }()

	records := make([]Record, 0, 4)
	for i, row := range AcceptanceRows(a.config.Schema, 3, time.Now().UTC().Truncate(time.Millisecond)) {
		records = append(records, Record{
			Value:     StructuredData(AcceptanceMessage(a.config.Schema, row)),
			Timestamp: row.Time,
			Topic:     "acceptance",
			Offset:    int64(i),
		})
	}
	records = append(records, Record{Value: RawData(`{not json`), Topic: "acceptance", Offset: 3})

	res, err := sink.Write(ctx, NewBatch(records...))
	is.NoErr(err)
	is.Equal(res.Outcome, OutcomeSuccess)
	is.Equal(res.Written, 3)
	is.Equal(res.Skipped, 1)

	if a.config.CountRows != nil {
		is.Equal(a.config.CountRows(t, table), 3)
	}
}

// AcceptanceRows generates n rows with distinct values for every column of s.
// Row i has the time start plus i seconds.
func AcceptanceRows(s schema.Schema, n int, start time.Time) []Row {
	rows := make([]Row, n)
	for i := range rows {
		values := make([]any, len(s.Columns))
		for j, c := range s.Columns {
			values[j] = acceptanceValue(c, i)
		}
		rows[i] = Row{
			Position: Position{Topic: "acceptance", Offset: int64(i)},
			Time:     start.Add(time.Duration(i) * time.Second),
			Values:   values,
		}
	}
	return rows
}

// AcceptanceMessage builds the nested message that decodes into row.
func AcceptanceMessage(s schema.Schema, row Row) map[string]any {
	msg := map[string]any{}
	put := func(path string, v any) {
		parts := strings.Split(path, ".")
		m := msg
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	for i, c := range s.Columns {
		v := row.Values[i]
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.RFC3339Nano)
		}
		put(c.Path, v)
	}
	if s.Time.Path != "" {
		put(s.Time.Path, s.Time.Unit.ToInt(row.Time))
	}
	return msg
}

func acceptanceValue(c schema.Column, i int) any {
	switch c.Type {
	case schema.TypeFloat:
		return float64(i) + 0.5
	case schema.TypeInt:
		return int64(i)
	case schema.TypeBool:
		return i%2 == 0
	case schema.TypeTime:
		return time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC)
	default:
		return fmt.Sprintf("%s-%d", c.Name, i)
	}
}
