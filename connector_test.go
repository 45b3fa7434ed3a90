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
	"errors"
	"testing"

	"github.com/matryer/is"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
	"go.uber.org/mock/gomock"
)

func testConnector(store Store) Connector {
	return Connector{
		NewSpecification: func() Specification {
			return Specification{Name: "solarsink", Summary: "test", Version: "v0.0.1"}
		},
		Sources: []SourceConnector{{
			Name:       "slice",
			Parameters: func() Parameters { return Parameters{} },
			New: func(context.Context, map[string]string) (Source, error) {
				return NewSliceSource(), nil
			},
		}},
		Stores: []StoreConnector{{
			Name: "mock",
			Parameters: func() Parameters {
				return Parameters{"mock.dsn": {Type: ParameterTypeString}}
			},
			New: func(_ context.Context, _ Config, _ schema.Schema, cfg map[string]string) (Store, error) {
				if cfg["mock.dsn"] == "broken" {
					return nil, errors.New("bad dsn")
				}
				return store, nil
			},
		}},
	}
}

func TestConnector_Specification(t *testing.T) {
	is := is.New(t)

	spec := testConnector(nil).Specification()
	is.Equal(spec.Name, "solarsink")
	is.True(spec.Components["core"] != nil)
	is.True(spec.Components["service"] != nil)
	is.True(spec.Components["destination.mock"] != nil)
	is.True(spec.Components["source.slice"] != nil)
	is.Equal(spec.Components["service"][ConfigSource].Default, "slice")
	is.True(spec.Components["service"][ConfigDestination].Required())
}

func TestConnector_Lookup(t *testing.T) {
	is := is.New(t)
	c := testConnector(nil)

	_, err := c.Store("mock")
	is.NoErr(err)
	_, err = c.Store("oracle")
	is.True(err != nil)
	_, err = c.Source("slice")
	is.NoErr(err)
	_, err = c.Source("websocket")
	is.True(err != nil)
}

func TestConnector_Assemble(t *testing.T) {
	is := is.New(t)
	ctx := testContext(t)
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	a, err := testConnector(store).Assemble(ctx, map[string]string{
		ConfigDestination:   "mock",
		ConfigSchemaPreset:  "solar_panel",
		ConfigRetryCount:    "5",
		ConfigRatePerSecond: "10",
	})
	is.NoErr(err)
	is.Equal(a.Config.RetryCount, 5)
	is.Equal(a.Sink.State(), StateUninitialized)
	is.True(a.Destination != Destination(a.Sink)) // wrapped in the rate limiter
	_, ok := a.Source.(Pauser)
	is.True(ok)

	store.EXPECT().Open(gomock.Any()).Return(nil)
	store.EXPECT().Close(gomock.Any()).Return(nil)
	is.NoErr(a.Destination.Configure(ctx))
	is.NoErr(a.Destination.Close(ctx))
}

func TestConnector_Assemble_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]string
	}{
		{name: "missing destination", cfg: map[string]string{ConfigSchemaPreset: "solar_panel"}},
		{name: "unknown destination", cfg: map[string]string{ConfigDestination: "oracle", ConfigSchemaPreset: "solar_panel"}},
		{name: "missing schema", cfg: map[string]string{ConfigDestination: "mock"}},
		{name: "bad log level", cfg: map[string]string{ConfigDestination: "mock", ConfigSchemaPreset: "solar_panel", ConfigLogLevel: "loud"}},
		{name: "store fails", cfg: map[string]string{ConfigDestination: "mock", ConfigSchemaPreset: "solar_panel", "mock.dsn": "broken"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			_, err := testConnector(nil).Assemble(testContext(t), tt.cfg)
			is.True(err != nil)
		})
	}
}
