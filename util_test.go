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

func TestParseConfig_Simple_Struct(t *testing.T) {
	is := is.New(t)

	type Store struct {
		URL     string        `mapstructure:"postgres.url"`
		Pool    int           `mapstructure:"postgres.pool_size"`
		Timeout time.Duration `mapstructure:"postgres.timeout"`
		Tags    []string      `mapstructure:"postgres.tags"`
		Verbose bool          `mapstructure:"postgres.verbose"`
	}

	input := map[string]string{
		"postgres.url":       "postgres://localhost:5432/solar",
		"postgres.pool_size": "4",
		"postgres.timeout":   "5",
		"postgres.tags":      "a,b",
		"postgres.verbose":   "true",
		"unrelated":          "ignored",
	}
	want := Store{
		URL:     "postgres://localhost:5432/solar",
		Pool:    4,
		Timeout: 5 * time.Second,
		Tags:    []string{"a", "b"},
		Verbose: true,
	}

	var got Store
	err := ParseConfig(input, &got)
	is.NoErr(err)
	is.Equal(want, got)
}

func TestParseConfig_Embedded_Struct(t *testing.T) {
	is := is.New(t)
	type Retry struct {
		Count int `mapstructure:"retry_count"`
	}
	type Settings struct {
		Retry `mapstructure:",squash"`
		Table string `mapstructure:"target_table"`
	}

	var got Settings
	err := ParseConfig(map[string]string{"retry_count": "3", "target_table": "t"}, &got)
	is.NoErr(err)
	is.Equal(got, Settings{Retry: Retry{Count: 3}, Table: "t"})
}

func TestDecodeConfig_AppliesDefaults(t *testing.T) {
	is := is.New(t)
	params := Parameters{
		"size": {Default: "10", Type: ParameterTypeInt},
		"name": {Type: ParameterTypeString, Validations: []Validation{ValidationRequired{}}},
	}
	var got struct {
		Size int    `mapstructure:"size"`
		Name string `mapstructure:"name"`
	}

	err := DecodeConfig(map[string]string{"name": "x"}, params, &got)
	is.NoErr(err)
	is.Equal(got.Size, 10)

	err = DecodeConfig(map[string]string{}, params, &got)
	is.True(err != nil) // name is required
}

func TestMergeParameters(t *testing.T) {
	is := is.New(t)

	got := MergeParameters(
		Parameters{"a": {Type: ParameterTypeString}},
		Parameters{"b": {Type: ParameterTypeInt}, "a": {Type: ParameterTypeString, Default: "x"}},
	)
	is.Equal(len(got), 2)
	is.Equal(got["a"].Default, "x")

	defer func() {
		is.True(recover() != nil) // conflicting types panic
	}()
	MergeParameters(Parameters{"a": {Type: ParameterTypeString}}, Parameters{"a": {Type: ParameterTypeInt}})
}
