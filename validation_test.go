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
	"regexp"
	"testing"

	"github.com/matryer/is"
	"go.uber.org/multierr"
)

func TestValidation_Param_Type(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		param   Parameter
		wantErr bool
	}{
		{name: "valid int", value: "3", param: Parameter{Type: ParameterTypeInt}},
		{name: "invalid int", value: "3.3", param: Parameter{Type: ParameterTypeInt}, wantErr: true},
		{name: "valid float", value: "3.3", param: Parameter{Type: ParameterTypeFloat}},
		{name: "invalid float", value: "not-a-number", param: Parameter{Type: ParameterTypeFloat}, wantErr: true},
		{name: "valid default float", value: "", param: Parameter{Default: "3", Type: ParameterTypeFloat}},
		{name: "valid bool", value: "1", param: Parameter{Type: ParameterTypeBool}}, // 1, t, T, True, TRUE are all valid booleans
		{name: "invalid bool", value: "not-a-bool", param: Parameter{Type: ParameterTypeBool}, wantErr: true},
		{name: "valid duration", value: "1s", param: Parameter{Type: ParameterTypeDuration}},
		{name: "valid duration seconds", value: "2.5", param: Parameter{Type: ParameterTypeDuration}},
		{name: "invalid duration", value: "soon", param: Parameter{Type: ParameterTypeDuration}, wantErr: true},
		{name: "empty value skips type check", value: "", param: Parameter{Type: ParameterTypeInt}},
		{name: "any string", value: "whatever", param: Parameter{Type: ParameterTypeString}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			err := Parameters{"param1": tt.param}.Validate(map[string]string{"param1": tt.value})
			if tt.wantErr {
				is.True(errors.Is(err, ErrInvalidParameterType))
			} else {
				is.NoErr(err)
			}
		})
	}
}

func TestValidation_Param_Value(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		validation Validation
		wantErr    error
	}{
		{name: "required provided", value: "v", validation: ValidationRequired{}},
		{name: "required missing", value: "", validation: ValidationRequired{}, wantErr: ErrRequiredParameterMissing},
		{name: "less than ok", value: "9", validation: ValidationLessThan{Value: 10}},
		{name: "less than fail", value: "10", validation: ValidationLessThan{Value: 10}, wantErr: ErrLessThanValidationFail},
		{name: "greater than ok", value: "1", validation: ValidationGreaterThan{Value: 0}},
		{name: "greater than fail", value: "0", validation: ValidationGreaterThan{Value: 0}, wantErr: ErrGreaterThanValidationFail},
		{name: "greater than not a number", value: "x", validation: ValidationGreaterThan{Value: 0}, wantErr: ErrInvalidParameterValue},
		{name: "inclusion ok", value: "ms", validation: ValidationInclusion{List: []string{"s", "ms"}}},
		{name: "inclusion fail", value: "h", validation: ValidationInclusion{List: []string{"s", "ms"}}, wantErr: ErrInclusionValidationFail},
		{name: "exclusion ok", value: "a", validation: ValidationExclusion{List: []string{"b"}}},
		{name: "exclusion fail", value: "b", validation: ValidationExclusion{List: []string{"b"}}, wantErr: ErrExclusionValidationFail},
		{name: "regex ok", value: "public.readings", validation: ValidationRegex{Regex: tableNameRegex}},
		{name: "regex fail", value: "drop table;", validation: ValidationRegex{Regex: regexp.MustCompile(`^\w+$`)}, wantErr: ErrRegexValidationFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			params := Parameters{"param1": {Type: ParameterTypeString, Validations: []Validation{tt.validation}}}
			err := params.Validate(map[string]string{"param1": tt.value})
			if tt.wantErr != nil {
				is.True(errors.Is(err, tt.wantErr))
			} else {
				is.NoErr(err)
			}
		})
	}
}

func TestValidation_OptionalEmptySkipsValidations(t *testing.T) {
	is := is.New(t)
	params := Parameters{"unit": {
		Type:        ParameterTypeString,
		Validations: []Validation{ValidationInclusion{List: []string{"s"}}},
	}}
	is.NoErr(params.Validate(map[string]string{}))
}

func TestValidation_Multi_Error(t *testing.T) {
	is := is.New(t)

	params := Parameters{
		"limit": {
			Type: ParameterTypeInt,
			Validations: []Validation{
				ValidationRequired{},
				ValidationGreaterThan{Value: 0},
			},
		},
		"option": {
			Type: ParameterTypeString,
			Validations: []Validation{
				ValidationInclusion{List: []string{"one", "two"}},
				ValidationExclusion{List: []string{"three", "four"}},
				ValidationRegex{Regex: regexp.MustCompile("[a-z]")},
			},
		},
	}
	cfg := map[string]string{
		"limit":  "-1",
		"option": "three",
	}

	err := params.Validate(cfg)
	is.True(err != nil)

	errs := multierr.Errors(err)
	is.Equal(len(errs), 2) // one error per parameter

	var got []error
	for _, e := range errs {
		got = append(got, multierr.Errors(errors.Unwrap(e))...)
	}
	is.Equal(len(got), 3) // greater than, inclusion, exclusion
	is.True(errors.Is(err, ErrGreaterThanValidationFail))
	is.True(errors.Is(err, ErrInclusionValidationFail))
	is.True(errors.Is(err, ErrExclusionValidationFail))
	is.True(!errors.Is(err, ErrRegexValidationFail))
}
