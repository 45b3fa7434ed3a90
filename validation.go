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
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
)

var (
	ErrInvalidParameterValue    = errors.New("invalid parameter value")
	ErrInvalidParameterType     = errors.New("invalid parameter type")
	ErrRequiredParameterMissing = errors.New("required parameter is not provided")

	ErrLessThanValidationFail    = errors.New("less than check failed")
	ErrGreaterThanValidationFail = errors.New("greater than check failed")
	ErrInclusionValidationFail   = errors.New("inclusion check failed")
	ErrExclusionValidationFail   = errors.New("exclusion check failed")
	ErrRegexValidationFail       = errors.New("regex check failed")
)

const (
	ParameterTypeString ParameterType = iota + 1
	ParameterTypeInt
	ParameterTypeFloat
	ParameterTypeBool
	ParameterTypeFile
	ParameterTypeDuration
)

type ParameterType int

func (t ParameterType) String() string {
	switch t {
	case ParameterTypeString:
		return "string"
	case ParameterTypeInt:
		return "int"
	case ParameterTypeFloat:
		return "float"
	case ParameterTypeBool:
		return "bool"
	case ParameterTypeFile:
		return "file"
	case ParameterTypeDuration:
		return "duration"
	default:
		return fmt.Sprintf("ParameterType(%d)", int(t))
	}
}

func (t ParameterType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Validation checks a single parameter value.
type Validation interface {
	Validate(value string) error
}

type ValidationRequired struct{}

func (v ValidationRequired) Validate(value string) error {
	if value == "" {
		return ErrRequiredParameterMissing
	}
	return nil
}

type ValidationLessThan struct {
	Value float64
}

func (v ValidationLessThan) Validate(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number: %w", value, ErrInvalidParameterValue)
	}
	if !(f < v.Value) {
		return fmt.Errorf("%q should be less than %v: %w", value, v.Value, ErrLessThanValidationFail)
	}
	return nil
}

type ValidationGreaterThan struct {
	Value float64
}

func (v ValidationGreaterThan) Validate(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number: %w", value, ErrInvalidParameterValue)
	}
	if !(f > v.Value) {
		return fmt.Errorf("%q should be greater than %v: %w", value, v.Value, ErrGreaterThanValidationFail)
	}
	return nil
}

type ValidationInclusion struct {
	List []string
}

func (v ValidationInclusion) Validate(value string) error {
	if !slices.Contains(v.List, value) {
		return fmt.Errorf("%q value must be included in the list [%s]: %w", value, strings.Join(v.List, ","), ErrInclusionValidationFail)
	}
	return nil
}

type ValidationExclusion struct {
	List []string
}

func (v ValidationExclusion) Validate(value string) error {
	if slices.Contains(v.List, value) {
		return fmt.Errorf("%q value must be excluded from the list [%s]: %w", value, strings.Join(v.List, ","), ErrExclusionValidationFail)
	}
	return nil
}

type ValidationRegex struct {
	Regex *regexp.Regexp
}

func (v ValidationRegex) Validate(value string) error {
	if !v.Regex.MatchString(value) {
		return fmt.Errorf("%q should match the regex %q: %w", value, v.Regex.String(), ErrRegexValidationFail)
	}
	return nil
}

// Validate checks cfg against the parameters. Missing values are replaced by
// parameter defaults before they are checked. Keys that are not declared are
// ignored, a configuration is shared by several components.
func (p Parameters) Validate(cfg map[string]string) error {
	var errs error
	for key, param := range p {
		value := cfg[key]
		if value == "" {
			value = param.Default
		}
		if err := param.validate(value); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("error validating %q: %w", key, err))
		}
	}
	return errs
}

func (p Parameter) validate(value string) error {
	var errs error
	for _, v := range p.Validations {
		if _, ok := v.(ValidationRequired); !ok && value == "" {
			continue
		}
		errs = multierr.Append(errs, v.Validate(value))
	}
	if value == "" || errs != nil {
		return errs
	}
	return validateType(p.Type, value)
}

func validateType(t ParameterType, value string) error {
	var err error
	switch t {
	case ParameterTypeInt:
		_, err = strconv.Atoi(value)
	case ParameterTypeFloat:
		_, err = strconv.ParseFloat(value, 64)
	case ParameterTypeBool:
		_, err = strconv.ParseBool(value)
	case ParameterTypeDuration:
		_, err = parseDuration(value)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%q value is not a %v: %w", value, t, ErrInvalidParameterType)
	}
	return nil
}

// parseDuration accepts Go durations and plain numbers, which are seconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}
