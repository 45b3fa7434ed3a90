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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMissing is reported for a required field that is absent or null.
var ErrMissing = errors.New("required field is missing")

// FieldError describes a field that could not be converted.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// number is implemented by json.Number and equivalent types of alternative
// JSON decoders.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// Flatten joins nested objects into a single level map keyed by dotted
// paths. Arrays and scalars are kept as they are.
func Flatten(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	flatten("", fields, out)
	return out
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// Decode converts the fields of a message into column values aligned with
// Columns. Fields that are not part of the schema are ignored.
func (s Schema) Decode(fields map[string]any) ([]any, error) {
	flat := Flatten(fields)
	values := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		v, err := c.coerce(flat[c.Path])
		if err != nil {
			return nil, &FieldError{Field: c.Path, Err: err}
		}
		values[i] = v
	}
	return values, nil
}

// DecodeTime extracts the row time from the message. It must only be called
// when Time.Path is set.
func (s Schema) DecodeTime(fields map[string]any) (time.Time, error) {
	raw, ok := Flatten(fields)[s.Time.Path]
	if !ok || raw == nil {
		return time.Time{}, &FieldError{Field: s.Time.Path, Err: ErrMissing}
	}
	unit := s.Time.Unit
	if unit == 0 {
		unit = DefaultUnit
	}
	t, err := toTime(raw, unit)
	if err != nil {
		return time.Time{}, &FieldError{Field: s.Time.Path, Err: err}
	}
	return t, nil
}

func (c Column) coerce(v any) (any, error) {
	if v == nil {
		if c.Nullable {
			return nil, nil
		}
		return nil, ErrMissing
	}
	switch c.Type {
	case TypeString:
		return toString(v)
	case TypeFloat:
		return toFloat(v)
	case TypeInt:
		return toInt(v)
	case TypeBool:
		return toBool(v)
	case TypeTime:
		return toTime(v, c.unitOrDefault())
	default:
		return nil, fmt.Errorf("unsupported column type %v", c.Type)
	}
}

func toString(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case number:
		return v.String(), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	}
	if i, ok := asInt(v); ok {
		return strconv.FormatInt(i, 10), nil
	}
	return "", fmt.Errorf("can not use %T as string", v)
}

func toFloat(v any) (float64, error) {
	switch v := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("can not parse %q as float", v)
		}
		return f, nil
	case bool:
		return 0, fmt.Errorf("can not use bool %v as float", v)
	}
	if f, ok := asFloat(v); ok {
		return f, nil
	}
	return 0, fmt.Errorf("can not use %T as float", v)
}

func toInt(v any) (int64, error) {
	switch v := v.(type) {
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return integral(f)
		}
		return 0, fmt.Errorf("can not parse %q as int", v)
	case bool:
		return 0, fmt.Errorf("can not use bool %v as int", v)
	}
	if i, ok := asInt(v); ok {
		return i, nil
	}
	if f, ok := asFloat(v); ok {
		return integral(f)
	}
	return 0, fmt.Errorf("can not use %T as int", v)
}

func toBool(v any) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("can not parse %q as bool", v)
		}
		return b, nil
	}
	if i, ok := asInt(v); ok && (i == 0 || i == 1) {
		return i == 1, nil
	}
	return false, fmt.Errorf("can not use %v as bool", v)
}

func integral(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func asInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case number:
		i, err := v.Int64()
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case number:
		f, err := v.Float64()
		return f, err == nil
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func (c Column) unitOrDefault() Unit {
	if c.Unit == 0 {
		return DefaultUnit
	}
	return c.Unit
}
