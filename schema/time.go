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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Unit is the unit of an epoch timestamp.
type Unit int

const (
	UnitSeconds Unit = iota + 1
	UnitMillis
	UnitMicros
	UnitNanos
)

// DefaultUnit is used for the row time and for time columns without a unit.
const DefaultUnit = UnitNanos

func (u Unit) String() string {
	switch u {
	case UnitSeconds:
		return "s"
	case UnitMillis:
		return "ms"
	case UnitMicros:
		return "us"
	case UnitNanos:
		return "ns"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// ParseUnit parses one of s, ms, us or ns.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "sec", "seconds":
		return UnitSeconds, nil
	case "ms", "millis", "milliseconds":
		return UnitMillis, nil
	case "us", "µs", "micros", "microseconds":
		return UnitMicros, nil
	case "ns", "nanos", "nanoseconds":
		return UnitNanos, nil
	default:
		return 0, fmt.Errorf("unknown time unit %q", s)
	}
}

// Duration returns the length of one unit.
func (u Unit) Duration() time.Duration {
	switch u {
	case UnitSeconds:
		return time.Second
	case UnitMillis:
		return time.Millisecond
	case UnitMicros:
		return time.Microsecond
	default:
		return time.Nanosecond
	}
}

// FromInt converts an epoch integer in unit u to a UTC time.
func (u Unit) FromInt(v int64) time.Time {
	switch u {
	case UnitSeconds:
		return time.Unix(v, 0).UTC()
	case UnitMillis:
		return time.UnixMilli(v).UTC()
	case UnitMicros:
		return time.UnixMicro(v).UTC()
	default:
		return time.Unix(0, v).UTC()
	}
}

// FromFloat converts a fractional epoch in unit u to a UTC time.
func (u Unit) FromFloat(v float64) (time.Time, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, fmt.Errorf("invalid epoch %v", v)
	}
	ns := v * float64(u.Duration())
	if ns > math.MaxInt64 || ns < math.MinInt64 {
		return time.Time{}, fmt.Errorf("epoch %v%s out of range", v, u)
	}
	return time.Unix(0, int64(ns)).UTC(), nil
}

// ToInt converts t to an epoch integer in unit u.
func (u Unit) ToInt(t time.Time) int64 {
	switch u {
	case UnitSeconds:
		return t.Unix()
	case UnitMillis:
		return t.UnixMilli()
	case UnitMicros:
		return t.UnixMicro()
	default:
		return t.UnixNano()
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// toTime converts a decoded field to a time. Numbers and numeric strings are
// epochs in unit u, other strings are parsed as RFC 3339 and a few close
// variants.
func toTime(v any, u Unit) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return u.FromInt(i), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return u.FromFloat(f)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("can not parse %q as time", v)
	case bool:
		return time.Time{}, fmt.Errorf("can not use bool %v as time", v)
	}

	if i, ok := asInt(v); ok {
		return u.FromInt(i), nil
	}
	if f, ok := asFloat(v); ok {
		return u.FromFloat(f)
	}
	return time.Time{}, fmt.Errorf("can not use %T as time", v)
}
