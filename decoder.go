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
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

// Decoder turns a record into a row. Errors returned by Decode cause the
// record to be skipped, they never fail the batch.
type Decoder interface {
	Decode(Record) (Row, error)
}

// DecoderFunc is an adapter to use ordinary functions as decoders.
type DecoderFunc func(Record) (Row, error)

func (f DecoderFunc) Decode(r Record) (Row, error) { return f(r) }

// SchemaDecoder decodes JSON record values according to a schema.
type SchemaDecoder struct {
	Schema schema.Schema
}

func NewSchemaDecoder(s schema.Schema) *SchemaDecoder {
	return &SchemaDecoder{Schema: s}
}

func (d *SchemaDecoder) Decode(r Record) (Row, error) {
	fields, err := d.fields(r.Value)
	if err != nil {
		return Row{}, &DecodeError{Err: err}
	}

	values, err := d.Schema.Decode(fields)
	if err != nil {
		return Row{}, toDecodeError(err)
	}

	ts := r.Timestamp
	if d.Schema.Time.Path != "" {
		ts, err = d.Schema.DecodeTime(fields)
		if err != nil {
			return Row{}, toDecodeError(err)
		}
	} else if ts.IsZero() {
		return Row{}, &DecodeError{Err: errors.New("record has no timestamp")}
	}

	return Row{
		Position: r.Position(),
		Time:     ts.UTC(),
		Values:   values,
	}, nil
}

func (d *SchemaDecoder) fields(v Data) (map[string]any, error) {
	switch v := v.(type) {
	case nil:
		return nil, errors.New("record has no value")
	case StructuredData:
		return v, nil
	case RawData:
		if len(v) == 0 {
			return nil, errors.New("record value is empty")
		}
		var fields map[string]any
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("value is not a JSON object: %w", err)
		}
		if fields == nil {
			return nil, errors.New("value is null")
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("unexpected data type %T", v)
	}
}

func toDecodeError(err error) error {
	var fe *schema.FieldError
	if errors.As(err, &fe) {
		return &DecodeError{Field: fe.Field, Err: fe.Err}
	}
	return &DecodeError{Err: err}
}
