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
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Record represents a single message handed to the sink by a source. The
// message body is carried in Value and is decoded according to the configured
// schema before it is persisted.
type Record struct {
	// Key is the opaque message key. It may be nil.
	Key []byte `json:"key"`
	// Value holds the message body.
	Value Data `json:"value"`
	// Timestamp is the time the message was produced, as reported by the
	// transport. It is used as the row time when the schema does not name a
	// time field.
	Timestamp time.Time `json:"timestamp"`

	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`

	// Headers contains additional metadata attached to the message.
	Headers Metadata `json:"headers"`
}

type Metadata map[string]string

// Position returns the position of the record in its topic partition.
func (r Record) Position() Position {
	return Position{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset}
}

// Bytes returns the JSON encoding of the Record.
func (r Record) Bytes() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		panic(fmt.Errorf("error while marshaling Record as JSON: %w", err))
	}
	return b
}

// Position identifies a record inside a partitioned topic. Positions are
// acknowledged back to the source once the record is durably stored.
type Position struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s/%d@%d", p.Topic, p.Partition, p.Offset)
}

// PartitionKey identifies a topic partition.
type PartitionKey struct {
	Topic     string
	Partition int32
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%d", k.Topic, k.Partition)
}

// Data is a structure that contains some bytes. The only structs implementing
// Data are RawData and StructuredData.
type Data interface {
	isData()
	Bytes() []byte
}

// RawData contains unstructured data in form of a byte slice.
type RawData []byte

func (RawData) isData() {}

// Bytes simply casts RawData to a byte slice.
func (d RawData) Bytes() []byte {
	return d
}

// StructuredData contains data in form of a map with string keys and arbitrary
// values.
type StructuredData map[string]interface{}

func (StructuredData) isData() {}

// Bytes returns the JSON encoding of the map.
func (d StructuredData) Bytes() []byte {
	b, err := json.Marshal(d)
	if err != nil {
		panic(fmt.Errorf("error while marshaling StructuredData as JSON: %w", err))
	}
	return b
}

// Batch is an ordered group of records taken from a single topic partition.
type Batch struct {
	Topic     string
	Partition int32
	Records   []Record
}

// NewBatch creates a batch for the partition of the first record. All records
// are expected to come from the same partition.
func NewBatch(records ...Record) Batch {
	b := Batch{Records: records}
	if len(records) > 0 {
		b.Topic = records[0].Topic
		b.Partition = records[0].Partition
	}
	return b
}

func (b Batch) Len() int {
	return len(b.Records)
}

func (b Batch) Key() PartitionKey {
	return PartitionKey{Topic: b.Topic, Partition: b.Partition}
}

// Positions returns the positions of all records in the batch, in order.
func (b Batch) Positions() []Position {
	out := make([]Position, len(b.Records))
	for i, r := range b.Records {
		out[i] = r.Position()
	}
	return out
}

// Row is a decoded record ready to be persisted. Values are aligned with the
// columns of the schema the row was decoded with.
type Row struct {
	Position Position
	Time     time.Time
	Values   []any
}
