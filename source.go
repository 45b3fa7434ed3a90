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
	"io"
	"slices"
	"sync"
)

// Source produces the records a pipeline delivers to its destination.
type Source interface {
	// Open is called once before Read. If needed, the source should open
	// connections in this function.
	Open(context.Context) error

	// Read returns a new Record and is supposed to block until there is either
	// a new record or the context gets cancelled. It can also return the error
	// ErrBackoffRetry to signal it should be called again after a backoff
	// delay, or io.EOF when there are no more records.
	// Read can be called concurrently with Ack.
	Read(context.Context) (Record, error)

	// Ack signals that the records with the supplied positions are durably
	// stored. Positions are passed in the order they were read. Ack can be
	// called concurrently with Read.
	Ack(context.Context, []Position) error

	// Close signals that there will be no more calls to any other function.
	Close(context.Context) error
}

// Pauser is implemented by sources that can stop fetching a single topic
// partition while its writes are under backpressure. Pause returns
// ErrPauseUnsupported if the partition keeps producing records.
type Pauser interface {
	Pause(ctx context.Context, topic string, partition int32) error
	Resume(ctx context.Context, topic string, partition int32) error
}

// SliceSource is a Source that returns a fixed list of records and then
// io.EOF. It records acknowledged positions. Records of paused partitions
// are held back, Read returns ErrBackoffRetry while only those are left.
type SliceSource struct {
	m       sync.Mutex
	records []Record
	acked   []Position
	paused  map[PartitionKey]int
	closed  bool
}

var (
	_ Source = (*SliceSource)(nil)
	_ Pauser = (*SliceSource)(nil)
)

func NewSliceSource(records ...Record) *SliceSource {
	return &SliceSource{
		records: slices.Clone(records),
		paused:  make(map[PartitionKey]int),
	}
}

func (s *SliceSource) Open(context.Context) error { return nil }

func (s *SliceSource) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if len(s.records) == 0 {
		return Record{}, io.EOF
	}
	for i, r := range s.records {
		if s.paused[PartitionKey{Topic: r.Topic, Partition: r.Partition}] > 0 {
			continue
		}
		if i == 0 {
			s.records = s.records[1:]
		} else {
			s.records = slices.Delete(s.records, i, i+1)
		}
		return r, nil
	}
	return Record{}, ErrBackoffRetry
}

func (s *SliceSource) Ack(_ context.Context, positions []Position) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.acked = append(s.acked, positions...)
	return nil
}

func (s *SliceSource) Pause(_ context.Context, topic string, partition int32) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.paused[PartitionKey{Topic: topic, Partition: partition}]++
	return nil
}

func (s *SliceSource) Resume(_ context.Context, topic string, partition int32) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.paused[PartitionKey{Topic: topic, Partition: partition}]--
	return nil
}

func (s *SliceSource) Close(context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.closed = true
	return nil
}

// Acked returns a copy of all acknowledged positions.
func (s *SliceSource) Acked() []Position {
	s.m.Lock()
	defer s.m.Unlock()
	return append([]Position(nil), s.acked...)
}

// Paused reports whether the partition is currently paused.
func (s *SliceSource) Paused(topic string, partition int32) bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.paused[PartitionKey{Topic: topic, Partition: partition}] > 0
}

// Closed reports whether Close was called.
func (s *SliceSource) Closed() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.closed
}
