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

package internal

import (
	"time"
)

// EnqueueStatus reports the state of a buffer after an item was added.
type EnqueueStatus int

const (
	// Scheduled means the item waits for more items or the delay threshold.
	Scheduled EnqueueStatus = iota + 1
	// Ready means the buffer reached the size threshold.
	Ready
)

// Batcher groups items by key into batches bounded by size and age. It is not
// safe for concurrent use, the owner drives it from a single goroutine and
// passes the current time explicitly.
type Batcher[K comparable, T any] struct {
	sizeThreshold  int
	delayThreshold time.Duration

	buffers map[K]*buffer[T]
	// keys keeps the order in which buffers were created.
	keys []K
}

type buffer[T any] struct {
	items []T
	since time.Time
}

func NewBatcher[K comparable, T any](sizeThreshold int, delayThreshold time.Duration) *Batcher[K, T] {
	if sizeThreshold < 1 {
		sizeThreshold = 1
	}
	return &Batcher[K, T]{
		sizeThreshold:  sizeThreshold,
		delayThreshold: delayThreshold,
		buffers:        make(map[K]*buffer[T]),
	}
}

// Enqueue appends item to the buffer of key.
func (b *Batcher[K, T]) Enqueue(key K, item T, now time.Time) EnqueueStatus {
	buf, ok := b.buffers[key]
	if !ok {
		buf = &buffer[T]{}
		b.buffers[key] = buf
		b.keys = append(b.keys, key)
	}
	if len(buf.items) == 0 {
		buf.since = now
	}
	buf.items = append(buf.items, item)
	if len(buf.items) >= b.sizeThreshold {
		return Ready
	}
	return Scheduled
}

// Take removes and returns up to the size threshold of items buffered for
// key, oldest first.
func (b *Batcher[K, T]) Take(key K, now time.Time) []T {
	buf, ok := b.buffers[key]
	if !ok || len(buf.items) == 0 {
		return nil
	}
	n := min(len(buf.items), b.sizeThreshold)
	out := make([]T, n)
	copy(out, buf.items)
	rest := buf.items[n:]
	buf.items = append(buf.items[:0:0], rest...)
	buf.since = now
	return out
}

// Len returns the number of items buffered for key.
func (b *Batcher[K, T]) Len(key K) int {
	if buf, ok := b.buffers[key]; ok {
		return len(buf.items)
	}
	return 0
}

// Total returns the number of buffered items across all keys.
func (b *Batcher[K, T]) Total() int {
	var n int
	for _, buf := range b.buffers {
		n += len(buf.items)
	}
	return n
}

// Ready returns the keys whose buffers reached the size threshold or whose
// oldest item waited longer than the delay threshold.
func (b *Batcher[K, T]) Ready(now time.Time, skip func(K) bool) []K {
	var out []K
	for _, k := range b.keys {
		buf := b.buffers[k]
		if len(buf.items) == 0 || (skip != nil && skip(k)) {
			continue
		}
		if len(buf.items) >= b.sizeThreshold || !now.Before(buf.since.Add(b.delayThreshold)) {
			out = append(out, k)
		}
	}
	return out
}

// Pending returns all keys with buffered items in creation order.
func (b *Batcher[K, T]) Pending() []K {
	var out []K
	for _, k := range b.keys {
		if len(b.buffers[k].items) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// NextDeadline returns the earliest time a buffer reaches the delay
// threshold. The second value is false if nothing is buffered.
func (b *Batcher[K, T]) NextDeadline(skip func(K) bool) (time.Time, bool) {
	var next time.Time
	var found bool
	for _, k := range b.keys {
		buf := b.buffers[k]
		if len(buf.items) == 0 || (skip != nil && skip(k)) {
			continue
		}
		d := buf.since.Add(b.delayThreshold)
		if !found || d.Before(next) {
			next, found = d, true
		}
	}
	return next, found
}
