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
	"testing"
	"time"

	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

// BenchmarkStore is a benchmark that any store implementation can run to
// figure out its write throughput. Every iteration writes one batch of
// batchSize rows generated from s.
// The function should be manually called from a benchmark function:
//
//	func BenchmarkStore(b *testing.B) {
//	    // set up test dependencies ...
//	    connector.BenchmarkStore(b, myStore, schema.Presets["solar_panel"], 500)
//	}
//
// The benchmark reports the time to open and close the store, the latency of
// the first write and the rows written per second.
func BenchmarkStore(b *testing.B, st Store, s schema.Schema, batchSize int) {
	bm := benchmarkStore{store: st, schema: s, batchSize: batchSize}
	bm.Run(b)
}

type benchmarkStore struct {
	store     Store
	schema    schema.Schema
	batchSize int

	// measures
	open       time.Duration
	firstWrite time.Duration
	allWrites  time.Duration
	close      time.Duration
}

func (bm *benchmarkStore) Run(b *testing.B) {
	ctx := context.Background()

	bm.open = bm.measure(func() {
		if err := bm.store.Open(ctx); err != nil {
			b.Fatal("Open:", err)
		}
	})

	start := time.Now().UTC().Truncate(time.Millisecond)
	batches := make([][]Row, b.N)
	for i := range batches {
		// distinct times keep keyed stores from deduplicating
		batches[i] = AcceptanceRows(bm.schema, bm.batchSize, start.Add(time.Duration(i*bm.batchSize)*time.Second))
	}

	b.ResetTimer()
	bm.firstWrite = bm.measure(func() {
		if err := bm.store.Write(ctx, batches[0]); err != nil {
			b.Fatal("Write:", err)
		}
	})
	bm.allWrites = bm.measure(func() {
		for _, rows := range batches[1:] {
			if err := bm.store.Write(ctx, rows); err != nil {
				b.Fatal("Write:", err)
			}
		}
	})
	b.StopTimer()

	bm.close = bm.measure(func() {
		if err := bm.store.Close(ctx); err != nil {
			b.Fatal("Close:", err)
		}
	})

	bm.reportMetrics(b)
}

func (*benchmarkStore) measure(f func()) time.Duration {
	start := time.Now()
	f()
	return time.Since(start)
}

func (bm *benchmarkStore) reportMetrics(b *testing.B) {
	b.ReportMetric(0, "ns/op") // suppress ns/op metric, it is misleading in this benchmark

	b.ReportMetric(bm.open.Seconds(), "open")
	b.ReportMetric(bm.close.Seconds(), "close")
	b.ReportMetric(bm.firstWrite.Seconds(), "firstWrite")
	if b.N > 1 {
		b.ReportMetric(float64((b.N-1)*bm.batchSize)/bm.allWrites.Seconds(), "rows/s")
	}
}
