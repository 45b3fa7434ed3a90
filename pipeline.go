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
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jpillora/backoff"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/csync"
	"go.uber.org/multierr"
	"gopkg.in/tomb.v2"
)

// PipelineConfig controls buffering and shutdown of a pipeline.
type PipelineConfig struct {
	// BufferSize is the maximum number of records in one batch.
	BufferSize int
	// BufferTimeout is the maximum time a record waits for its batch to fill
	// up before the batch is written anyway.
	BufferTimeout time.Duration
	// ShutdownTimeout bounds the time spent flushing buffered records and
	// closing the destination once the pipeline stops.
	ShutdownTimeout time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMetrics sets the metrics updated by the pipeline.
func WithMetrics(m *Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithHealthServer marks h ready while the pipeline is running.
func WithHealthServer(h *HealthServer) PipelineOption {
	return func(p *Pipeline) { p.health = h }
}

// WithReadBackoff sets the delays used when the source returns
// ErrBackoffRetry.
func WithReadBackoff(min, max time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.readBackoff = backoff.Backoff{Factor: 2, Min: min, Max: max}
	}
}

// Pipeline reads records from a source, groups them into per-partition
// batches and delivers the batches to a destination. Positions are
// acknowledged to the source only after their batch was written. Batches
// rejected with backpressure are kept and redelivered after the requested
// delay, while their partition is paused if the source supports it. If it
// cannot be paused, reading stops once the partition has another full batch
// buffered, so at most BufferSize records wait behind a held batch.
type Pipeline struct {
	source Source
	dest   Destination
	cfg    PipelineConfig

	metrics     *Metrics
	health      *HealthServer
	readBackoff backoff.Backoff
	now         func() time.Time
}

func NewPipeline(src Source, dst Destination, cfg PipelineConfig, opts ...PipelineOption) *Pipeline {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	p := &Pipeline{
		source:      src,
		dest:        dst,
		cfg:         cfg,
		readBackoff: backoff.Backoff{Factor: 2, Min: 100 * time.Millisecond, Max: 5 * time.Second},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	return p
}

// Run blocks until the source is exhausted, ctx is canceled or delivery
// fails fatally. On exhaustion and cancellation the buffered records are
// flushed before Run returns, bounded by the shutdown timeout. Cancellation
// is a clean stop and returns nil.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	logger := Logger(ctx)

	if err := p.source.Open(ctx); err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		closeCtx, cancel := internal.ShutdownContext(ctx, p.cfg.ShutdownTimeout)
		defer cancel()
		err = multierr.Append(err, p.source.Close(closeCtx))
	}()

	// the destination is closed even if Configure fails, it may hold a
	// partially opened connection
	defer func() {
		closeCtx, cancel := internal.ShutdownContext(ctx, 0)
		defer cancel()
		closeErr := csync.RunErr(closeCtx, func() error {
			return p.dest.Close(closeCtx)
		}, csync.WithTimeout(p.cfg.ShutdownTimeout))
		err = multierr.Append(err, closeErr)
	}()
	if err := p.dest.Configure(ctx); err != nil {
		return fmt.Errorf("configure destination: %w", err)
	}

	if p.health != nil {
		p.health.SetReady(true)
		defer p.health.SetReady(false)
	}
	logger.Info().
		Int("buffer_size", p.cfg.BufferSize).
		Dur("buffer_timeout", p.cfg.BufferTimeout).
		Msg("pipeline started")

	t, readCtx := tomb.WithContext(ctx)
	records := make(chan Record)
	t.Go(func() error {
		return p.read(readCtx, records)
	})

	d := newDelivery(p)
	runErr := d.run(ctx, records)
	t.Kill(runErr)
	readErr := t.Wait()

	switch {
	case runErr != nil:
		return runErr
	case readErr != nil && !(errors.Is(readErr, context.Canceled) && ctx.Err() != nil):
		return readErr
	}
	logger.Info().Msg("pipeline stopped")
	return nil
}

func (p *Pipeline) read(ctx context.Context, out chan<- Record) error {
	defer close(out)

	b := p.readBackoff
	for {
		r, err := p.source.Read(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				Logger(ctx).Info().Msg("source exhausted")
				return nil
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, ErrBackoffRetry):
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(b.Duration()):
					continue
				}
			default:
				return fmt.Errorf("read from source: %w", err)
			}
		}
		b.Reset()

		select {
		case out <- r:
		case <-ctx.Done():
			return nil
		}
	}
}

// heldBatch is a batch rejected with backpressure, waiting for redelivery.
type heldBatch struct {
	batch     Batch
	notBefore time.Time
	paused    bool
}

// delivery is the state of the write side of a running pipeline. It is only
// used by the goroutine executing Pipeline.Run.
type delivery struct {
	p      *Pipeline
	buf    *internal.Batcher[PartitionKey, Record]
	held   map[PartitionKey]*heldBatch
	pauser Pauser
}

func newDelivery(p *Pipeline) *delivery {
	d := &delivery{
		p:    p,
		buf:  internal.NewBatcher[PartitionKey, Record](p.cfg.BufferSize, p.cfg.BufferTimeout),
		held: make(map[PartitionKey]*heldBatch),
	}
	if pauser, ok := p.source.(Pauser); ok {
		d.pauser = pauser
	}
	return d
}

func (d *delivery) isHeld(key PartitionKey) bool {
	_, ok := d.held[key]
	return ok
}

func (d *delivery) run(ctx context.Context, records <-chan Record) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		d.resetTimer(timer)
		in := records
		if d.full() {
			// the reader blocks until a held batch is delivered
			in = nil
		}
		select {
		case <-ctx.Done():
			return d.drain(ctx)
		case r, ok := <-in:
			if !ok {
				return d.drain(ctx)
			}
			d.p.metrics.RecordsRead.Inc()
			key := PartitionKey{Topic: r.Topic, Partition: r.Partition}
			status := d.buf.Enqueue(key, r, d.p.now())
			if status == internal.Ready && !d.isHeld(key) {
				if err := d.flush(ctx, key); err != nil {
					return err
				}
			}
		case <-timer.C:
			if err := d.tick(ctx); err != nil {
				return err
			}
		}
		d.p.metrics.BufferedRecords.Set(float64(d.buf.Total()))
	}
}

// full reports whether a held partition that is not paused has a complete
// batch buffered. No more records are taken from the source until it is
// delivered.
func (d *delivery) full() bool {
	for key, h := range d.held {
		if !h.paused && d.buf.Len(key) >= d.p.cfg.BufferSize {
			return true
		}
	}
	return false
}

func (d *delivery) resetTimer(timer *time.Timer) {
	next, ok := d.buf.NextDeadline(d.isHeld)
	for _, h := range d.held {
		if !ok || h.notBefore.Before(next) {
			next, ok = h.notBefore, true
		}
	}
	if !ok {
		timer.Stop()
		return
	}
	timer.Reset(max(next.Sub(d.p.now()), 0))
}

// tick redelivers held batches whose delay passed and flushes buffers that
// are due.
func (d *delivery) tick(ctx context.Context) error {
	now := d.p.now()
	for _, key := range d.heldKeys() {
		h := d.held[key]
		if now.Before(h.notBefore) {
			continue
		}
		if err := d.write(ctx, h.batch); err != nil {
			return err
		}
	}
	for _, key := range d.buf.Ready(now, d.isHeld) {
		if err := d.flush(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// flush writes one batch of the partition, then keeps writing while the
// buffer holds a full batch.
func (d *delivery) flush(ctx context.Context, key PartitionKey) error {
	for first := true; first || d.buf.Len(key) >= d.p.cfg.BufferSize; first = false {
		if d.isHeld(key) || ctx.Err() != nil {
			return nil
		}
		records := d.buf.Take(key, d.p.now())
		if len(records) == 0 {
			return nil
		}
		batch := Batch{Topic: key.Topic, Partition: key.Partition, Records: records}
		if err := d.write(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// write delivers a batch. It returns an error only if the pipeline has to
// stop, batches that can be redelivered are held.
func (d *delivery) write(ctx context.Context, batch Batch) error {
	logger := Logger(ctx)
	key := batch.Key()

	start := time.Now()
	res, err := d.p.dest.Write(ctx, batch)
	d.p.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	d.p.metrics.observe(res)

	var bp *BackpressureError
	switch {
	case err == nil:
		d.ack(ctx, batch)
		d.release(ctx, key)
		logger.Debug().
			Stringer("partition", key).
			Int("written", res.Written).
			Int("skipped", res.Skipped).
			Int("attempts", res.Attempts).
			Msg("batch written")
		return nil
	case errors.As(err, &bp):
		d.hold(ctx, batch, res.RetryAfter)
		logger.Warn().Err(err).
			Stringer("partition", key).
			Dur("retry_after", res.RetryAfter).
			Msg("store is overloaded, pausing partition")
		return nil
	case ctx.Err() != nil:
		d.hold(ctx, batch, 0)
		return nil
	case res.Outcome == OutcomeRetryableFailure:
		d.hold(ctx, batch, time.Second)
		logger.Warn().Err(err).Stringer("partition", key).Msg("batch write failed, will retry")
		return nil
	default:
		return fmt.Errorf("write batch to %s: %w", key, err)
	}
}

func (d *delivery) ack(ctx context.Context, batch Batch) {
	if batch.Len() == 0 {
		return
	}
	if err := d.p.source.Ack(ctx, batch.Positions()); err != nil {
		// the records are redelivered by the source, rows are written again
		Logger(ctx).Error().Err(err).
			Stringer("partition", batch.Key()).
			Msg("failed to acknowledge positions")
		return
	}
	d.p.metrics.RecordsAcked.Add(float64(batch.Len()))
}

func (d *delivery) hold(ctx context.Context, batch Batch, retryAfter time.Duration) {
	key := batch.Key()
	h, ok := d.held[key]
	if !ok {
		h = &heldBatch{}
		d.held[key] = h
	}
	h.batch = batch
	h.notBefore = d.p.now().Add(retryAfter)

	if h.paused || d.pauser == nil || retryAfter <= 0 {
		return
	}
	if err := d.pauser.Pause(ctx, key.Topic, key.Partition); err != nil {
		if errors.Is(err, ErrPauseUnsupported) {
			Logger(ctx).Debug().Stringer("partition", key).Msg("partition cannot be paused, reading stops while its buffer is full")
			return
		}
		Logger(ctx).Warn().Err(err).Stringer("partition", key).Msg("failed to pause partition")
		return
	}
	h.paused = true
	d.p.metrics.PausedPartitions.Inc()
}

func (d *delivery) release(ctx context.Context, key PartitionKey) {
	h, ok := d.held[key]
	if !ok {
		return
	}
	delete(d.held, key)
	if !h.paused {
		return
	}
	d.p.metrics.PausedPartitions.Dec()
	if err := d.pauser.Resume(ctx, key.Topic, key.Partition); err != nil {
		Logger(ctx).Warn().Err(err).Stringer("partition", key).Msg("failed to resume partition")
	}
}

func (d *delivery) heldKeys() []PartitionKey {
	keys := make([]PartitionKey, 0, len(d.held))
	for k := range d.held {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		return keys[i].Partition < keys[j].Partition
	})
	return keys
}

// drain delivers held and buffered records with a context detached from
// parent and bounded by the shutdown timeout.
func (d *delivery) drain(parent context.Context) error {
	ctx, cancel := internal.ShutdownContext(parent, d.p.cfg.ShutdownTimeout)
	defer cancel()

	if n := d.buf.Total() + len(d.held); n > 0 {
		Logger(ctx).Info().
			Int("buffered", d.buf.Total()).
			Int("held_batches", len(d.held)).
			Msg("flushing buffered records")
	}

	for _, key := range d.heldKeys() {
		if err := d.drainBatch(ctx, d.held[key].batch); err != nil {
			return err
		}
	}
	for _, key := range d.buf.Pending() {
		for d.buf.Len(key) > 0 {
			batch := Batch{Topic: key.Topic, Partition: key.Partition, Records: d.buf.Take(key, d.p.now())}
			if err := d.drainBatch(ctx, batch); err != nil {
				return err
			}
		}
	}
	d.p.metrics.BufferedRecords.Set(0)
	return nil
}

func (d *delivery) drainBatch(ctx context.Context, batch Batch) error {
	key := batch.Key()
	for {
		if h, ok := d.held[key]; ok {
			if err := sleepCtx(ctx, h.notBefore.Sub(d.p.now())); err != nil {
				return fmt.Errorf("shutdown timeout reached with %d undelivered records: %w", d.undelivered(), err)
			}
			batch = h.batch
		}
		if err := d.write(ctx, batch); err != nil {
			return err
		}
		if !d.isHeld(key) {
			return nil
		}
	}
}

func (d *delivery) undelivered() int {
	n := d.buf.Total()
	for _, h := range d.held {
		n += h.batch.Len()
	}
	return n
}
