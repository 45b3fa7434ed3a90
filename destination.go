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

//go:generate mockgen -destination=mock_destination_test.go -self_package=github.com/quixio/demo-solar-farm-data-generator-sub001 -package=connector -write_package_comment=false . Destination
//go:generate mockgen -destination=mock_store_test.go -self_package=github.com/quixio/demo-solar-farm-data-generator-sub001 -package=connector -write_package_comment=false . Store

package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store is the persistence backend of a sink. Implementations adapt a
// concrete database or message bus.
type Store interface {
	// Open establishes the connection and prepares the target table. It is
	// called once by Sink.Configure.
	Open(context.Context) error
	// Write persists all rows in a single call. A nil error means every row
	// is durable. Write is never called with an empty slice.
	Write(context.Context, []Row) error
	// Close releases the connection. It is called right after a failed Open,
	// so implementations need to handle partially opened state, and Open may
	// be called again afterwards.
	Close(context.Context) error
}

// Destination receives batches of records and reports the outcome of each
// delivery attempt.
type Destination interface {
	// Configure connects to the backing store. It must succeed before Write
	// is called.
	Configure(context.Context) error
	// Write delivers a batch. The returned error is nil only when the
	// outcome is OutcomeSuccess.
	Write(context.Context, Batch) (WriteResult, error)
	// Close releases all resources. It is idempotent.
	Close(context.Context) error
}

// Outcome is the result category of a batch write.
type Outcome int

const (
	// OutcomeSuccess means all decodable records were persisted and the
	// batch can be acknowledged.
	OutcomeSuccess Outcome = iota + 1
	// OutcomeRetryableFailure means the write failed but may succeed when
	// the same batch is delivered again.
	OutcomeRetryableFailure
	// OutcomeBackpressure means the store is overloaded, the caller should
	// pause intake and redeliver the batch after WriteResult.RetryAfter.
	OutcomeBackpressure
	// OutcomeFatal means the sink stopped, the batch will not be written.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryableFailure:
		return "retryable_failure"
	case OutcomeBackpressure:
		return "backpressure"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// WriteResult describes what happened to a batch.
type WriteResult struct {
	Outcome Outcome
	// Attempts is the number of store calls made for the batch.
	Attempts int
	// Written is the number of rows persisted.
	Written int
	// Skipped is the number of records dropped because they could not be
	// decoded.
	Skipped int
	// RetryAfter is set for OutcomeBackpressure.
	RetryAfter time.Duration
}

// SinkState is the lifecycle state of a Sink.
type SinkState int

const (
	StateUninitialized SinkState = iota
	StateReady
	StateWriting
	StateFailed
	StateClosed
)

func (s SinkState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateWriting:
		return "writing"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SinkState(%d)", int(s))
	}
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithRetryPolicy sets the retry policy, DefaultRetryPolicy is used
// otherwise.
func WithRetryPolicy(p RetryPolicy) SinkOption {
	return func(s *Sink) { s.policy = p }
}

// WithErrorClassifier overrides the classifier of the store.
func WithErrorClassifier(c ErrorClassifier) SinkOption {
	return func(s *Sink) { s.classifier = c }
}

// Sink is a Destination that decodes records into rows and persists them in
// a Store, retrying failed writes according to its RetryPolicy. Writes are
// serialized, at most one store call is in flight at any time.
type Sink struct {
	store      Store
	decoder    Decoder
	policy     RetryPolicy
	classifier ErrorClassifier

	// m guards state and serializes Write calls.
	m      sync.Mutex
	state  SinkState
	opened bool
}

var _ Destination = (*Sink)(nil)

// NewSink creates a sink writing to store. If the store implements
// ErrorClassifier it is used to classify store errors.
func NewSink(store Store, decoder Decoder, opts ...SinkOption) *Sink {
	s := &Sink{
		store:   store,
		decoder: decoder,
		policy:  DefaultRetryPolicy(),
	}
	if c, ok := store.(ErrorClassifier); ok {
		s.classifier = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Sink) State() SinkState {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state
}

func (s *Sink) Configure(ctx context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()

	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateUninitialized:
	default:
		return ErrAlreadyConfigured
	}

	if err := s.store.Open(ctx); err != nil {
		// release what the store set up before failing, so a later
		// Configure starts from a closed store
		if closeErr := s.store.Close(ctx); closeErr != nil {
			Logger(ctx).Debug().Err(closeErr).Msg("failed to close store after failed open")
		}
		return &ConnectionError{Err: err}
	}
	s.opened = true
	s.state = StateReady
	Logger(ctx).Debug().Msg("sink configured")
	return nil
}

func (s *Sink) Write(ctx context.Context, batch Batch) (WriteResult, error) {
	s.m.Lock()
	defer s.m.Unlock()

	switch s.state {
	case StateUninitialized:
		return WriteResult{}, ErrNotConfigured
	case StateClosed:
		return WriteResult{}, ErrClosed
	case StateFailed:
		return WriteResult{Outcome: OutcomeFatal}, &FatalError{Err: ErrFailed}
	}

	s.state = StateWriting
	res, err := s.write(ctx, batch)
	if res.Outcome == OutcomeFatal {
		s.state = StateFailed
	} else {
		s.state = StateReady
	}
	return res, err
}

func (s *Sink) write(ctx context.Context, batch Batch) (WriteResult, error) {
	logger := Logger(ctx).With().
		Str("topic", batch.Topic).
		Int32("partition", batch.Partition).
		Logger()

	rows := make([]Row, 0, len(batch.Records))
	var res WriteResult
	for _, r := range batch.Records {
		row, err := s.decoder.Decode(r)
		if err != nil {
			res.Skipped++
			logger.Warn().Err(err).
				Int64("offset", r.Offset).
				Msg("skipping record that could not be decoded")
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		res.Outcome = OutcomeSuccess
		return res, nil
	}

	maxAttempts := s.policy.attempts()
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		err := s.store.Write(ctx, rows)
		if err == nil {
			res.Outcome = OutcomeSuccess
			res.Written = len(rows)
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Outcome = OutcomeRetryableFailure
			return res, ctxErr
		}

		class, retryAfter := classify(err, s.classifier)
		switch class {
		case ClassOverload:
			return s.backpressure(res, err, retryAfter)
		case ClassTransient, ClassTimeout:
			if attempt >= maxAttempts {
				if class == ClassTimeout {
					return s.backpressure(res, err, 0)
				}
				return s.fatal(res, fmt.Errorf("giving up after %d attempts: %w", attempt, err))
			}
		default:
			return s.fatal(res, err)
		}

		delay := s.policy.delay(attempt)
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Stringer("class", class).
			Dur("delay", delay).
			Msg("write failed, retrying")
		if err := sleepCtx(ctx, delay); err != nil {
			res.Outcome = OutcomeRetryableFailure
			return res, err
		}
	}
}

func (s *Sink) backpressure(res WriteResult, err error, hint time.Duration) (WriteResult, error) {
	res.Outcome = OutcomeBackpressure
	res.RetryAfter = s.policy.retryAfter(hint)
	return res, &BackpressureError{RetryAfter: res.RetryAfter, Err: err}
}

func (s *Sink) fatal(res WriteResult, err error) (WriteResult, error) {
	res.Outcome = OutcomeFatal
	return res, &FatalError{Err: err}
}

// Close releases the store. Calling Close more than once is a no-op.
func (s *Sink) Close(ctx context.Context) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	if !s.opened {
		return nil
	}
	if err := s.store.Close(ctx); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	Logger(ctx).Debug().Msg("sink closed")
	return nil
}

// IsFatal reports whether err ends the sink, no further writes will succeed.
func IsFatal(err error) bool {
	var fe *FatalError
	var ce *ConnectionError
	return errors.As(err, &fe) || errors.As(err, &ce) ||
		errors.Is(err, ErrClosed) || errors.Is(err, ErrNotConfigured)
}
