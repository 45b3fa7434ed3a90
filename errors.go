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
	"net"
	"os"
	"syscall"
	"time"
)

var (
	// ErrNotConfigured is returned by Write when Configure was not called or
	// did not succeed.
	ErrNotConfigured = errors.New("sink is not configured")
	// ErrClosed is returned by operations invoked after Close.
	ErrClosed = errors.New("sink is closed")
	// ErrFailed is returned by Write after a previous write failed fatally.
	ErrFailed = errors.New("sink failed on a previous write")
	// ErrAlreadyConfigured is returned when Configure is called twice.
	ErrAlreadyConfigured = errors.New("sink is already configured")

	// ErrBackoffRetry can be returned by Source.Read to signal that there
	// are no records available right now and the caller should try again
	// after a backoff period.
	ErrBackoffRetry = errors.New("backoff retry")

	// ErrPauseUnsupported is returned by Pause and Resume of a wrapped
	// source that does not implement Pauser.
	ErrPauseUnsupported = errors.New("source cannot pause partitions")
)

// ConnectionError is returned by Configure when the store could not be
// reached or its target table could not be prepared.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError describes why a single record could not be turned into a row.
type DecodeError struct {
	// Field is the schema path of the offending field. It is empty when the
	// record body itself could not be parsed.
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode record: %v", e.Err)
	}
	return fmt.Sprintf("decode field %q: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BackpressureError signals that the store is overloaded and the caller
// should pause intake for at least RetryAfter before redelivering the batch.
type BackpressureError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("backpressure (retry after %v): %v", e.RetryAfter, e.Err)
}

func (e *BackpressureError) Unwrap() error { return e.Err }

// FatalError signals that the batch can not be written and the sink stopped
// accepting writes.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ErrorClass is the retry classification of an error returned by a store.
type ErrorClass int

const (
	// ClassUnknown means the classifier has no opinion, the next classifier
	// in the chain is consulted.
	ClassUnknown ErrorClass = iota
	// ClassFatal errors are never retried.
	ClassFatal
	// ClassTransient errors are retried and become fatal once retries are
	// exhausted.
	ClassTransient
	// ClassTimeout errors are retried and turn into backpressure once
	// retries are exhausted.
	ClassTimeout
	// ClassOverload errors turn into backpressure immediately.
	ClassOverload
)

func (c ErrorClass) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassTransient:
		return "transient"
	case ClassTimeout:
		return "timeout"
	case ClassOverload:
		return "overload"
	default:
		return "unknown"
	}
}

// ErrorClassifier can optionally be implemented by a Store to map driver
// specific errors to an ErrorClass. Returning ClassUnknown defers to the
// default classification.
type ErrorClassifier interface {
	ClassifyError(err error) ErrorClass
}

// ErrorClassifierFunc is an adapter to use ordinary functions as classifiers.
type ErrorClassifierFunc func(err error) ErrorClass

func (f ErrorClassifierFunc) ClassifyError(err error) ErrorClass { return f(err) }

type classifiedError struct {
	class      ErrorClass
	retryAfter time.Duration
	err        error
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Transient marks err as a transient failure that may succeed when retried.
func Transient(err error) error {
	return mark(err, ClassTransient, 0)
}

// Timeout marks err as a timeout. Timeouts are retried like transient errors
// but surface as backpressure once retries are exhausted.
func Timeout(err error) error {
	return mark(err, ClassTimeout, 0)
}

// Overloaded marks err as an explicit overload signal from the store. A zero
// retryAfter means the configured backpressure delay is used.
func Overloaded(err error, retryAfter time.Duration) error {
	return mark(err, ClassOverload, retryAfter)
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return mark(err, ClassFatal, 0)
}

func mark(err error, class ErrorClass, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &classifiedError{class: class, retryAfter: retryAfter, err: err}
}

// ClassOf returns the class and retry-after hint attached to err with one of
// the marker functions. It returns ClassUnknown for unmarked errors.
func ClassOf(err error) (ErrorClass, time.Duration) {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.class, ce.retryAfter
	}
	return ClassUnknown, 0
}

// DefaultClassifier classifies errors using only the standard library error
// types: deadlines and network timeouts are timeouts, dropped or refused
// connections are transient, everything else is fatal.
func DefaultClassifier(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded):
		return ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return ClassTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassTransient
	}
	return ClassFatal
}

// classify resolves the class of err. Explicit markers win over the store
// classifier, which wins over DefaultClassifier.
func classify(err error, c ErrorClassifier) (ErrorClass, time.Duration) {
	if class, retryAfter := ClassOf(err); class != ClassUnknown {
		return class, retryAfter
	}
	if c != nil {
		if class := c.ClassifyError(err); class != ClassUnknown {
			return class, 0
		}
	}
	return DefaultClassifier(err), 0
}
