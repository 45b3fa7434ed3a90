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
	"testing"
	"time"

	"github.com/matryer/is"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestDefaultClassifier(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "nil", err: nil, want: ClassUnknown},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: ClassTimeout},
		{name: "os deadline", err: os.ErrDeadlineExceeded, want: ClassTimeout},
		{name: "net timeout", err: &net.OpError{Op: "read", Err: timeoutError{}}, want: ClassTimeout},
		{name: "connection reset", err: fmt.Errorf("write: %w", syscall.ECONNRESET), want: ClassTransient},
		{name: "connection refused", err: syscall.ECONNREFUSED, want: ClassTransient},
		{name: "broken pipe", err: syscall.EPIPE, want: ClassTransient},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: ClassTransient},
		{name: "closed conn", err: net.ErrClosed, want: ClassTransient},
		{name: "dial error", err: &net.OpError{Op: "dial", Err: errors.New("no route to host")}, want: ClassTransient},
		{name: "other", err: errors.New("syntax error at or near"), want: ClassFatal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(DefaultClassifier(tc.err), tc.want)
		})
	}
}

func TestClassify_Precedence(t *testing.T) {
	is := is.New(t)

	always := ErrorClassifierFunc(func(error) ErrorClass { return ClassOverload })
	never := ErrorClassifierFunc(func(error) ErrorClass { return ClassUnknown })

	// markers win over the store classifier
	class, _ := classify(Permanent(syscall.ECONNRESET), always)
	is.Equal(class, ClassFatal)

	// store classifier wins over the default
	class, _ = classify(syscall.ECONNRESET, always)
	is.Equal(class, ClassOverload)

	// unknown falls through to the default
	class, _ = classify(syscall.ECONNRESET, never)
	is.Equal(class, ClassTransient)

	class, retryAfter := classify(fmt.Errorf("wrapped: %w", Overloaded(errors.New("busy"), time.Minute)), nil)
	is.Equal(class, ClassOverload)
	is.Equal(retryAfter, time.Minute)
}

func TestMarkers(t *testing.T) {
	is := is.New(t)

	base := errors.New("boom")
	for _, tc := range []struct {
		err  error
		want ErrorClass
	}{
		{Transient(base), ClassTransient},
		{Timeout(base), ClassTimeout},
		{Overloaded(base, 0), ClassOverload},
		{Permanent(base), ClassFatal},
	} {
		class, _ := ClassOf(tc.err)
		is.Equal(class, tc.want)
		is.True(errors.Is(tc.err, base))
		is.Equal(tc.err.Error(), "boom")
	}

	is.NoErr(Transient(nil))
	class, _ := ClassOf(base)
	is.Equal(class, ClassUnknown)
}

func TestErrorMessages(t *testing.T) {
	is := is.New(t)

	is.Equal((&DecodeError{Field: "temperature", Err: errors.New("bad")}).Error(), `decode field "temperature": bad`)
	is.Equal((&DecodeError{Err: errors.New("bad")}).Error(), "decode record: bad")
	is.Equal((&BackpressureError{RetryAfter: time.Second, Err: errors.New("slow")}).Error(), "backpressure (retry after 1s): slow")
	is.Equal((&FatalError{Err: errors.New("gone")}).Error(), "fatal: gone")
	is.Equal((&ConnectionError{Err: errors.New("refused")}).Error(), "connection error: refused")
}
