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
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy controls how often and with what delay a failed write is
// retried before its outcome is escalated.
type RetryPolicy struct {
	// MaxAttempts is the total number of store calls made for one batch,
	// including the first one. Values below 1 are treated as 1.
	MaxAttempts int
	// Backoff returns the delay to wait after the given failed attempt
	// (starting at 1). A nil Backoff means no delay.
	Backoff func(attempt int) time.Duration
	// BackpressureDelay is the retry-after hint reported with backpressure
	// when the store did not provide one.
	BackpressureDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		Backoff:           FixedBackoff(time.Second),
		BackpressureDelay: 10 * time.Second,
	}
}

// FixedBackoff waits the same delay after every attempt.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff waits min after the first attempt and multiplies the
// delay by factor after each further attempt, capped at max.
func ExponentialBackoff(min, max time.Duration, factor float64) func(int) time.Duration {
	b := &backoff.Backoff{
		Factor: factor,
		Min:    min,
		Max:    max,
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return b.ForAttempt(float64(attempt - 1))
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p RetryPolicy) retryAfter(hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	return p.BackpressureDelay
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
