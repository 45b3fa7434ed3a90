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

	"github.com/matryer/is"
)

func TestExponentialBackoff(t *testing.T) {
	is := is.New(t)

	b := ExponentialBackoff(100*time.Millisecond, time.Second, 2)
	is.Equal(b(1), 100*time.Millisecond)
	is.Equal(b(2), 200*time.Millisecond)
	is.Equal(b(3), 400*time.Millisecond)
	is.Equal(b(4), 800*time.Millisecond)
	is.Equal(b(5), time.Second)
	is.Equal(b(0), 100*time.Millisecond)
}

func TestRetryPolicy_Defaults(t *testing.T) {
	is := is.New(t)

	var p RetryPolicy
	is.Equal(p.attempts(), 1)
	is.Equal(p.delay(3), time.Duration(0))
	is.Equal(p.retryAfter(time.Second), time.Second)

	p = DefaultRetryPolicy()
	is.Equal(p.attempts(), 3)
	is.Equal(p.delay(2), time.Second)
	is.Equal(p.retryAfter(0), 10*time.Second)
}

func TestSleepCtx(t *testing.T) {
	is := is.New(t)

	is.NoErr(sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	is.Equal(sleepCtx(ctx, time.Hour), context.Canceled)
	is.True(time.Since(start) < time.Second)
}
