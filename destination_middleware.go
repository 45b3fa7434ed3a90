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
	"fmt"

	"golang.org/x/time/rate"
)

// DestinationMiddleware wraps a Destination and adds functionality to it.
type DestinationMiddleware interface {
	Wrap(Destination) Destination
}

// DestinationWithMiddleware wraps the destination into the supplied middleware.
func DestinationWithMiddleware(d Destination, middleware ...DestinationMiddleware) Destination {
	for _, m := range middleware {
		d = m.Wrap(d)
	}
	return d
}

// Middleware returns the destination middleware enabled by c.
func (c Config) Middleware() []DestinationMiddleware {
	var out []DestinationMiddleware
	if c.RatePerSecond > 0 {
		out = append(out, DestinationWithRateLimit{
			RatePerSecond: c.RatePerSecond,
			Burst:         c.RateBurst,
		})
	}
	return out
}

// -- DestinationWithRateLimit -------------------------------------------------

// DestinationWithRateLimit limits how often Write is called on the wrapped
// destination.
type DestinationWithRateLimit struct {
	// RatePerSecond is the maximum number of writes per second, 0 disables
	// the limit.
	RatePerSecond float64
	// Burst allows bursts of at most this many writes. Values below 1 are
	// treated as 1.
	Burst int
}

// Wrap a Destination into the rate limiting middleware.
func (d DestinationWithRateLimit) Wrap(impl Destination) Destination {
	if d.RatePerSecond <= 0 {
		return impl
	}
	return &destinationWithRateLimit{
		Destination: impl,
		limiter:     rate.NewLimiter(rate.Limit(d.RatePerSecond), max(d.Burst, 1)),
	}
}

type destinationWithRateLimit struct {
	Destination

	limiter *rate.Limiter
}

func (d *destinationWithRateLimit) Write(ctx context.Context, batch Batch) (WriteResult, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return WriteResult{Outcome: OutcomeRetryableFailure}, fmt.Errorf("rate limiter: %w", err)
	}
	return d.Destination.Write(ctx, batch)
}
