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

package csync

import (
	"context"
)

// Run executes fn in a goroutine and waits for it to return. If the context
// gets canceled before that happens the method returns the context error.
//
// This is useful for executing long-running functions like closing a store
// connection that don't honor a context and can potentially block the
// execution forever. The goroutine running fn is not stopped.
func Run(ctx context.Context, fn func(), opts ...Option) error {
	return RunErr(ctx, func() error {
		fn()
		return nil
	}, opts...)
}

// RunErr is like Run but returns the error of fn if it finishes in time.
func RunErr(ctx context.Context, fn func() error, opts ...Option) error {
	o := applyOptions(opts)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
