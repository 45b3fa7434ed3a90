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
)

// SourceMiddleware wraps a Source and adds functionality to it.
type SourceMiddleware interface {
	Wrap(Source) Source
}

// SourceWithMiddleware wraps the source into the supplied middleware. The
// returned source forwards Pause and Resume if s implements Pauser.
func SourceWithMiddleware(s Source, middleware ...SourceMiddleware) Source {
	for _, m := range middleware {
		s = m.Wrap(s)
	}
	return s
}

// SourceMiddleware returns the source middleware enabled by c.
func (c Config) SourceMiddleware() []SourceMiddleware {
	return []SourceMiddleware{SourceWithReadAt{}}
}

// pausable forwards Pause and Resume to the wrapped source when it supports
// them and returns ErrPauseUnsupported otherwise.
type pausable struct {
	Source
}

func (p pausable) Pause(ctx context.Context, topic string, partition int32) error {
	if pauser, ok := p.Source.(Pauser); ok {
		return pauser.Pause(ctx, topic, partition)
	}
	return ErrPauseUnsupported
}

func (p pausable) Resume(ctx context.Context, topic string, partition int32) error {
	if pauser, ok := p.Source.(Pauser); ok {
		return pauser.Resume(ctx, topic, partition)
	}
	return ErrPauseUnsupported
}

// -- SourceWithReadAt ---------------------------------------------------------

// SourceWithReadAt stamps every record with the MetadataReadAt header unless
// the source already set it. Records without a timestamp get the read time as
// their timestamp.
type SourceWithReadAt struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// Wrap a Source into the read-at middleware.
func (s SourceWithReadAt) Wrap(impl Source) Source {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return &sourceWithReadAt{pausable: pausable{Source: impl}, now: now}
}

type sourceWithReadAt struct {
	pausable
	now func() time.Time
}

func (s *sourceWithReadAt) Read(ctx context.Context) (Record, error) {
	rec, err := s.Source.Read(ctx)
	if err != nil {
		return rec, err
	}
	if rec.Headers == nil {
		rec.Headers = make(Metadata, 1)
	}
	now := s.now()
	if _, err := rec.Headers.GetReadAt(); err != nil {
		rec.Headers.SetReadAt(now)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	return rec, nil
}
