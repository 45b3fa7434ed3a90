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

func TestSourceWithReadAt(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	produced := now.Add(-time.Minute)
	inner := NewSliceSource(
		Record{Offset: 0},
		Record{Offset: 1, Timestamp: produced, Headers: Metadata{MetadataReadAt: "1"}},
	)
	src := SourceWithMiddleware(inner, SourceWithReadAt{Now: func() time.Time { return now }})

	rec, err := src.Read(ctx)
	is.NoErr(err)
	readAt, err := rec.Headers.GetReadAt()
	is.NoErr(err)
	is.True(readAt.Equal(now))
	is.True(rec.Timestamp.Equal(now)) // missing timestamp replaced by read time

	rec, err = src.Read(ctx)
	is.NoErr(err)
	is.Equal(rec.Headers[MetadataReadAt], "1") // existing header kept
	is.True(rec.Timestamp.Equal(produced))
}

func TestSourceWithMiddleware_ForwardsPause(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	inner := NewSliceSource()
	src := SourceWithMiddleware(inner, SourceWithReadAt{})

	pauser, ok := src.(Pauser)
	is.True(ok)
	is.NoErr(pauser.Pause(ctx, "readings", 3))
	is.True(inner.Paused("readings", 3))
	is.NoErr(pauser.Resume(ctx, "readings", 3))
	is.True(!inner.Paused("readings", 3))
}

type plainSource struct{ Source }

func TestSourceWithMiddleware_PauseUnsupported(t *testing.T) {
	is := is.New(t)
	src := SourceWithMiddleware(plainSource{Source: NewSliceSource()}, SourceWithReadAt{})
	pauser, ok := src.(Pauser)
	is.True(ok)
	is.Equal(pauser.Pause(context.Background(), "readings", 0), ErrPauseUnsupported)
	is.Equal(pauser.Resume(context.Background(), "readings", 0), ErrPauseUnsupported)
}
