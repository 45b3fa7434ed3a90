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
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

func TestServe_PipelineFinishes(t *testing.T) {
	defer goleak.VerifyNone(t)
	is := is.New(t)
	ctx := testContext(t)
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)

	store.EXPECT().Open(gomock.Any()).Return(nil)
	store.EXPECT().Write(gomock.Any(), gomock.Len(3)).Return(nil)
	store.EXPECT().Close(gomock.Any()).Return(nil)

	src := NewSliceSource(partitionRecords(0, 1, 3)...)
	reg := prometheus.NewRegistry()
	health := NewHealthServer(reg)
	p := NewPipeline(src, NewSink(store, NewSchemaDecoder(testSchema(t))),
		PipelineConfig{BufferSize: 10, BufferTimeout: time.Hour},
		WithMetrics(NewMetrics(reg)), WithHealthServer(health))

	err := serve(ctx, p, ServeConfig{MetricsAddress: "127.0.0.1:0", Health: health})
	is.NoErr(err)
	is.Equal(len(src.Acked()), 3)
}

func TestServe_CanceledIsClean(t *testing.T) {
	defer goleak.VerifyNone(t)
	is := is.New(t)
	ctx, cancel := context.WithCancel(testContext(t))
	ctrl := gomock.NewController(t)
	dst := NewMockDestination(ctrl)

	dst.EXPECT().Configure(gomock.Any()).Return(nil)
	dst.EXPECT().Close(gomock.Any()).Return(nil)

	src := newChanSource()
	p := NewPipeline(src, dst, PipelineConfig{BufferSize: 10, BufferTimeout: time.Hour})

	time.AfterFunc(20*time.Millisecond, cancel)
	is.NoErr(serve(ctx, p, ServeConfig{}))
}

func TestServe_ListenError(t *testing.T) {
	is := is.New(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	is.NoErr(err)
	defer lis.Close()

	p := NewPipeline(NewSliceSource(), nil, PipelineConfig{})
	err = serve(context.Background(), p, ServeConfig{
		MetricsAddress: lis.Addr().String(),
		Health:         NewHealthServer(prometheus.NewRegistry()),
	})
	is.True(err != nil)
	is.True(!errors.Is(err, http.ErrServerClosed))
}
