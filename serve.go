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
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/tomb.v2"
)

// ServeConfig configures Serve.
type ServeConfig struct {
	// MetricsAddress is the listen address of the metrics and health
	// endpoints. Empty disables the HTTP server.
	MetricsAddress string
	// Health is served on MetricsAddress.
	Health *HealthServer
}

// Serve runs the pipeline and takes care of its whole lifecycle by blocking
// until the pipeline stops or the process receives SIGINT or SIGTERM. Any
// errors will be output to os.Stderr and the process will exit with a status
// code of 1.
func Serve(ctx context.Context, p *Pipeline, cfg ServeConfig) {
	if err := serve(ctx, p, cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error running pipeline: %+v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, p *Pipeline, cfg ServeConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	var lis net.Listener
	if cfg.MetricsAddress != "" && cfg.Health != nil {
		var err error
		lis, err = net.Listen("tcp", cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.MetricsAddress, err)
		}
		srv = &http.Server{
			Handler:           cfg.Health.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		if srv != nil {
			Logger(ctx).Info().Str("address", lis.Addr().String()).Msg("serving metrics")
			t.Go(func() error {
				if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server: %w", err)
				}
				return nil
			})
			t.Go(func() error {
				<-t.Dying()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		err := p.Run(ctx)
		if err == nil {
			t.Kill(nil)
		}
		return err
	})

	err := t.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
