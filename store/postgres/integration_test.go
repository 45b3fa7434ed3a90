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

//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

var testURL string

func TestMain(m *testing.M) {
	closeFn := launchTimescaleOnDocker()
	code := m.Run()
	closeFn()
	os.Exit(code)
}

func launchTimescaleOnDocker() func() {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not connect to docker: %v", err)
	}
	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "timescale/timescaledb",
			Tag:        "latest-pg16",
			Env:        []string{"POSTGRES_PASSWORD=secret", "POSTGRES_DB=solar"},
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		log.Fatalf("Could not start resource: %v", err)
	}

	testURL = fmt.Sprintf("postgres://postgres:secret@%s/solar?sslmode=disable", resource.GetHostPort("5432/tcp"))
	if err := pool.Retry(func() error {
		conn, err := pgx.Connect(context.Background(), testURL)
		if err != nil {
			return err
		}
		return conn.Close(context.Background())
	}); err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	return func() {
		if err := pool.Purge(resource); err != nil {
			log.Fatalf("Could not purge resource: %s", err)
		}
	}
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, testURL)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(ctx)

	var n int
	if err := conn.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestAcceptance(t *testing.T) {
	connector.AcceptanceTest(t, connector.AcceptanceTestConfig{
		NewStore: func(t *testing.T, table string) connector.Store {
			return New(Config{URL: testURL, MaxConns: 2, Hypertable: true, ChunkInterval: 24 * time.Hour, Table: table}, schema.Presets["solar_panel"])
		},
		Parameters:   Parameters,
		CountRows:    countRows,
		Deduplicates: true,
	})
}

func TestAcceptance_Copy(t *testing.T) {
	connector.AcceptanceTest(t, connector.AcceptanceTestConfig{
		NewStore: func(t *testing.T, table string) connector.Store {
			return New(Config{URL: testURL, MaxConns: 2, Table: table}, keylessSchema())
		},
		Schema:    keylessSchema(),
		CountRows: countRows,
	})
}
