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

package spanner

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/spanner"
	database "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	instance "cloud.google.com/go/spanner/admin/instance/apiv1"
	"cloud.google.com/go/spanner/admin/instance/apiv1/instancepb"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

const (
	testProjectPath  = "projects/solar-project"
	testInstanceID   = "solar-instance"
	testInstancePath = testProjectPath + "/instances/" + testInstanceID
	testDatabaseID   = "solar-database"
	testDatabasePath = testInstancePath + "/databases/" + testDatabaseID
)

func TestMain(m *testing.M) {
	closeFn := launchEmulatorOnDocker()
	code := m.Run()
	closeFn()
	os.Exit(code)
}

func launchEmulatorOnDocker() func() {
	ctx := context.Background()

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not connect to docker: %v", err)
	}
	pool.MaxWait = 30 * time.Second

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: "gcr.io/cloud-spanner-emulator/emulator",
			Tag:        "latest",
		},
		func(config *docker.HostConfig) {
			config.AutoRemove = true
			config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		log.Fatalf("Could not start resource: %v", err)
	}

	os.Setenv("SPANNER_EMULATOR_HOST", resource.GetHostPort("9010/tcp"))

	if err := pool.Retry(func() error {
		return createInstance(ctx)
	}); err != nil {
		log.Fatalf("Could not create instance: %v", err)
	}
	if err := createDatabase(ctx); err != nil {
		log.Fatalf("Could not create database: %v", err)
	}

	return func() {
		if err := pool.Purge(resource); err != nil {
			log.Fatalf("Could not purge resource: %s", err)
		}
	}
}

func createInstance(ctx context.Context) error {
	c, err := instance.NewInstanceAdminClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	op, err := c.CreateInstance(ctx, &instancepb.CreateInstanceRequest{
		Parent:     testProjectPath,
		InstanceId: testInstanceID,
		Instance: &instancepb.Instance{
			Config:      "emulator-config",
			DisplayName: testInstanceID,
			NodeCount:   1,
		},
	})
	if err != nil {
		return err
	}
	_, err = op.Wait(ctx)
	return err
}

func createDatabase(ctx context.Context) error {
	c, err := database.NewDatabaseAdminClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	op, err := c.CreateDatabase(ctx, &databasepb.CreateDatabaseRequest{
		Parent:          testInstancePath,
		CreateStatement: fmt.Sprintf("CREATE DATABASE `%s`", testDatabaseID),
	})
	if err != nil {
		return err
	}
	_, err = op.Wait(ctx)
	return err
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	ctx := context.Background()
	c, err := spanner.NewClient(ctx, testDatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var n int64
	err = c.Single().Query(ctx, spanner.Statement{SQL: "SELECT COUNT(*) FROM `" + table + "`"}).
		Do(func(r *spanner.Row) error { return r.Columns(&n) })
	if err != nil {
		t.Fatal(err)
	}
	return int(n)
}

func TestAcceptance(t *testing.T) {
	connector.AcceptanceTest(t, connector.AcceptanceTestConfig{
		NewStore: func(t *testing.T, table string) connector.Store {
			return New(Config{Database: testDatabasePath, CreateTable: true, Table: table}, schema.Presets["solar_panel"])
		},
		Parameters:   Parameters,
		CountRows:    countRows,
		Deduplicates: true,
	})
}
