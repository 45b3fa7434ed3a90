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

// Package spanner implements a store writing rows into Cloud Spanner with
// insert-or-update mutations.
package spanner

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"cloud.google.com/go/spanner"
	database "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/sqlbuild"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const (
	ConfigDatabase    = "spanner.database"
	ConfigEndpoint    = "spanner.endpoint"
	ConfigCreateTable = "spanner.create_table"
)

var databaseRegex = regexp.MustCompile(`^projects/[^/]+/instances/[^/]+/databases/[^/]+$`)

type Config struct {
	Database    string `mapstructure:"spanner.database"`
	Endpoint    string `mapstructure:"spanner.endpoint"`
	CreateTable bool   `mapstructure:"spanner.create_table"`

	Table string `mapstructure:"-"`
}

func Parameters() connector.Parameters {
	return connector.Parameters{
		ConfigDatabase: {
			Description: "Database path, projects/<project>/instances/<instance>/databases/<database>.",
			Type:        connector.ParameterTypeString,
			Validations: []connector.Validation{
				connector.ValidationRequired{},
				connector.ValidationRegex{Regex: databaseRegex},
			},
		},
		ConfigEndpoint: {
			Description: "Overrides the service endpoint. SPANNER_EMULATOR_HOST is honoured as well.",
			Type:        connector.ParameterTypeString,
		},
		ConfigCreateTable: {
			Default:     "true",
			Description: "Create the table with CREATE TABLE IF NOT EXISTS on start.",
			Type:        connector.ParameterTypeBool,
		},
	}
}

func ParseConfig(table string, cfg map[string]string) (Config, error) {
	var c Config
	if err := connector.DecodeConfig(cfg, Parameters(), &c); err != nil {
		return Config{}, err
	}
	c.Table = table
	return c, nil
}

// Connector registers the store.
func Connector() connector.StoreConnector {
	return connector.StoreConnector{
		Name:       "spanner",
		Summary:    "Writes rows into a Cloud Spanner table.",
		Parameters: Parameters,
		New: func(_ context.Context, core connector.Config, s schema.Schema, cfg map[string]string) (connector.Store, error) {
			c, err := ParseConfig(core.TargetTable, cfg)
			if err != nil {
				return nil, err
			}
			return New(c, s), nil
		},
	}
}

// client is the subset of *spanner.Client used by the store.
type client interface {
	Apply(ctx context.Context, ms []*spanner.Mutation, opts ...spanner.ApplyOption) (time.Time, error)
	Close()
}

type Store struct {
	cfg     Config
	schema  schema.Schema
	columns []string

	connect   func(ctx context.Context, cfg Config) (client, error)
	updateDDL func(ctx context.Context, cfg Config, statements []string) error
	client    client
}

var (
	_ connector.Store           = (*Store)(nil)
	_ connector.ErrorClassifier = (*Store)(nil)
)

func New(cfg Config, s schema.Schema) *Store {
	return &Store{
		cfg:       cfg,
		schema:    s,
		columns:   s.ColumnNames(),
		connect:   connect,
		updateDDL: updateDDL,
	}
}

func clientOptions(cfg Config) []option.ClientOption {
	if cfg.Endpoint == "" {
		return nil
	}
	return []option.ClientOption{option.WithEndpoint(cfg.Endpoint)}
}

func connect(ctx context.Context, cfg Config) (client, error) {
	c, err := spanner.NewClient(ctx, cfg.Database, clientOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func updateDDL(ctx context.Context, cfg Config, statements []string) error {
	admin, err := database.NewDatabaseAdminClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return err
	}
	defer admin.Close()

	op, err := admin.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
		Database:   cfg.Database,
		Statements: statements,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

// Open creates the client and, if enabled, the table.
func (s *Store) Open(ctx context.Context) error {
	c, err := s.connect(ctx, s.cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	s.client = c

	if s.cfg.CreateTable {
		ddl := sqlbuild.CreateTable(sqlbuild.Spanner{}, s.cfg.Table, s.schema)
		if err := s.updateDDL(ctx, s.cfg, []string{ddl}); err != nil {
			return fmt.Errorf("failed to create table %s: %w", s.cfg.Table, err)
		}
	}
	connector.Logger(ctx).Info().
		Str("database", s.cfg.Database).
		Str("table", s.cfg.Table).
		Msg("spanner store opened")
	return nil
}

// Write applies one insert-or-update mutation per row in a single commit.
// Rows are keyed, redelivered rows overwrite themselves.
func (s *Store) Write(ctx context.Context, rows []connector.Row) error {
	ms := make([]*spanner.Mutation, len(rows))
	for i, r := range rows {
		ms[i] = spanner.InsertOrUpdate(s.cfg.Table, s.columns, s.values(r))
	}
	if _, err := s.client.Apply(ctx, ms); err != nil {
		return fmt.Errorf("apply %d mutations: %w", len(ms), err)
	}
	return nil
}

// values returns the row values with missing nullable values replaced by
// typed nulls.
func (s *Store) values(r connector.Row) []any {
	out := make([]any, 0, len(r.Values)+1)
	out = append(out, r.Time.UTC())
	for i, c := range s.schema.Columns {
		v := r.Values[i]
		if v == nil {
			v = nullOf(c.Type)
		}
		out = append(out, v)
	}
	return out
}

func nullOf(t schema.Type) any {
	switch t {
	case schema.TypeFloat:
		return spanner.NullFloat64{}
	case schema.TypeInt:
		return spanner.NullInt64{}
	case schema.TypeBool:
		return spanner.NullBool{}
	case schema.TypeTime:
		return spanner.NullTime{}
	default:
		return spanner.NullString{}
	}
}

func (s *Store) Close(context.Context) error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

// ClassifyError maps gRPC status codes to error classes.
func (s *Store) ClassifyError(err error) connector.ErrorClass {
	switch spanner.ErrCode(err) {
	case codes.DeadlineExceeded:
		return connector.ClassTimeout
	case codes.Unavailable, codes.Aborted, codes.Internal:
		return connector.ClassTransient
	case codes.ResourceExhausted:
		return connector.ClassOverload
	case codes.Unknown, codes.Canceled, codes.OK:
		return connector.ClassUnknown
	default:
		return connector.ClassFatal
	}
}
