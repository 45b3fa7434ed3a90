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

// Package clickhouse implements a store writing rows into ClickHouse over the
// native protocol.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/sqlbuild"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

const (
	ConfigAddr        = "clickhouse.addr"
	ConfigDatabase    = "clickhouse.database"
	ConfigUsername    = "clickhouse.username"
	ConfigPassword    = "clickhouse.password"
	ConfigDialTimeout = "clickhouse.dial_timeout"
	ConfigCompression = "clickhouse.compression"
	ConfigEngine      = "clickhouse.engine"
)

type Config struct {
	Addr        []string      `mapstructure:"clickhouse.addr"`
	Database    string        `mapstructure:"clickhouse.database"`
	Username    string        `mapstructure:"clickhouse.username"`
	Password    string        `mapstructure:"clickhouse.password"`
	DialTimeout time.Duration `mapstructure:"clickhouse.dial_timeout"`
	Compression string        `mapstructure:"clickhouse.compression"`
	Engine      string        `mapstructure:"clickhouse.engine"`

	Table string `mapstructure:"-"`
}

func Parameters() connector.Parameters {
	return connector.Parameters{
		ConfigAddr: {
			Default:     "localhost:9000",
			Description: "Comma separated list of native protocol addresses.",
			Type:        connector.ParameterTypeString,
		},
		ConfigDatabase: {
			Default:     "default",
			Description: "Database the table is created in.",
			Type:        connector.ParameterTypeString,
		},
		ConfigUsername: {
			Default:     "default",
			Description: "User name.",
			Type:        connector.ParameterTypeString,
		},
		ConfigPassword: {
			Description: "Password.",
			Type:        connector.ParameterTypeString,
		},
		ConfigDialTimeout: {
			Default:     "10s",
			Description: "Timeout for establishing a connection.",
			Type:        connector.ParameterTypeDuration,
		},
		ConfigCompression: {
			Default:     "lz4",
			Description: "Block compression (lz4, zstd or none).",
			Type:        connector.ParameterTypeString,
			Validations: []connector.Validation{
				connector.ValidationInclusion{List: []string{"lz4", "zstd", "none"}},
			},
		},
		ConfigEngine: {
			Default:     "MergeTree",
			Description: "Table engine used when the table is created, e.g. ReplacingMergeTree.",
			Type:        connector.ParameterTypeString,
		},
	}
}

func ParseConfig(table string, cfg map[string]string) (Config, error) {
	var c Config
	if err := connector.DecodeConfig(cfg, Parameters(), &c); err != nil {
		return Config{}, err
	}
	if len(c.Addr) == 0 {
		return Config{}, fmt.Errorf("%s must not be empty", ConfigAddr)
	}
	c.Table = table
	return c, nil
}

// Connector registers the store.
func Connector() connector.StoreConnector {
	return connector.StoreConnector{
		Name:       "clickhouse",
		Summary:    "Writes rows into a ClickHouse MergeTree table.",
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

// conn is the subset of the native connection used by the store.
type conn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	Batch(ctx context.Context, query string) (batch, error)
	Close() error
}

type batch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

type nativeConn struct {
	driver.Conn
}

func (c nativeConn) Batch(ctx context.Context, query string) (batch, error) {
	return c.PrepareBatch(ctx, query)
}

type Store struct {
	cfg     Config
	schema  schema.Schema
	dialect sqlbuild.ClickHouse
	insert  string

	connect func(cfg Config) (conn, error)
	conn    conn
}

var (
	_ connector.Store           = (*Store)(nil)
	_ connector.ErrorClassifier = (*Store)(nil)
)

func New(cfg Config, s schema.Schema) *Store {
	d := sqlbuild.ClickHouse{Engine: cfg.Engine}
	return &Store{
		cfg:     cfg,
		schema:  s,
		dialect: d,
		insert: fmt.Sprintf("INSERT INTO %s (%s)",
			sqlbuild.QuoteTable(d, cfg.Table), sqlbuild.QuoteList(d, s.ColumnNames())),
		connect: connect,
	}
}

func connect(cfg Config) (conn, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
	}
	switch cfg.Compression {
	case "lz4":
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	case "zstd":
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionZSTD}
	}
	c, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	return nativeConn{Conn: c}, nil
}

// Open connects and creates the table if needed.
func (s *Store) Open(ctx context.Context) error {
	c, err := s.connect(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	s.conn = c

	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := c.Exec(ctx, sqlbuild.CreateTable(s.dialect, s.cfg.Table, s.schema)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.cfg.Table, err)
	}
	connector.Logger(ctx).Info().
		Strs("addr", s.cfg.Addr).
		Str("table", s.cfg.Table).
		Msg("clickhouse store opened")
	return nil
}

// Write sends all rows as one native block.
func (s *Store) Write(ctx context.Context, rows []connector.Row) error {
	b, err := s.conn.Batch(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i, r := range rows {
		args := make([]any, 0, len(r.Values)+1)
		args = append(args, r.Time.UTC())
		args = append(args, r.Values...)
		if err := b.Append(args...); err != nil {
			_ = b.Abort()
			return connector.Permanent(fmt.Errorf("append row %d (%s): %w", i, r.Position, err))
		}
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// ClassifyError maps server exception codes to error classes.
func (s *Store) ClassifyError(err error) connector.ErrorClass {
	var ex *clickhouse.Exception
	if !errors.As(err, &ex) {
		return connector.ClassUnknown
	}
	return classifyCode(ex.Code)
}

func classifyCode(code int32) connector.ErrorClass {
	switch code {
	case 159, 209: // TIMEOUT_EXCEEDED, SOCKET_TIMEOUT
		return connector.ClassTimeout
	case 3, 210, 242, 319: // UNEXPECTED_END_OF_FILE, NETWORK_ERROR, TABLE_IS_READ_ONLY, UNKNOWN_STATUS_OF_INSERT
		return connector.ClassTransient
	case 202, 241, 252: // TOO_MANY_SIMULTANEOUS_QUERIES, MEMORY_LIMIT_EXCEEDED, TOO_MANY_PARTS
		return connector.ClassOverload
	default:
		return connector.ClassFatal
	}
}
