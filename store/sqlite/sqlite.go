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

// Package sqlite implements a store writing rows into a local SQLite
// database. It is meant for development and small deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/sqlbuild"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	ConfigPath        = "sqlite.path"
	ConfigBusyTimeout = "sqlite.busy_timeout"
	ConfigSynchronous = "sqlite.synchronous"
	ConfigMaxParams   = "sqlite.max_params"
)

// Config configures the SQLite store.
type Config struct {
	Path        string        `mapstructure:"sqlite.path"`
	BusyTimeout time.Duration `mapstructure:"sqlite.busy_timeout"`
	Synchronous string        `mapstructure:"sqlite.synchronous"`
	MaxParams   int           `mapstructure:"sqlite.max_params"`

	Table string `mapstructure:"-"`
}

// Parameters declares the settings of the SQLite store.
func Parameters() connector.Parameters {
	return connector.Parameters{
		ConfigPath: {
			Default:     "solar.db",
			Description: "Path of the database file. Parent directories are created.",
			Type:        connector.ParameterTypeFile,
		},
		ConfigBusyTimeout: {
			Default:     "10s",
			Description: "How long a write waits for a lock held by another connection.",
			Type:        connector.ParameterTypeDuration,
		},
		ConfigSynchronous: {
			Default:     "NORMAL",
			Description: "Value of PRAGMA synchronous.",
			Type:        connector.ParameterTypeString,
			Validations: []connector.Validation{
				connector.ValidationInclusion{List: []string{"OFF", "NORMAL", "FULL", "EXTRA"}},
			},
		},
		ConfigMaxParams: {
			Default:     "32766",
			Description: "Maximum number of bind parameters per INSERT statement.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: 0}},
		},
	}
}

// ParseConfig decodes the store settings from cfg.
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
		Name:       "sqlite",
		Summary:    "Writes rows into a local SQLite database file.",
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

// Store writes rows into one SQLite table.
type Store struct {
	cfg     Config
	schema  schema.Schema
	columns []string
	db      *sql.DB
}

var (
	_ connector.Store           = (*Store)(nil)
	_ connector.ErrorClassifier = (*Store)(nil)
)

func New(cfg Config, s schema.Schema) *Store {
	if cfg.MaxParams <= 0 {
		cfg.MaxParams = 32766
	}
	return &Store{cfg: cfg, schema: s, columns: s.ColumnNames()}
}

// Open opens the database, applies the pragmas and creates the table.
func (s *Store) Open(ctx context.Context) error {
	if s.cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serialises writers and keeps :memory: databases
	// alive between calls
	db.SetMaxOpenConns(1)
	s.db = db

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.cfg.BusyTimeout.Milliseconds()),
	}
	if s.cfg.Synchronous != "" {
		pragmas = append(pragmas, "PRAGMA synchronous = "+s.cfg.Synchronous)
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	ddl := sqlbuild.CreateTable(sqlbuild.SQLite{}, s.cfg.Table, s.schema)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.cfg.Table, err)
	}
	connector.Logger(ctx).Info().
		Str("path", s.cfg.Path).
		Str("table", s.cfg.Table).
		Msg("sqlite store opened")
	return nil
}

// Write inserts all rows in one transaction. Rows that violate the natural
// key are ignored.
func (s *Store) Write(ctx context.Context, rows []connector.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := s.insert(ctx, tx, rows); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, rows []connector.Row) error {
	chunk := sqlbuild.ChunkSize(len(s.columns), s.cfg.MaxParams)
	ignore := len(s.schema.Key) > 0
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		query := sqlbuild.Insert(sqlbuild.SQLite{}, s.cfg.Table, s.columns, end-start, ignore)
		args := make([]any, 0, (end-start)*len(s.columns))
		for _, r := range rows[start:end] {
			args = append(args, r.Time.UTC())
			args = append(args, r.Values...)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close(context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DB returns the underlying database, nil until Open was called.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ClassifyError marks lock contention as transient.
func (s *Store) ClassifyError(err error) connector.ErrorClass {
	if IsBusy(err) {
		return connector.ClassTransient
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_FULL, sqlite3.SQLITE_IOERR:
			return connector.ClassTransient
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_CORRUPT:
			return connector.ClassFatal
		}
	}
	return connector.ClassUnknown
}

// IsBusy reports whether err indicates an SQLite BUSY or LOCKED condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
