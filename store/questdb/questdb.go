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

// Package questdb implements a store writing rows to QuestDB using the
// InfluxDB line protocol.
package questdb

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
)

const (
	ConfigConf    = "questdb.conf"
	ConfigSymbols = "questdb.symbols"
)

type Config struct {
	// Conf is a client configuration string, e.g. http::addr=localhost:9000;
	Conf string `mapstructure:"questdb.conf"`
	// Symbols lists additional string columns written as symbols. Key columns
	// are always symbols.
	Symbols []string `mapstructure:"questdb.symbols"`

	Table string `mapstructure:"-"`
}

func Parameters() connector.Parameters {
	return connector.Parameters{
		ConfigConf: {
			Default:     "http::addr=localhost:9000;",
			Description: "Client configuration string. auto_flush is always disabled, every write is flushed once.",
			Type:        connector.ParameterTypeString,
		},
		ConfigSymbols: {
			Description: "Comma separated list of string columns stored as symbols in addition to the key columns.",
			Type:        connector.ParameterTypeString,
		},
	}
}

func ParseConfig(table string, cfg map[string]string) (Config, error) {
	var c Config
	if err := connector.DecodeConfig(cfg, Parameters(), &c); err != nil {
		return Config{}, err
	}
	if !strings.Contains(c.Conf, "::") {
		return Config{}, fmt.Errorf("invalid %s %q, expected <protocol>::addr=<host:port>;", ConfigConf, c.Conf)
	}
	c.Table = table
	return c, nil
}

// Connector registers the store.
func Connector() connector.StoreConnector {
	return connector.StoreConnector{
		Name:       "questdb",
		Summary:    "Writes rows to QuestDB over the InfluxDB line protocol.",
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

// field is one column of a line.
type field struct {
	Name  string
	Value any
}

// point is one line to be sent.
type point struct {
	Symbols []field
	Columns []field
	At      time.Time
}

// writer buffers lines, Flush sends them.
type writer interface {
	Write(ctx context.Context, table string, p point) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

type Store struct {
	cfg     Config
	schema  schema.Schema
	symbols map[string]bool

	connect func(ctx context.Context, conf string) (writer, error)
	w       writer
}

var (
	_ connector.Store           = (*Store)(nil)
	_ connector.ErrorClassifier = (*Store)(nil)
)

func New(cfg Config, s schema.Schema) *Store {
	symbols := make(map[string]bool)
	for _, k := range s.Key {
		symbols[k] = true
	}
	for _, k := range cfg.Symbols {
		symbols[strings.TrimSpace(k)] = true
	}
	return &Store{
		cfg:     cfg,
		schema:  s,
		symbols: symbols,
		connect: connect,
	}
}

func connect(ctx context.Context, conf string) (writer, error) {
	if err := ping(ctx, conf); err != nil {
		return nil, err
	}
	if !strings.Contains(conf, "auto_flush=") {
		conf = strings.TrimSuffix(conf, ";") + ";auto_flush=off;"
	}
	sender, err := qdb.LineSenderFromConf(ctx, conf)
	if err != nil {
		return nil, err
	}
	return senderWriter{sender: sender}, nil
}

// confOptions splits a configuration string into its schema and options.
func confOptions(conf string) (string, map[string]string) {
	proto, rest, _ := strings.Cut(conf, "::")
	opts := make(map[string]string)
	for _, kv := range strings.Split(rest, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			opts[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return proto, opts
}

// ping checks that the HTTP endpoint answers. The HTTP sender only connects
// on the first flush, a TCP sender dials when it is created.
func ping(ctx context.Context, conf string) error {
	proto, opts := confOptions(conf)
	if proto != "http" && proto != "https" {
		return nil
	}
	addr := opts["addr"]
	if addr == "" {
		addr = "localhost:9000"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	if proto == "https" && opts["tls_verify"] == "unsafe_off" {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec // opted in by configuration
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proto+"://"+addr+"/ping", nil)
	if err != nil {
		return fmt.Errorf("ping questdb: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ping questdb at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("ping questdb at %s: unexpected status %s", addr, resp.Status)
	}
	return nil
}

// Open creates the sender. QuestDB creates the table on the first write.
func (s *Store) Open(ctx context.Context) error {
	w, err := s.connect(ctx, s.cfg.Conf)
	if err != nil {
		return fmt.Errorf("failed to create line sender: %w", err)
	}
	s.w = w
	connector.Logger(ctx).Info().Str("table", s.cfg.Table).Msg("questdb store opened")
	return nil
}

// Write buffers all rows and flushes them once. After an error the sender is
// recreated so no partial buffer is sent with the next attempt.
func (s *Store) Write(ctx context.Context, rows []connector.Row) error {
	if s.w == nil {
		if err := s.Open(ctx); err != nil {
			return connector.Transient(err)
		}
	}
	err := s.write(ctx, rows)
	if err != nil {
		if closeErr := s.w.Close(ctx); closeErr != nil {
			connector.Logger(ctx).Debug().Err(closeErr).Msg("failed to close line sender")
		}
		s.w = nil
	}
	return err
}

func (s *Store) write(ctx context.Context, rows []connector.Row) error {
	for _, r := range rows {
		p, err := buildPoint(s.schema, s.symbols, r)
		if err != nil {
			return connector.Permanent(fmt.Errorf("row %s: %w", r.Position, err))
		}
		if err := s.w.Write(ctx, s.cfg.Table, p); err != nil {
			return fmt.Errorf("buffer row %s: %w", r.Position, err)
		}
	}
	if err := s.w.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.w == nil {
		return nil
	}
	err := s.w.Close(ctx)
	s.w = nil
	return err
}

// ClassifyError returns ClassUnknown, QuestDB errors carry no machine
// readable code and are left to the default classification.
func (s *Store) ClassifyError(error) connector.ErrorClass {
	return connector.ClassUnknown
}

// buildPoint converts a row into a line. Missing nullable values are left
// out of the line.
func buildPoint(s schema.Schema, symbols map[string]bool, r connector.Row) (point, error) {
	p := point{At: r.Time}
	for i, c := range s.Columns {
		v := r.Values[i]
		if v == nil {
			continue
		}
		f := field{Name: c.Name, Value: v}
		if symbols[c.Name] {
			str, ok := v.(string)
			if !ok {
				return point{}, fmt.Errorf("symbol column %q must be a string, got %T", c.Name, v)
			}
			f.Value = str
			p.Symbols = append(p.Symbols, f)
			continue
		}
		switch v.(type) {
		case string, float64, int64, bool, time.Time:
		default:
			return point{}, fmt.Errorf("column %q has unsupported type %T", c.Name, v)
		}
		p.Columns = append(p.Columns, f)
	}
	return p, nil
}

// senderWriter writes points with a qdb.LineSender.
type senderWriter struct {
	sender qdb.LineSender
}

func (w senderWriter) Write(ctx context.Context, table string, p point) error {
	ls := w.sender.Table(table)
	for _, f := range p.Symbols {
		ls = ls.Symbol(f.Name, f.Value.(string))
	}
	for _, f := range p.Columns {
		switch v := f.Value.(type) {
		case string:
			ls = ls.StringColumn(f.Name, v)
		case float64:
			ls = ls.Float64Column(f.Name, v)
		case int64:
			ls = ls.Int64Column(f.Name, v)
		case bool:
			ls = ls.BoolColumn(f.Name, v)
		case time.Time:
			ls = ls.TimestampColumn(f.Name, v)
		}
	}
	return ls.At(ctx, p.At)
}

func (w senderWriter) Flush(ctx context.Context) error { return w.sender.Flush(ctx) }
func (w senderWriter) Close(ctx context.Context) error { return w.sender.Close(ctx) }
