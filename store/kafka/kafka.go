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

// Package kafka implements a store that republishes decoded rows to a Kafka
// topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/kafkaconf"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/schema"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	ConfigTopic             = "kafka.sink.topic"
	ConfigFormat            = "kafka.sink.format"
	ConfigKey               = "kafka.sink.key"
	ConfigDeliveryTimeout   = "kafka.sink.delivery_timeout"
	ConfigCompression       = "kafka.sink.compression"
	ConfigCreateTopic       = "kafka.sink.create_topic"
	ConfigPartitions        = "kafka.sink.partitions"
	ConfigReplicationFactor = "kafka.sink.replication_factor"
)

type Config struct {
	kafkaconf.Config `mapstructure:",squash"`

	Topic             string        `mapstructure:"kafka.sink.topic"`
	Format            string        `mapstructure:"kafka.sink.format"`
	Key               string        `mapstructure:"kafka.sink.key"`
	DeliveryTimeout   time.Duration `mapstructure:"kafka.sink.delivery_timeout"`
	Compression       string        `mapstructure:"kafka.sink.compression"`
	CreateTopic       bool          `mapstructure:"kafka.sink.create_topic"`
	Partitions        int32         `mapstructure:"kafka.sink.partitions"`
	ReplicationFactor int16         `mapstructure:"kafka.sink.replication_factor"`

	Table string `mapstructure:"-"`
}

func Parameters() connector.Parameters {
	return kafkaconf.Merge(connector.Parameters{
		ConfigTopic: {
			Description: "Topic the rows are produced to. Can be a template using the row fields, defaults to the target table.",
			Type:        connector.ParameterTypeString,
		},
		ConfigFormat: {
			Default:     "json",
			Description: `Message value format, "json" or "template:<go template>".`,
			Type:        connector.ParameterTypeString,
		},
		ConfigKey: {
			Description: "Go template for the message key. Defaults to the key columns joined by a vertical bar.",
			Type:        connector.ParameterTypeString,
		},
		ConfigDeliveryTimeout: {
			Default:     "30s",
			Description: "Time a record may spend being produced before it fails.",
			Type:        connector.ParameterTypeDuration,
		},
		ConfigCompression: {
			Default:     "snappy",
			Description: "Batch compression (none, gzip, snappy, lz4 or zstd).",
			Type:        connector.ParameterTypeString,
			Validations: []connector.Validation{
				connector.ValidationInclusion{List: []string{"none", "gzip", "snappy", "lz4", "zstd"}},
			},
		},
		ConfigCreateTopic: {
			Default:     "false",
			Description: "Create the topic on start. Ignored for templated topics.",
			Type:        connector.ParameterTypeBool,
		},
		ConfigPartitions: {
			Default:     "1",
			Description: "Partitions of a created topic.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: 0}},
		},
		ConfigReplicationFactor: {
			Default:     "1",
			Description: "Replication factor of a created topic.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: 0}},
		},
	})
}

func ParseConfig(table string, cfg map[string]string) (Config, error) {
	var c Config
	if err := connector.DecodeConfig(cfg, Parameters(), &c); err != nil {
		return Config{}, err
	}
	c.Table = table
	if c.Topic == "" {
		c.Topic = table
	}
	return c, nil
}

// Connector registers the store.
func Connector() connector.StoreConnector {
	return connector.StoreConnector{
		Name:       "kafka",
		Summary:    "Produces rows as messages to a Kafka topic.",
		Parameters: Parameters,
		New: func(_ context.Context, core connector.Config, s schema.Schema, cfg map[string]string) (connector.Store, error) {
			c, err := ParseConfig(core.TargetTable, cfg)
			if err != nil {
				return nil, err
			}
			return New(c, s)
		},
	}
}

// producer is the subset of *kgo.Client used by the store.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// admin is the subset of *kadm.Client used by the store.
type admin interface {
	CreateTopic(ctx context.Context, partitions int32, replicationFactor int16, configs map[string]*string, topic string) (kadm.CreateTopicResponse, error)
}

type Store struct {
	cfg    Config
	schema schema.Schema

	value connector.RowFormatter
	topic *connector.TemplateRowFormatter // nil for a fixed topic
	key   *connector.TemplateRowFormatter // nil to use the key columns

	connect func(cfg Config) (producer, admin, error)
	client  producer
}

var (
	_ connector.Store           = (*Store)(nil)
	_ connector.ErrorClassifier = (*Store)(nil)
)

// New validates the formats in cfg and returns the store.
func New(cfg Config, s schema.Schema) (*Store, error) {
	st := &Store{cfg: cfg, schema: s, connect: connect}

	var err error
	if st.value, err = connector.NewRowFormatter(cfg.Format, s); err != nil {
		return nil, err
	}
	if strings.Contains(cfg.Topic, "{{") {
		if st.topic, err = connector.NewTemplateRowFormatter(cfg.Topic, s); err != nil {
			return nil, fmt.Errorf("topic: %w", err)
		}
	}
	if cfg.Key != "" {
		if st.key, err = connector.NewTemplateRowFormatter(cfg.Key, s); err != nil {
			return nil, fmt.Errorf("key: %w", err)
		}
	}
	return st, nil
}

func compression(name string) kgo.CompressionCodec {
	switch name {
	case "gzip":
		return kgo.GzipCompression()
	case "snappy":
		return kgo.SnappyCompression()
	case "lz4":
		return kgo.Lz4Compression()
	case "zstd":
		return kgo.ZstdCompression()
	default:
		return kgo.NoCompression()
	}
}

func connect(cfg Config) (producer, admin, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts,
		kgo.ProducerBatchCompression(compression(cfg.Compression)),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer client: %w", err)
	}
	return cl, kadm.NewClient(cl), nil
}

// Open creates the client, checks that a broker is reachable and, if enabled,
// creates the topic.
func (s *Store) Open(ctx context.Context) error {
	p, adm, err := s.connect(s.cfg)
	if err != nil {
		return err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return fmt.Errorf("failed to reach brokers %v: %w", s.cfg.Brokers, err)
	}
	s.client = p

	if s.cfg.CreateTopic && s.topic == nil {
		_, err := adm.CreateTopic(ctx, s.cfg.Partitions, s.cfg.ReplicationFactor, nil, s.cfg.Topic)
		if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("failed to create topic %s: %w", s.cfg.Topic, err)
		}
	}
	connector.Logger(ctx).Info().
		Strs("brokers", s.cfg.Brokers).
		Str("topic", s.cfg.Topic).
		Str("format", s.value.Name()).
		Msg("kafka store opened")
	return nil
}

// Write produces all rows and waits until every record is acknowledged by
// the brokers.
func (s *Store) Write(ctx context.Context, rows []connector.Row) error {
	recs := make([]*kgo.Record, len(rows))
	for i, r := range rows {
		rec, err := s.record(r)
		if err != nil {
			return connector.Permanent(fmt.Errorf("row %s: %w", r.Position, err))
		}
		recs[i] = rec
	}
	if err := s.client.ProduceSync(ctx, recs...).FirstErr(); err != nil {
		return fmt.Errorf("produce %d records: %w", len(recs), err)
	}
	return nil
}

func (s *Store) record(r connector.Row) (*kgo.Record, error) {
	value, err := s.value.Format(r)
	if err != nil {
		return nil, err
	}
	rec := &kgo.Record{
		Topic:     s.cfg.Topic,
		Value:     value,
		Timestamp: r.Time,
	}
	if s.topic != nil {
		topic, err := s.topic.Execute(r)
		if err != nil {
			return nil, err
		}
		rec.Topic = string(topic)
	}
	if rec.Key, err = s.recordKey(r); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) recordKey(r connector.Row) ([]byte, error) {
	if s.key != nil {
		return s.key.Execute(r)
	}
	if len(s.schema.Key) == 0 {
		return nil, nil
	}
	fields := connector.RowFields(s.schema, r)
	parts := make([]string, len(s.schema.Key))
	for i, k := range s.schema.Key {
		parts[i] = fmt.Sprint(fields[k])
	}
	return []byte(strings.Join(parts, "|")), nil
}

func (s *Store) Close(context.Context) error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}

// ClassifyError maps produce errors to error classes.
func (s *Store) ClassifyError(err error) connector.ErrorClass {
	switch {
	case errors.Is(err, kgo.ErrRecordTimeout), errors.Is(err, kerr.RequestTimedOut):
		return connector.ClassTimeout
	case errors.Is(err, kgo.ErrMaxBuffered), errors.Is(err, kerr.ThrottlingQuotaExceeded):
		return connector.ClassOverload
	case errors.Is(err, kgo.ErrRecordRetries), kerr.IsRetriable(err):
		return connector.ClassTransient
	}
	var ke *kerr.Error
	if errors.As(err, &ke) {
		return connector.ClassFatal
	}
	return connector.ClassUnknown
}
