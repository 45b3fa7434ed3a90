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

// Package kafka implements a source consuming a Kafka consumer group.
// Offsets are committed only for acknowledged records.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/quixio/demo-solar-farm-data-generator-sub001/internal/kafkaconf"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	ConfigTopics         = "kafka.topics"
	ConfigGroup          = "kafka.group"
	ConfigStartOffset    = "kafka.start_offset"
	ConfigPollTimeout    = "kafka.poll_timeout"
	ConfigMaxPollRecords = "kafka.max_poll_records"
)

type Config struct {
	kafkaconf.Config `mapstructure:",squash"`

	Topics         []string      `mapstructure:"kafka.topics"`
	Group          string        `mapstructure:"kafka.group"`
	StartOffset    string        `mapstructure:"kafka.start_offset"`
	PollTimeout    time.Duration `mapstructure:"kafka.poll_timeout"`
	MaxPollRecords int           `mapstructure:"kafka.max_poll_records"`
}

func Parameters() connector.Parameters {
	return kafkaconf.Merge(connector.Parameters{
		ConfigTopics: {
			Description: "Comma separated list of topics to consume.",
			Type:        connector.ParameterTypeString,
			Validations: []connector.Validation{connector.ValidationRequired{}},
		},
		ConfigGroup: {
			Default:     "solarsink",
			Description: "Consumer group ID.",
			Type:        connector.ParameterTypeString,
		},
		ConfigStartOffset: {
			Default:     "earliest",
			Description: "Where to start when the group has no committed offset (earliest or latest).",
			Type:        connector.ParameterTypeString,
			Validations: []connector.Validation{
				connector.ValidationInclusion{List: []string{"earliest", "latest"}},
			},
		},
		ConfigPollTimeout: {
			Default:     "1s",
			Description: "How long a read waits for new records before backing off.",
			Type:        connector.ParameterTypeDuration,
		},
		ConfigMaxPollRecords: {
			Default:     "1000",
			Description: "Maximum number of records fetched per poll.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: 0}},
		},
	})
}

func ParseConfig(cfg map[string]string) (Config, error) {
	var c Config
	err := connector.DecodeConfig(cfg, Parameters(), &c)
	return c, err
}

// Connector registers the source.
func Connector() connector.SourceConnector {
	return connector.SourceConnector{
		Name:       "kafka",
		Summary:    "Consumes records from Kafka topics with a consumer group.",
		Parameters: Parameters,
		New: func(_ context.Context, cfg map[string]string) (connector.Source, error) {
			c, err := ParseConfig(cfg)
			if err != nil {
				return nil, err
			}
			return New(c), nil
		},
	}
}

// consumer is the subset of *kgo.Client used by the source.
type consumer interface {
	PollRecords(ctx context.Context, maxPollRecords int) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	PauseFetchPartitions(topicPartitions map[string][]int32) map[string][]int32
	ResumeFetchPartitions(topicPartitions map[string][]int32)
	Close()
}

type Source struct {
	cfg     Config
	connect func(cfg Config, opts ...kgo.Opt) (consumer, error)
	client  consumer

	// buffered holds fetched records not yet returned by Read. It is only
	// touched by Read.
	buffered []*kgo.Record

	m        sync.Mutex
	inflight map[connector.Position]*kgo.Record
}

var (
	_ connector.Source = (*Source)(nil)
	_ connector.Pauser = (*Source)(nil)
)

func New(cfg Config) *Source {
	return &Source{
		cfg:      cfg,
		connect:  connect,
		inflight: make(map[connector.Position]*kgo.Record),
	}
}

func connect(cfg Config, extra ...kgo.Opt) (consumer, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	offset := kgo.NewOffset().AtStart()
	if cfg.StartOffset == "latest" {
		offset = kgo.NewOffset().AtEnd()
	}
	opts = append(opts,
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(offset),
		kgo.DisableAutoCommit(),
	)
	opts = append(opts, extra...)

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}
	return cl, nil
}

func (s *Source) Open(ctx context.Context) error {
	logger := connector.Logger(ctx)
	revoked := func(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
		if n := s.forget(lost); n > 0 {
			logger.Warn().Int("records", n).Msg("partitions revoked with unacknowledged records, they will be redelivered")
		}
	}

	cl, err := s.connect(s.cfg, kgo.OnPartitionsRevoked(revoked), kgo.OnPartitionsLost(revoked))
	if err != nil {
		return err
	}
	s.client = cl
	logger.Info().
		Strs("topics", s.cfg.Topics).
		Str("group", s.cfg.Group).
		Msg("kafka source opened")
	return nil
}

// Read returns the next fetched record. It returns ErrBackoffRetry when no
// records arrived within the poll timeout.
func (s *Source) Read(ctx context.Context) (connector.Record, error) {
	if len(s.buffered) == 0 {
		if err := s.poll(ctx); err != nil {
			return connector.Record{}, err
		}
	}
	kr := s.buffered[0]
	s.buffered = s.buffered[1:]

	r := toRecord(kr)
	s.m.Lock()
	s.inflight[r.Position()] = kr
	s.m.Unlock()
	return r, nil
}

func (s *Source) poll(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	fetches := s.client.PollRecords(pollCtx, s.cfg.MaxPollRecords)
	if fetches.IsClientClosed() {
		return io.EOF
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) {
			return
		}
		connector.Logger(ctx).Warn().Err(err).
			Str("topic", topic).
			Int32("partition", partition).
			Msg("fetch error")
	})

	s.buffered = fetches.Records()
	if len(s.buffered) == 0 {
		return connector.ErrBackoffRetry
	}
	return nil
}

func toRecord(kr *kgo.Record) connector.Record {
	headers := make(connector.Metadata, len(kr.Headers)+2)
	for _, h := range kr.Headers {
		headers[h.Key] = string(h.Value)
	}
	headers.SetSourceName("kafka")
	if !kr.Timestamp.IsZero() {
		headers.SetCreatedAt(kr.Timestamp)
	}
	return connector.Record{
		Key:       kr.Key,
		Value:     connector.RawData(kr.Value),
		Timestamp: kr.Timestamp,
		Topic:     kr.Topic,
		Partition: kr.Partition,
		Offset:    kr.Offset,
		Headers:   headers,
	}
}

// Ack commits the offsets of the acknowledged records. Positions that are
// not in flight, e.g. after a rebalance, are ignored.
func (s *Source) Ack(ctx context.Context, positions []connector.Position) error {
	s.m.Lock()
	rs := make([]*kgo.Record, 0, len(positions))
	for _, p := range positions {
		if kr, ok := s.inflight[p]; ok {
			rs = append(rs, kr)
			delete(s.inflight, p)
		}
	}
	s.m.Unlock()

	if len(rs) == 0 {
		return nil
	}
	if err := s.client.CommitRecords(ctx, rs...); err != nil {
		return fmt.Errorf("commit %d records: %w", len(rs), err)
	}
	return nil
}

// forget drops in-flight records of the given partitions and returns how
// many were dropped.
func (s *Source) forget(partitions map[string][]int32) int {
	s.m.Lock()
	defer s.m.Unlock()
	n := 0
	for p := range s.inflight {
		for _, part := range partitions[p.Topic] {
			if part == p.Partition {
				delete(s.inflight, p)
				n++
				break
			}
		}
	}
	return n
}

func (s *Source) Pause(_ context.Context, topic string, partition int32) error {
	s.client.PauseFetchPartitions(map[string][]int32{topic: {partition}})
	return nil
}

func (s *Source) Resume(_ context.Context, topic string, partition int32) error {
	s.client.ResumeFetchPartitions(map[string][]int32{topic: {partition}})
	return nil
}

func (s *Source) Close(context.Context) error {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}
