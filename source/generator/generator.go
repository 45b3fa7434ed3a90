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

// Package generator implements a source producing synthetic solar panel
// readings. Every round emits one reading per panel, rounds are spaced by the
// configured interval.
package generator

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
)

const (
	ConfigPanels     = "generator.panels"
	ConfigLocations  = "generator.locations"
	ConfigInterval   = "generator.interval"
	ConfigCount      = "generator.count"
	ConfigTopic      = "generator.topic"
	ConfigPartitions = "generator.partitions"
	ConfigSeed       = "generator.seed"
)

type Config struct {
	Panels     int           `mapstructure:"generator.panels"`
	Locations  int           `mapstructure:"generator.locations"`
	Interval   time.Duration `mapstructure:"generator.interval"`
	Count      int64         `mapstructure:"generator.count"`
	Topic      string        `mapstructure:"generator.topic"`
	Partitions int32         `mapstructure:"generator.partitions"`
	Seed       uint64        `mapstructure:"generator.seed"`
}

func Parameters() connector.Parameters {
	return connector.Parameters{
		ConfigPanels: {
			Default:     "10",
			Description: "Number of simulated panels.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: 0}},
		},
		ConfigLocations: {
			Default:     "3",
			Description: "Number of locations the panels are spread over.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: 0}},
		},
		ConfigInterval: {
			Default:     "1s",
			Description: "Time between two rounds of readings.",
			Type:        connector.ParameterTypeDuration,
		},
		ConfigCount: {
			Default:     "0",
			Description: "Total number of readings to produce, 0 means no limit.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: -1}},
		},
		ConfigTopic: {
			Default:     "solar-data",
			Description: "Topic name reported on the records.",
			Type:        connector.ParameterTypeString,
		},
		ConfigPartitions: {
			Default:     "1",
			Description: "Number of partitions the panels are spread over.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: 0}},
		},
		ConfigSeed: {
			Default:     "0",
			Description: "Seed of the random generator, 0 picks a random seed.",
			Type:        connector.ParameterTypeInt,
			Validations: []connector.Validation{connector.ValidationGreaterThan{Value: -1}},
		},
	}
}

func ParseConfig(cfg map[string]string) (Config, error) {
	var c Config
	err := connector.DecodeConfig(cfg, Parameters(), &c)
	return c, err
}

// Connector registers the source.
func Connector() connector.SourceConnector {
	return connector.SourceConnector{
		Name:       "generator",
		Summary:    "Generates synthetic solar panel readings.",
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

type Location struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Reading is the message body of a generated record.
type Reading struct {
	PanelID     string   `json:"panel_id"`
	Location    Location `json:"location"`
	Temperature float64  `json:"temperature"`
	PowerOutput float64  `json:"power_output"`
	UnitPower   string   `json:"unit_power"`
	Irradiance  float64  `json:"irradiance"`
	Voltage     float64  `json:"voltage"`
	Current     float64  `json:"current"`
	Online      bool     `json:"online"`
	Timestamp   int64    `json:"timestamp"`
}

type panel struct {
	id        string
	location  Location
	partition int32
	// efficiency scales the output of a nominal panel.
	efficiency float64
}

type Source struct {
	cfg Config
	now func() time.Time

	rng     *rand.Rand
	panels  []panel
	pending []connector.Record
	next    time.Time
	offsets []int64
	emitted int64

	acked atomic.Int64
}

var _ connector.Source = (*Source)(nil)

func New(cfg Config) *Source {
	return &Source{cfg: cfg, now: time.Now}
}

func (s *Source) Open(ctx context.Context) error {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	var key [32]byte
	for i := range 4 {
		for j := range 8 {
			key[i*8+j] = byte(seed >> (8 * j))
		}
	}
	src := rand.NewChaCha8(key)
	s.rng = rand.New(src)

	locations := make([]Location, max(s.cfg.Locations, 1))
	for i := range locations {
		locations[i] = Location{
			ID:        fmt.Sprintf("location-%03d", i+1),
			Name:      fmt.Sprintf("Solar Farm %d", i+1),
			Latitude:  round(35+s.rng.Float64()*20, 4),
			Longitude: round(-10+s.rng.Float64()*40, 4),
		}
	}

	partitions := max(s.cfg.Partitions, 1)
	s.panels = make([]panel, max(s.cfg.Panels, 1))
	for i := range s.panels {
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return fmt.Errorf("failed to generate panel id: %w", err)
		}
		s.panels[i] = panel{
			id:         id.String(),
			location:   locations[i%len(locations)],
			partition:  int32(i) % partitions,
			efficiency: 0.9 + s.rng.Float64()*0.2,
		}
	}
	s.offsets = make([]int64, partitions)
	s.next = s.now()

	connector.Logger(ctx).Info().
		Int("panels", len(s.panels)).
		Int("locations", len(locations)).
		Dur("interval", s.cfg.Interval).
		Int64("count", s.cfg.Count).
		Msg("generator opened")
	return nil
}

// Read returns the next reading. It blocks until the next round is due and
// returns io.EOF once the configured count is reached.
func (s *Source) Read(ctx context.Context) (connector.Record, error) {
	if s.cfg.Count > 0 && s.emitted >= s.cfg.Count {
		return connector.Record{}, io.EOF
	}
	if len(s.pending) == 0 {
		if wait := s.next.Sub(s.now()); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return connector.Record{}, ctx.Err()
			case <-t.C:
			}
		}
		if err := s.round(s.next); err != nil {
			return connector.Record{}, err
		}
		s.next = s.next.Add(s.cfg.Interval)
	}

	r := s.pending[0]
	s.pending = s.pending[1:]
	s.emitted++
	return r, nil
}

func (s *Source) round(at time.Time) error {
	at = at.UTC()
	for _, p := range s.panels {
		b, err := json.Marshal(s.reading(p, at))
		if err != nil {
			return fmt.Errorf("failed to encode reading: %w", err)
		}
		headers := connector.Metadata{}
		headers.SetSourceName("generator")
		headers.SetCreatedAt(at)

		s.pending = append(s.pending, connector.Record{
			Key:       []byte(p.id),
			Value:     connector.RawData(b),
			Timestamp: at,
			Topic:     s.cfg.Topic,
			Partition: p.partition,
			Offset:    s.offsets[p.partition],
			Headers:   headers,
		})
		s.offsets[p.partition]++
	}
	return nil
}

// Panel constants of a nominal 1.6 m² module.
const (
	panelArea       = 1.6
	panelEfficiency = 0.2
	tempCoefficient = -0.004
	peakIrradiance  = 1000.0
)

func (s *Source) reading(p panel, at time.Time) Reading {
	// local solar hour from the longitude
	hour := float64(at.Hour()) + float64(at.Minute())/60 + p.location.Longitude/15
	hour = math.Mod(hour+24, 24)

	irradiance := 0.0
	if hour > 6 && hour < 18 {
		irradiance = peakIrradiance * math.Sin(math.Pi*(hour-6)/12) * (0.8 + s.rng.Float64()*0.2)
	}
	temperature := 15 + s.rng.Float64()*10 + irradiance*0.025

	online := s.rng.Float64() >= 0.02
	power, voltage, current := 0.0, 0.0, 0.0
	if online && irradiance > 0 {
		derate := 1 + tempCoefficient*(temperature-25)
		power = irradiance * panelArea * panelEfficiency * p.efficiency * derate
		voltage = 30 + s.rng.Float64()*8
		current = power / voltage
	}

	return Reading{
		PanelID:     p.id,
		Location:    p.location,
		Temperature: round(temperature, 2),
		PowerOutput: round(power, 2),
		UnitPower:   "W",
		Irradiance:  round(irradiance, 2),
		Voltage:     round(voltage, 2),
		Current:     round(current, 3),
		Online:      online,
		Timestamp:   at.UnixNano(),
	}
}

func round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}

// Ack only counts acknowledged readings, generated readings are not
// replayed.
func (s *Source) Ack(_ context.Context, positions []connector.Position) error {
	s.acked.Add(int64(len(positions)))
	return nil
}

// Acked returns the number of acknowledged readings.
func (s *Source) Acked() int64 { return s.acked.Load() }

func (s *Source) Close(ctx context.Context) error {
	connector.Logger(ctx).Info().
		Int64("emitted", s.emitted).
		Int64("acked", s.acked.Load()).
		Msg("generator closed")
	return nil
}
