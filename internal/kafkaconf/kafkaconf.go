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

// Package kafkaconf holds the Kafka connection settings shared by the Kafka
// source and the Kafka store.
package kafkaconf

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	connector "github.com/quixio/demo-solar-farm-data-generator-sub001"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

const (
	ConfigBrokers       = "kafka.brokers"
	ConfigClientID      = "kafka.client_id"
	ConfigSASLMechanism = "kafka.sasl.mechanism"
	ConfigSASLUsername  = "kafka.sasl.username"
	ConfigSASLPassword  = "kafka.sasl.password"
	ConfigTLSEnabled    = "kafka.tls.enabled"
	ConfigTLSCAFile     = "kafka.tls.ca_file"
	ConfigTLSSkipVerify = "kafka.tls.skip_verify"
)

// Config describes how to reach a Kafka cluster. Embed it with
// `mapstructure:",squash"`.
type Config struct {
	Brokers  []string `mapstructure:"kafka.brokers"`
	ClientID string   `mapstructure:"kafka.client_id"`

	SASLMechanism string `mapstructure:"kafka.sasl.mechanism"`
	SASLUsername  string `mapstructure:"kafka.sasl.username"`
	SASLPassword  string `mapstructure:"kafka.sasl.password"`

	TLSEnabled    bool   `mapstructure:"kafka.tls.enabled"`
	TLSCAFile     string `mapstructure:"kafka.tls.ca_file"`
	TLSSkipVerify bool   `mapstructure:"kafka.tls.skip_verify"`
}

// Parameters returns the connection parameters. They are merged into the
// parameters of the source and the store.
func Parameters() connector.Parameters {
	return connector.Parameters{
		ConfigBrokers: {
			Default:     "localhost:9092",
			Description: "Comma separated list of seed brokers.",
			Type:        connector.ParameterTypeString,
		},
		ConfigClientID: {
			Default:     "solarsink",
			Description: "Client ID sent to the brokers.",
			Type:        connector.ParameterTypeString,
		},
		ConfigSASLMechanism: {
			Description: "SASL mechanism (PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512). Empty disables SASL.",
			Type:        connector.ParameterTypeString,
			Validations: []connector.Validation{
				connector.ValidationInclusion{List: []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"}},
			},
		},
		ConfigSASLUsername: {
			Description: "SASL user name.",
			Type:        connector.ParameterTypeString,
		},
		ConfigSASLPassword: {
			Description: "SASL password.",
			Type:        connector.ParameterTypeString,
		},
		ConfigTLSEnabled: {
			Default:     "false",
			Description: "Connect with TLS.",
			Type:        connector.ParameterTypeBool,
		},
		ConfigTLSCAFile: {
			Description: "PEM file with the CA used to verify the brokers.",
			Type:        connector.ParameterTypeFile,
		},
		ConfigTLSSkipVerify: {
			Default:     "false",
			Description: "Skip verification of the broker certificates.",
			Type:        connector.ParameterTypeBool,
		},
	}
}

// Merge returns the connection parameters together with params.
func Merge(params connector.Parameters) connector.Parameters {
	out := Parameters()
	for k, v := range params {
		out[k] = v
	}
	return out
}

// Options returns the client options for c.
func (c Config) Options() ([]kgo.Opt, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers configured")
	}
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...)}
	if c.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.ClientID))
	}

	if c.SASLMechanism != "" {
		m, err := c.mechanism()
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(m))
	}

	if c.TLSEnabled {
		tc, err := c.tlsConfig()
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.DialTLSConfig(tc))
	}
	return opts, nil
}

func (c Config) mechanism() (sasl.Mechanism, error) {
	switch c.SASLMechanism {
	case "PLAIN":
		return plain.Auth{User: c.SASLUsername, Pass: c.SASLPassword}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return scram.Auth{User: c.SASLUsername, Pass: c.SASLPassword}.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return scram.Auth{User: c.SASLUsername, Pass: c.SASLPassword}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", c.SASLMechanism)
	}
}

func (c Config) tlsConfig() (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLSSkipVerify, //nolint:gosec // opt-in for test clusters
	}
	if c.TLSCAFile != "" {
		pem, err := os.ReadFile(c.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file %s: %w", c.TLSCAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.TLSCAFile)
		}
		tc.RootCAs = pool
	}
	return tc, nil
}
