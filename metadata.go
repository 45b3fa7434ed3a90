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

package connector

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// MetadataCreatedAt is a Record.Headers key for the time when the reading
	// was taken by the producer. The expected format is a unix timestamp in
	// nanoseconds.
	MetadataCreatedAt = "solarsink.createdAt"
	// MetadataReadAt is a Record.Headers key for the time when the record was
	// read by the source. The expected format is a unix timestamp in
	// nanoseconds.
	MetadataReadAt = "solarsink.readAt"
	// MetadataSourceName is a Record.Headers key for the name of the source
	// that produced the record.
	MetadataSourceName = "solarsink.source"
)

// ErrMetadataFieldNotFound is returned by Metadata getters when a key is
// missing or empty.
var ErrMetadataFieldNotFound = errors.New("metadata field not found")

// GetCreatedAt parses the value for key MetadataCreatedAt as a unix
// timestamp. If the value does not exist or the value is empty the function
// returns ErrMetadataFieldNotFound.
func (m Metadata) GetCreatedAt() (time.Time, error) {
	return m.getTime(MetadataCreatedAt)
}

// SetCreatedAt sets the metadata value for key MetadataCreatedAt as a
// unix timestamp in nanoseconds.
func (m Metadata) SetCreatedAt(createdAt time.Time) {
	m[MetadataCreatedAt] = strconv.FormatInt(createdAt.UnixNano(), 10)
}

// GetReadAt parses the value for key MetadataReadAt as a unix timestamp. If
// the value does not exist or the value is empty the function returns
// ErrMetadataFieldNotFound.
func (m Metadata) GetReadAt() (time.Time, error) {
	return m.getTime(MetadataReadAt)
}

// SetReadAt sets the metadata value for key MetadataReadAt as a unix
// timestamp in nanoseconds.
func (m Metadata) SetReadAt(readAt time.Time) {
	m[MetadataReadAt] = strconv.FormatInt(readAt.UnixNano(), 10)
}

// GetSourceName returns the value for key MetadataSourceName.
func (m Metadata) GetSourceName() (string, error) {
	return m.getValue(MetadataSourceName)
}

// SetSourceName sets the metadata value for key MetadataSourceName.
func (m Metadata) SetSourceName(name string) {
	m[MetadataSourceName] = name
}

func (m Metadata) getTime(key string) (time.Time, error) {
	raw, err := m.getValue(key)
	if err != nil {
		return time.Time{}, err
	}
	unixNano, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse value for %q: %w", key, err)
	}
	return time.Unix(0, unixNano).UTC(), nil
}

// getValue returns the value for a specific key. If the value does not exist
// or is empty the function returns ErrMetadataFieldNotFound.
func (m Metadata) getValue(key string) (string, error) {
	str := m[key]
	if str == "" {
		return "", fmt.Errorf("failed to get value for %q: %w", key, ErrMetadataFieldNotFound)
	}
	return str, nil
}
