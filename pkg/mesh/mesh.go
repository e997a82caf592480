/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mesh provides the telemetry source: the daemon's link to the mesh
// radio. Transports speak the Meshtastic client stream framing over TCP or a
// local serial port.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

// Connection modes.
const (
	ModeTCP    = "tcp"
	ModeSerial = "serial"
)

const defaultTCPPort = "4403"

var errInvalidMode = errors.New("invalid meshtastic mode")

// Source is the telemetry capability the poll loop depends on. Fetch never
// returns an error: any failure degrades to an empty reading so one
// unreachable node cannot abort a cycle.
type Source interface {
	Connect(ctx context.Context) error
	Fetch(ctx context.Context, nodeID string, timeout time.Duration) *models.Reading
	Close() error
}

// Config is the meshtastic section of the daemon configuration.
type Config struct {
	Mode      string          `json:"mode"`
	Address   string          `json:"address"`
	DwellTime models.Duration `json:"dwell_time,omitempty"`
}

// NewSource creates a source for the configured transport. Connect must be
// called before the first Fetch.
func NewSource(cfg *Config, log logger.Logger) (Source, error) {
	switch cfg.Mode {
	case ModeTCP:
		addr := cfg.Address
		if !strings.Contains(addr, ":") {
			addr += ":" + defaultTCPPort
		}

		return newClient(&tcpTransport{address: addr}, log), nil
	case ModeSerial:
		return newClient(&serialTransport{device: cfg.Address}, log), nil
	default:
		return nil, fmt.Errorf("%w: %q (expected %q or %q)", errInvalidMode, cfg.Mode, ModeTCP, ModeSerial)
	}
}

// ParseNodeID converts a roster node id ("!a1b2c3d4" or bare hex) to its
// node number.
func ParseNodeID(nodeID string) (uint32, error) {
	s := strings.TrimPrefix(strings.TrimSpace(nodeID), "!")

	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", nodeID, err)
	}

	return uint32(n), nil
}
