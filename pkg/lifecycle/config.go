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

package lifecycle

import (
	"errors"
	"time"

	"github.com/carverauto/meshmetricsd/pkg/exporter"
	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/mesh"
	"github.com/carverauto/meshmetricsd/pkg/poller"
	"github.com/carverauto/meshmetricsd/pkg/roster"
	"github.com/carverauto/meshmetricsd/pkg/sink"
)

var (
	errDeviceFileRequired  = errors.New("devices.file is required")
	errMeshAddressRequired = errors.New("meshtastic.address is required")
	errInvalidNodeIDFormat = errors.New("output.node_id_format must be 'default' or 'clean'")
)

// MonitoringConfig is the monitoring section: the stats file and the
// optional self-metrics listener.
type MonitoringConfig struct {
	EnableStats bool   `json:"enable_stats"`
	StatsFile   string `json:"stats_file,omitempty"`
	ListenAddr  string `json:"listen_addr,omitempty"`
}

// Config is the full daemon configuration. A reload produces a fresh value;
// holders swap to it between cycles, never mid-cycle.
type Config struct {
	Daemon     poller.Config     `json:"daemon"`
	Meshtastic mesh.Config       `json:"meshtastic"`
	Devices    roster.Config     `json:"devices"`
	Output     sink.OutputConfig `json:"output"`
	Push       sink.PushConfig   `json:"push"`
	Monitoring MonitoringConfig  `json:"monitoring"`
	Logging    *logger.Config    `json:"logging,omitempty"`
}

// Validate implements config.Validator: defaults for the daemon section,
// then structural checks.
func (c *Config) Validate() error {
	if err := c.Daemon.Validate(); err != nil {
		return err
	}

	if c.Meshtastic.Mode == "" {
		c.Meshtastic.Mode = mesh.ModeSerial
	}

	if c.Meshtastic.Address == "" {
		return errMeshAddressRequired
	}

	if time.Duration(c.Meshtastic.DwellTime) < 0 {
		c.Meshtastic.DwellTime = 0
	}

	if c.Devices.File == "" {
		return errDeviceFileRequired
	}

	switch c.Output.NodeIDFormat {
	case "", exporter.NodeIDFormatDefault, exporter.NodeIDFormatClean:
	default:
		return errInvalidNodeIDFormat
	}

	return nil
}

// DwellTime returns the configured inter-device dwell, defaulting to 10s.
func (c *Config) DwellTime() time.Duration {
	if time.Duration(c.Meshtastic.DwellTime) > 0 {
		return time.Duration(c.Meshtastic.DwellTime)
	}

	return 10 * time.Second
}
