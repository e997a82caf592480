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

// Package roster loads the device roster from a CSV file, optionally
// encrypted at rest.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/carverauto/meshmetricsd/pkg/models"
)

var (
	// ErrNoDevices indicates the roster parsed but contained no usable rows.
	ErrNoDevices = errors.New("no devices found in roster")

	errPasswordFileRequired = errors.New("encrypted roster requires a password file")
)

// Config is the devices section of the daemon configuration.
type Config struct {
	File         string `json:"file"`
	Encrypted    bool   `json:"encrypted"`
	PasswordFile string `json:"password_file,omitempty"`
}

// Load reads the configured roster file. When Encrypted is set the password
// is read from PasswordFile and the payload is decrypted before parsing.
func Load(cfg *Config) ([]models.Device, error) {
	var password string

	if cfg.Encrypted {
		if cfg.PasswordFile == "" {
			return nil, errPasswordFileRequired
		}

		raw, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read password file: %w", err)
		}

		password = strings.TrimSpace(string(raw))
	}

	return LoadFile(cfg.File, password)
}

// LoadFile reads and parses a roster file. A non-empty password triggers
// decryption of the file content first.
func LoadFile(path, password string) ([]models.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster '%s': %w", path, err)
	}

	content := string(data)

	if password != "" {
		content, err = Decrypt(data, password)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt roster '%s': %w", path, err)
		}
	}

	return Parse(content)
}

// Parse converts roster text to devices. Blank lines and #-comments are
// dropped before CSV parsing; only node_id is mandatory per row.
func Parse(content string) ([]models.Device, error) {
	lines := make([]string, 0)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lines = append(lines, line)
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster CSV: %w", err)
	}

	devices := make([]models.Device, 0, len(rows))

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}

		d := models.Device{NodeID: strings.TrimSpace(row[0])}
		if d.NodeID == "" {
			continue
		}

		if len(row) > 1 {
			d.ContactName = strings.TrimSpace(row[1])
		}

		if len(row) > 2 {
			d.Location = strings.TrimSpace(row[2])
		}

		if len(row) > 3 {
			d.Latitude = strings.TrimSpace(row[3])
		}

		if len(row) > 4 {
			d.Longitude = strings.TrimSpace(row[4])
		}

		devices = append(devices, d)
	}

	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	return devices, nil
}
