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

// Package sink delivers rendered snapshots to the configured outputs: the
// textfile-collector directory and the push gateway.
package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/meshmetricsd/pkg/exporter"
	"github.com/carverauto/meshmetricsd/pkg/logger"
)

const (
	combinedFilename = "meshtastic.prom"
	nodeFilePrefix   = "meshtastic-"
	nodeFileSuffix   = ".prom"
	outputDirMode    = 0o755
	outputFileMode   = 0o644
)

// OutputConfig is the output section of the daemon configuration.
type OutputConfig struct {
	Directory       string `json:"directory"`
	IndividualFiles bool   `json:"individual_files"`
	NodeIDFormat    string `json:"node_id_format,omitempty"`
}

// FileWriter publishes snapshots to the textfile-collector directory. Every
// publication is all-or-nothing: a reader sees either the previous complete
// file or the new complete file, never a partial write.
type FileWriter struct {
	config OutputConfig
	logger logger.Logger
}

// NewFileWriter creates a file sink. An empty Directory disables it.
func NewFileWriter(config OutputConfig, log logger.Logger) *FileWriter {
	return &FileWriter{config: config, logger: log}
}

// Enabled reports whether an output directory is configured.
func (w *FileWriter) Enabled() bool {
	return w.config.Directory != ""
}

// Publish writes the snapshot to the output directory in the configured mode.
// Disabled writers succeed as a no-op.
func (w *FileWriter) Publish(snapshot exporter.Snapshot) error {
	if !w.Enabled() {
		return nil
	}

	if err := os.MkdirAll(w.config.Directory, outputDirMode); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", w.config.Directory, err)
	}

	if !w.config.IndividualFiles {
		path := filepath.Join(w.config.Directory, combinedFilename)
		return w.writeAtomic(path, snapshot.Render())
	}

	order, groups := snapshot.ByNode()

	var firstErr error

	for _, node := range order {
		name := nodeFilePrefix + exporter.SanitizeFilename(node) + nodeFileSuffix
		path := filepath.Join(w.config.Directory, name)

		if err := w.writeAtomic(path, groups[node].Render()); err != nil {
			w.logger.Error().Err(err).Str("node", node).Msg("Failed to write node metrics file")

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// writeAtomic writes content through a temp file in the target directory and
// renames it onto the final path. The temp file lives next to the target so
// the rename stays on one filesystem. On any failure before the rename the
// temp file is removed and the previous target is untouched.
func (w *FileWriter) writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in '%s': %w", dir, err)
	}

	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(content); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmp.Chmod(outputFileMode); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace '%s': %w", path, err)
	}

	w.logger.Debug().Str("path", path).Int("bytes", len(content)).Msg("Published metrics file")

	return nil
}
