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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

// StatsRecorder owns the daemon's health counters: it applies every cycle's
// outcome, samples the daemon's own resource usage and rewrites the stats
// file wholesale. Mutated only from the poll goroutine.
type StatsRecorder struct {
	stats   *models.DaemonStats
	proc    *process.Process
	metrics *selfMetrics
	logger  logger.Logger

	// config is replaced on reload from the signal goroutine.
	mu     sync.Mutex
	config MonitoringConfig
}

// NewStatsRecorder creates the recorder around the shared stats value (the
// coordinator updates the push counters on the same value).
func NewStatsRecorder(stats *models.DaemonStats, config MonitoringConfig, metrics *selfMetrics, log logger.Logger) *StatsRecorder {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// Self-usage sampling is best effort.
		proc = nil
	}

	return &StatsRecorder{
		stats:   stats,
		config:  config,
		proc:    proc,
		metrics: metrics,
		logger:  log,
	}
}

// SetConfig swaps the monitoring settings on reload.
func (r *StatsRecorder) SetConfig(config MonitoringConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.config = config
}

// RecordCycle implements poller.CycleRecorder.
func (r *StatsRecorder) RecordCycle(result models.CycleResult) {
	now := time.Now()

	r.stats.LastPoll = &now
	r.stats.TotalPolls++
	r.stats.NodesProcessed += uint64(result.NodesProcessed)
	r.stats.NodesSuccessful += uint64(result.NodesSuccessful)

	if result.NodesSuccessful > 0 {
		r.stats.SuccessfulPolls++
	} else {
		r.stats.FailedPolls++
	}

	r.sampleUsage()

	if r.metrics != nil {
		r.metrics.observe(r.stats, result)
	}

	if err := r.Persist(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to write stats file")
	}
}

// Persist rewrites the stats file. Disabled recorders succeed as a no-op.
func (r *StatsRecorder) Persist() error {
	r.mu.Lock()
	cfg := r.config
	r.mu.Unlock()

	if !cfg.EnableStats || cfg.StatsFile == "" {
		return nil
	}

	if dir := filepath.Dir(cfg.StatsFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create stats directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(r.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := os.WriteFile(cfg.StatsFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}

	return nil
}

func (r *StatsRecorder) sampleUsage() {
	if r.proc == nil {
		return
	}

	if mem, err := r.proc.MemoryInfo(); err == nil && mem != nil {
		r.stats.RSSBytes = mem.RSS
	}

	if cpu, err := r.proc.Percent(0); err == nil {
		r.stats.CPUPercent = cpu
	}
}
