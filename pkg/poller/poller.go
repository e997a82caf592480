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

// Package poller drives the daemon's poll cadence: one sequential walk of
// the device roster per cycle, then delivery of the rendered snapshot.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/meshmetricsd/pkg/exporter"
	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/mesh"
	"github.com/carverauto/meshmetricsd/pkg/models"
	"github.com/carverauto/meshmetricsd/pkg/sink"
)

// Deliverer fans a snapshot out to the sinks. Implemented by
// sink.Coordinator.
type Deliverer interface {
	Deliver(ctx context.Context, snapshot exporter.Snapshot) sink.Delivery
}

// CycleRecorder receives the outcome of every completed cycle for stats
// bookkeeping and persistence.
type CycleRecorder interface {
	RecordCycle(result models.CycleResult)
}

// intervals groups the hot-reloadable timing knobs. Swapped wholesale under
// reload; a running cycle finishes with the values it started with.
type intervals struct {
	poll      time.Duration
	dwell     time.Duration
	cooldown  time.Duration
	formatter *exporter.Formatter
}

// Poller owns the roster and the current cycle's snapshot build-up. It runs
// as a single goroutine; Stop is the only cross-goroutine signal.
type Poller struct {
	devices     []models.Device
	source      mesh.Source
	coordinator Deliverer
	recorder    CycleRecorder
	logger      logger.Logger

	mu      sync.RWMutex
	current intervals

	done      chan struct{}
	closeOnce sync.Once

	// tick overrides the stop-check granularity in tests.
	tick time.Duration
}

// New creates a poller over an already-connected source.
func New(devices []models.Device, source mesh.Source, coordinator Deliverer,
	recorder CycleRecorder, cfg *Config, formatter *exporter.Formatter, log logger.Logger) *Poller {
	dwell := defaultDwellTime

	return &Poller{
		devices:     devices,
		source:      source,
		coordinator: coordinator,
		recorder:    recorder,
		logger:      log,
		current: intervals{
			poll:      time.Duration(cfg.PollInterval),
			dwell:     dwell,
			cooldown:  time.Duration(cfg.Cooldown),
			formatter: formatter,
		},
		done: make(chan struct{}),
		tick: stopCheckTick,
	}
}

// SetDwell overrides the inter-device dwell time.
func (p *Poller) SetDwell(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d >= 0 {
		p.current.dwell = d
	}
}

// Reload swaps the timing knobs and formatter. Takes effect at the next
// cycle boundary, never mid-cycle.
func (p *Poller) Reload(cfg *Config, dwell time.Duration, formatter *exporter.Formatter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current.poll = time.Duration(cfg.PollInterval)
	p.current.cooldown = time.Duration(cfg.Cooldown)
	p.current.formatter = formatter

	if dwell >= 0 {
		p.current.dwell = dwell
	}

	p.logger.Info().
		Dur("poll_interval", p.current.poll).
		Dur("dwell_time", p.current.dwell).
		Msg("Poller configuration reloaded")
}

// Run executes poll cycles until Stop is called or ctx is canceled. An
// unexpected cycle failure logs, cools down and retries; it never exits the
// loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().
		Int("devices", len(p.devices)).
		Dur("poll_interval", p.snapshotIntervals().poll).
		Msg("Starting polling loop")

	for p.running(ctx) {
		iv := p.snapshotIntervals()

		if err := p.runCycle(ctx, iv); err != nil {
			p.logger.Error().Err(err).Dur("cooldown", iv.cooldown).Msg("Poll cycle failed")

			if !p.sleep(ctx, iv.cooldown) {
				break
			}

			continue
		}

		if !p.sleep(ctx, iv.poll) {
			break
		}
	}

	p.logger.Info().Msg("Polling loop stopped")

	return nil
}

// Stop requests a graceful stop. The loop exits after the in-flight device
// fetch or sleep tick completes. Safe to call more than once.
func (p *Poller) Stop() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

func (p *Poller) running(ctx context.Context) bool {
	select {
	case <-p.done:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

func (p *Poller) snapshotIntervals() intervals {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.current
}

// runCycle walks the roster once and delivers the combined snapshot. A panic
// in the cycle body is converted to an error so the loop's cooldown policy
// applies.
func (p *Poller) runCycle(ctx context.Context, iv intervals) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panicked: %v", r)
		}
	}()

	p.logger.Info().Int("devices", len(p.devices)).Msg("Starting poll")

	var (
		snapshot   exporter.Snapshot
		processed  int
		successful int
	)

	for i := range p.devices {
		if !p.running(ctx) {
			break
		}

		device := &p.devices[i]
		processed++

		reading := p.source.Fetch(ctx, device.NodeID, iv.dwell)
		if reading.Empty() {
			p.logger.Warn().Str("node", device.NodeID).Msg("No telemetry data from node")
		} else {
			successful++
			p.logger.Debug().Str("node", device.NodeID).Int("metrics", len(reading.Keys)).Msg("Collected telemetry")
		}

		snapshot = append(snapshot, iv.formatter.Render(device, reading)...)

		// Dwell before the next device, not after the last one.
		if i < len(p.devices)-1 && iv.dwell > 0 {
			if !p.sleep(ctx, iv.dwell) {
				break
			}
		}
	}

	result := models.CycleResult{
		NodesProcessed:  processed,
		NodesSuccessful: successful,
		FileOK:          true,
		PushOK:          true,
	}

	// An empty snapshot publishes nothing so the previous good snapshot
	// survives a fully failed cycle.
	if !snapshot.Empty() {
		delivery := p.coordinator.Deliver(ctx, snapshot)
		result.FileOK = delivery.FileOK
		result.PushAttempted = delivery.PushAttempted
		result.PushOK = delivery.PushOK
	}

	p.recorder.RecordCycle(result)

	p.logger.Info().
		Int("successful", successful).
		Int("processed", processed).
		Msg("Poll completed")

	return nil
}

// sleep waits for d, checking the stop flag at the configured tick. Returns
// false if the poller should stop.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	remaining := d

	for remaining > 0 {
		step := p.tick
		if remaining < step {
			step = remaining
		}

		select {
		case <-p.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(step):
			remaining -= step
		}
	}

	return p.running(ctx)
}
