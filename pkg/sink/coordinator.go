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

package sink

import (
	"context"
	"sync"

	"github.com/carverauto/meshmetricsd/pkg/exporter"
	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

// Delivery is the outcome of fanning one snapshot out to both sinks.
type Delivery struct {
	FileOK        bool
	PushAttempted bool
	PushOK        bool
	Error         string
}

// Coordinator fans a cycle's snapshot out to the file and push sinks,
// tolerating either being disabled and never letting one sink's failure
// abort the other's attempt. Reload swaps the sinks wholesale; an in-flight
// delivery finishes against the sinks it started with.
type Coordinator struct {
	mu     sync.RWMutex
	file   *FileWriter
	push   *PushClient
	stats  *models.DaemonStats
	logger logger.Logger
}

// NewCoordinator creates a delivery coordinator. stats receives the push
// counter updates; it is mutated only from the poll goroutine.
func NewCoordinator(file *FileWriter, push *PushClient, stats *models.DaemonStats, log logger.Logger) *Coordinator {
	return &Coordinator{
		file:   file,
		push:   push,
		stats:  stats,
		logger: log,
	}
}

// Reload atomically replaces both sinks from a new configuration. It takes
// effect on the next delivery.
func (c *Coordinator) Reload(output OutputConfig, push PushConfig) {
	file := NewFileWriter(output, c.logger)
	client := NewPushClient(push, c.logger)

	c.mu.Lock()
	c.file = file
	c.push = client
	c.mu.Unlock()

	c.logger.Info().
		Str("directory", output.Directory).
		Bool("push_enabled", client.Enabled()).
		Msg("Delivery sinks reloaded")
}

// Deliver publishes the snapshot to both sinks and accounts the outcome.
// Push counters move exactly once per delivery: one of push_successful or
// push_failed, and only when a push endpoint is configured.
func (c *Coordinator) Deliver(ctx context.Context, snapshot exporter.Snapshot) Delivery {
	c.mu.RLock()
	file := c.file
	push := c.push
	c.mu.RUnlock()

	result := Delivery{FileOK: true, PushOK: true}

	if err := file.Publish(snapshot); err != nil {
		c.logger.Error().Err(err).Msg("Failed to publish metrics files")

		result.FileOK = false
		result.Error = err.Error()
	}

	if push.Enabled() {
		result.PushAttempted = true

		if err := push.Push(ctx, snapshot.Render()); err != nil {
			c.logger.Error().Err(err).Msg("Failed to push metrics to gateway")

			result.PushOK = false

			if result.Error == "" {
				result.Error = err.Error()
			} else {
				result.Error += "; " + err.Error()
			}

			c.stats.PushFailed++
		} else {
			c.stats.PushSuccessful++
		}
	}

	return result
}
