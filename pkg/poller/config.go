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

package poller

import (
	"time"

	"github.com/carverauto/meshmetricsd/pkg/models"
)

const (
	defaultPollInterval = 5 * time.Minute
	defaultDwellTime    = 10 * time.Second
	defaultCooldown     = time.Minute

	// Suspension points check the stop flag at this granularity, bounding
	// shutdown latency.
	stopCheckTick = time.Second
)

// Config is the daemon section of the configuration: the poll cadence and
// the cooldown applied after an unexpected cycle failure.
type Config struct {
	PollInterval models.Duration `json:"poll_interval,omitempty"`
	Cooldown     models.Duration `json:"cooldown,omitempty"`
}

// Validate implements config.Validator, applying defaults.
func (c *Config) Validate() error {
	if time.Duration(c.PollInterval) <= 0 {
		c.PollInterval = models.Duration(defaultPollInterval)
	}

	if time.Duration(c.Cooldown) <= 0 {
		c.Cooldown = models.Duration(defaultCooldown)
	}

	return nil
}
