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

package models

import "time"

// DaemonStats aggregates the daemon's lifetime health counters. All counters
// are monotonically non-decreasing; only the timestamps and usage gauges move
// both ways. The struct is mutated exclusively by the poll loop and rewritten
// wholesale to the stats file after every cycle.
type DaemonStats struct {
	RunID           string     `json:"run_id"`
	Version         string     `json:"version"`
	StartTime       *time.Time `json:"start_time"`
	LastPoll        *time.Time `json:"last_poll"`
	TotalPolls      uint64     `json:"total_polls"`
	SuccessfulPolls uint64     `json:"successful_polls"`
	FailedPolls     uint64     `json:"failed_polls"`
	NodesProcessed  uint64     `json:"nodes_processed"`
	NodesSuccessful uint64     `json:"nodes_successful"`
	PushSuccessful  uint64     `json:"push_successful"`
	PushFailed      uint64     `json:"push_failed"`
	RSSBytes        uint64     `json:"rss_bytes,omitempty"`
	CPUPercent      float64    `json:"cpu_percent,omitempty"`
}

// CycleResult summarizes one completed poll cycle for stats accounting.
type CycleResult struct {
	NodesProcessed  int
	NodesSuccessful int
	FileOK          bool
	PushAttempted   bool
	PushOK          bool
}
