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

// Package models defines the shared data types for meshmetricsd.
package models

// Device is one roster entry. Only NodeID is mandatory; everything else is
// optional operator metadata carried through to the rendered metrics.
// Devices are immutable once loaded.
type Device struct {
	NodeID      string `json:"node_id"`
	ContactName string `json:"contact_name,omitempty"`
	Location    string `json:"location,omitempty"`
	Latitude    string `json:"latitude,omitempty"`
	Longitude   string `json:"longitude,omitempty"`
}

// Reading is one device's telemetry for one poll cycle: metric key to value.
// Values are numbers or strings as delivered by the radio; an absent key means
// the metric is omitted this cycle, never zero-filled. Key order is preserved
// by the separate Keys slice since rendering order must be stable.
type Reading struct {
	Keys   []string
	Values map[string]interface{}
}

// NewReading returns an empty reading ready to be appended to.
func NewReading() *Reading {
	return &Reading{Values: make(map[string]interface{})}
}

// Set records a value under key, tracking first-insertion order.
func (r *Reading) Set(key string, value interface{}) {
	if _, ok := r.Values[key]; !ok {
		r.Keys = append(r.Keys, key)
	}

	r.Values[key] = value
}

// Empty reports whether the reading carries no values. A fetch failure is
// represented as an empty reading, never as an error.
func (r *Reading) Empty() bool {
	return r == nil || len(r.Values) == 0
}
