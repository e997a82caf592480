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

// Package exporter renders device telemetry into metric exposition lines.
// Rendering is deterministic and side-effect free.
package exporter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/carverauto/meshmetricsd/pkg/models"
)

const metricPrefix = "meshtastic_"

// Node id label formats.
const (
	NodeIDFormatDefault = "default" // keep the leading '!'
	NodeIDFormatClean   = "clean"   // strip the leading '!'
)

// Formatter renders a device's telemetry reading into metric lines.
type Formatter struct {
	nodeIDFormat string
	version      string
}

// NewFormatter creates a formatter. nodeIDFormat selects the node label form
// (NodeIDFormatDefault or NodeIDFormatClean); version is stamped onto the up
// metric.
func NewFormatter(nodeIDFormat, version string) *Formatter {
	if nodeIDFormat == "" {
		nodeIDFormat = NodeIDFormatDefault
	}

	return &Formatter{
		nodeIDFormat: nodeIDFormat,
		version:      version,
	}
}

// Render produces the metric lines for one device: readings in insertion
// order, then the metadata metrics, then the up metric last.
func (f *Formatter) Render(device *models.Device, reading *models.Reading) Snapshot {
	node := f.FormatNodeID(device.NodeID)
	lines := make(Snapshot, 0, len(reading.Keys)+5)

	for _, key := range reading.Keys {
		name := metricPrefix + strings.ReplaceAll(strings.ToLower(key), " ", "_")
		text := valueText(reading.Values[key])

		if isNumeric(text) {
			lines = append(lines, MetricLine{
				Name:   name,
				Labels: []Label{{Key: "node", Value: node}},
				Value:  text,
			})
		} else {
			lines = append(lines, MetricLine{
				Name:   name,
				Labels: []Label{{Key: "node", Value: node}, {Key: "str", Value: text}},
				Value:  "1",
			})
		}
	}

	if device.ContactName != "" {
		lines = append(lines, MetricLine{
			Name:   metricPrefix + "contact",
			Labels: []Label{{Key: "node", Value: node}, {Key: "contact", Value: device.ContactName}},
			Value:  "1",
		})
	}

	if device.Location != "" {
		lines = append(lines, MetricLine{
			Name:   metricPrefix + "location",
			Labels: []Label{{Key: "node", Value: node}, {Key: "location", Value: device.Location}},
			Value:  "1",
		})
	}

	if device.Latitude != "" {
		lines = append(lines, MetricLine{
			Name:   metricPrefix + "latitude",
			Labels: []Label{{Key: "node", Value: node}},
			Value:  device.Latitude,
		})
	}

	if device.Longitude != "" {
		lines = append(lines, MetricLine{
			Name:   metricPrefix + "longitude",
			Labels: []Label{{Key: "node", Value: node}},
			Value:  device.Longitude,
		})
	}

	up := "0"
	if !reading.Empty() {
		up = "1"
	}

	lines = append(lines, MetricLine{
		Name:   metricPrefix + "up",
		Labels: []Label{{Key: "node", Value: node}, {Key: "version", Value: f.version}},
		Value:  up,
	})

	return lines
}

// FormatNodeID applies the configured node id label format.
func (f *Formatter) FormatNodeID(nodeID string) string {
	if f.nodeIDFormat == NodeIDFormatClean {
		return strings.ReplaceAll(nodeID, "!", "")
	}

	return nodeID
}

// SanitizeFilename maps a node id to a filename-safe form: the sigil is
// dropped and path separators are replaced so a hostile roster entry cannot
// traverse out of the output directory.
func SanitizeFilename(nodeID string) string {
	r := strings.NewReplacer("!", "", "/", "_", "\\", "_")
	return r.Replace(nodeID)
}

// valueText normalizes a reading value to its text form. Floats keep their
// shortest representation so rendered values match what the radio reported.
func valueText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isNumeric reports whether s parses as a signed decimal: optional sign, one
// or more digits, optional fractional part.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
	}

	digits := 0

	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		digits++
	}

	if digits == 0 {
		return false
	}

	if i == len(s) {
		return true
	}

	if s[i] != '.' {
		return false
	}

	for i++; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
