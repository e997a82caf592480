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

package exporter

import "strings"

// Label is one key/value pair on a metric line. Order matters, so labels are
// a slice rather than a map.
type Label struct {
	Key   string
	Value string
}

// MetricLine is one fully rendered, sink-agnostic exposition record. It is
// immutable once built and is the unit of transport between the renderer and
// the sinks.
type MetricLine struct {
	Name   string
	Labels []Label
	Value  string
}

// Label returns the value of the named label and whether it is present.
func (m *MetricLine) Label(key string) (string, bool) {
	for _, l := range m.Labels {
		if l.Key == key {
			return l.Value, true
		}
	}

	return "", false
}

// String renders the line in exposition format: name{k1="v1",k2="v2"} value.
func (m *MetricLine) String() string {
	var sb strings.Builder

	sb.WriteString(m.Name)
	sb.WriteByte('{')

	for i, l := range m.Labels {
		if i > 0 {
			sb.WriteByte(',')
		}

		sb.WriteString(l.Key)
		sb.WriteString(`="`)
		sb.WriteString(l.Value)
		sb.WriteByte('"')
	}

	sb.WriteString("} ")
	sb.WriteString(m.Value)

	return sb.String()
}

// Snapshot is the complete rendered output of one poll cycle across all
// devices. A new snapshot fully supersedes the previous one per sink.
type Snapshot []MetricLine

// Empty reports whether the snapshot rendered no lines.
func (s Snapshot) Empty() bool {
	return len(s) == 0
}

// Render produces the newline-terminated exposition payload for the whole
// snapshot.
func (s Snapshot) Render() []byte {
	var sb strings.Builder

	for i := range s {
		sb.WriteString(s[i].String())
		sb.WriteByte('\n')
	}

	return []byte(sb.String())
}

// ByNode groups the snapshot's lines by their node label, preserving line
// order within each node and first-seen node order. Lines without a node
// label are dropped, matching per-node file publication semantics.
func (s Snapshot) ByNode() ([]string, map[string]Snapshot) {
	order := make([]string, 0)
	groups := make(map[string]Snapshot)

	for i := range s {
		node, ok := s[i].Label("node")
		if !ok {
			continue
		}

		if _, seen := groups[node]; !seen {
			order = append(order, node)
		}

		groups[node] = append(groups[node], s[i])
	}

	return order, groups
}
