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

package mesh

import (
	"context"
	"time"

	"github.com/carverauto/meshmetricsd/pkg/models"
)

// StaticSource serves canned readings keyed by node id. Used by tests and
// dry runs; nodes without an entry fetch as empty.
type StaticSource struct {
	Readings map[string]*models.Reading
}

func (*StaticSource) Connect(context.Context) error { return nil }

func (s *StaticSource) Fetch(_ context.Context, nodeID string, _ time.Duration) *models.Reading {
	if r, ok := s.Readings[nodeID]; ok {
		return r
	}

	return models.NewReading()
}

func (*StaticSource) Close() error { return nil }
