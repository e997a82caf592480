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

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRoster(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollect_MissingRoster(t *testing.T) {
	cmd := newCommand()

	err := cmd.Run(context.Background(), []string{"meshmetrics",
		"--devices", filepath.Join(t.TempDir(), "absent.csv")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "device roster")
}

func TestCollect_VerboseMissingRoster(t *testing.T) {
	// The verbose logger has no file output, so its closer is nil; the
	// failure path must still return an error, not crash on cleanup.
	cmd := newCommand()

	err := cmd.Run(context.Background(), []string{"meshmetrics",
		"--verbose",
		"--devices", filepath.Join(t.TempDir(), "absent.csv")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "device roster")
}

func TestCollect_InvalidMode(t *testing.T) {
	roster := filepath.Join(t.TempDir(), "devices.csv")
	writeRoster(t, roster, "!a1b2c3d4,Base\n")

	cmd := newCommand()

	err := cmd.Run(context.Background(), []string{"meshmetrics",
		"--devices", roster,
		"--mode", "carrier-pigeon"})

	assert.Error(t, err)
}
