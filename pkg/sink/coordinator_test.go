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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

func newTestCoordinator(output OutputConfig, push PushConfig) (*Coordinator, *models.DaemonStats) {
	stats := &models.DaemonStats{}
	log := logger.NewTestLogger()

	return NewCoordinator(NewFileWriter(output, log), NewPushClient(push, log), stats, log), stats
}

func TestCoordinator_BothDisabled(t *testing.T) {
	c, stats := newTestCoordinator(OutputConfig{}, PushConfig{})

	result := c.Deliver(context.Background(), snapshotFor("!a1b2c3d4"))
	assert.True(t, result.FileOK)
	assert.True(t, result.PushOK)
	assert.False(t, result.PushAttempted)
	assert.Zero(t, stats.PushSuccessful)
	assert.Zero(t, stats.PushFailed)
}

func TestCoordinator_PushAccountedOncePerCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, stats := newTestCoordinator(OutputConfig{Directory: t.TempDir()}, PushConfig{URL: srv.URL})

	result := c.Deliver(context.Background(), snapshotFor("!a1b2c3d4"))
	assert.True(t, result.FileOK)
	assert.True(t, result.PushOK)
	assert.EqualValues(t, 1, stats.PushSuccessful)
	assert.Zero(t, stats.PushFailed)

	c.Deliver(context.Background(), snapshotFor("!a1b2c3d4"))
	assert.EqualValues(t, 2, stats.PushSuccessful)
}

func TestCoordinator_FileFailureDoesNotBlockPush(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	c, stats := newTestCoordinator(OutputConfig{Directory: blocker}, PushConfig{URL: srv.URL})

	result := c.Deliver(context.Background(), snapshotFor("!a1b2c3d4"))
	assert.False(t, result.FileOK)
	assert.True(t, result.PushAttempted)
	assert.True(t, result.PushOK)
	assert.NotEmpty(t, result.Error)
	assert.EqualValues(t, 1, stats.PushSuccessful)
}

func TestCoordinator_PushFailureDoesNotAffectFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	c, stats := newTestCoordinator(OutputConfig{Directory: dir}, PushConfig{URL: srv.URL})

	result := c.Deliver(context.Background(), snapshotFor("!a1b2c3d4"))
	assert.True(t, result.FileOK)
	assert.False(t, result.PushOK)
	assert.EqualValues(t, 1, stats.PushFailed)
	assert.Zero(t, stats.PushSuccessful)

	_, err := os.Stat(filepath.Join(dir, "meshtastic.prom"))
	require.NoError(t, err)
}

func TestCoordinator_BothFailuresJoinedInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	c, stats := newTestCoordinator(OutputConfig{Directory: blocker}, PushConfig{URL: srv.URL})

	result := c.Deliver(context.Background(), snapshotFor("!a1b2c3d4"))
	assert.False(t, result.FileOK)
	assert.False(t, result.PushOK)
	assert.EqualValues(t, 1, stats.PushFailed)

	// Both sink failures survive in the delivery error.
	assert.Contains(t, result.Error, "output directory")
	assert.Contains(t, result.Error, "; ")
	assert.Contains(t, result.Error, "502")
}

func TestCoordinator_Reload(t *testing.T) {
	oldDir := t.TempDir()
	newDir := t.TempDir()

	c, _ := newTestCoordinator(OutputConfig{Directory: oldDir}, PushConfig{})

	c.Reload(OutputConfig{Directory: newDir}, PushConfig{})

	result := c.Deliver(context.Background(), snapshotFor("!a1b2c3d4"))
	assert.True(t, result.FileOK)

	_, err := os.Stat(filepath.Join(newDir, "meshtastic.prom"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(oldDir, "meshtastic.prom"))
	assert.True(t, os.IsNotExist(err))
}
