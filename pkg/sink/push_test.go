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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

func TestPushClient_Disabled(t *testing.T) {
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls++
	}))
	defer srv.Close()

	p := NewPushClient(PushConfig{}, logger.NewTestLogger())
	assert.False(t, p.Enabled())
	require.NoError(t, p.Push(context.Background(), []byte("x 1\n")))
	assert.Zero(t, calls)
}

func TestPushClient_Push(t *testing.T) {
	var (
		gotPath        string
		gotContentType string
		gotBody        []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushClient(PushConfig{
		URL:      srv.URL + "/",
		JobName:  "mesh telemetry",
		Instance: "site/1",
	}, logger.NewTestLogger())

	payload := []byte("meshtastic_up{node=\"!a1b2c3d4\",version=\"dev\"} 1\n")
	require.NoError(t, p.Push(context.Background(), payload))

	assert.Equal(t, "/metrics/job/mesh%20telemetry/instance/site%2F1", gotPath)
	assert.Equal(t, "text/plain; version=0.0.4; charset=utf-8", gotContentType)
	assert.Equal(t, payload, gotBody)
}

func TestPushClient_DefaultJobName(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
	}))
	defer srv.Close()

	p := NewPushClient(PushConfig{URL: srv.URL}, logger.NewTestLogger())
	require.NoError(t, p.Push(context.Background(), []byte("x 1\n")))
	assert.Equal(t, "/metrics/job/meshtastic_repeater_telemetry", gotPath)
}

func TestPushClient_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewPushClient(PushConfig{URL: srv.URL}, logger.NewTestLogger())
	require.Error(t, p.Push(context.Background(), []byte("x 1\n")))
}

func TestPushClient_Timeout(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewPushClient(PushConfig{
		URL:     srv.URL,
		Timeout: models.Duration(50 * time.Millisecond),
	}, logger.NewTestLogger())

	start := time.Now()
	err := p.Push(context.Background(), []byte("x 1\n"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
