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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string `json:"name"`
	Interval string `json:"interval"`

	validateErr error
	validated   bool
}

func (c *testConfig) Validate() error {
	c.validated = true
	return c.validateErr
}

func TestLoadAndValidate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "repeater", "interval": "5m"}`), 0o644))

	cfg := &testConfig{}

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, cfg)
	require.NoError(t, err)
	assert.Equal(t, "repeater", cfg.Name)
	assert.Equal(t, "5m", cfg.Interval)
	assert.True(t, cfg.validated)
}

func TestLoadAndValidate_MissingFile(t *testing.T) {
	cfg := &testConfig{}

	err := NewConfig(nil).LoadAndValidate(context.Background(), "/nonexistent/config.json", cfg)
	assert.Error(t, err)
}

func TestLoadAndValidate_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":`), 0o644))

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &testConfig{})
	assert.Error(t, err)
}

func TestLoadAndValidate_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "repeater"}`), 0o644))

	wantErr := errors.New("bad config")
	cfg := &testConfig{validateErr: wantErr}

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, cfg)
	assert.ErrorIs(t, err, wantErr)
}

func TestLoadAndValidate_EnvSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("MESHMETRICSD_CONFIG_JSON", `{"name": "from-env"}`)

	cfg := &testConfig{}

	err := NewConfig(nil).LoadAndValidate(context.Background(), "ignored.json", cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Name)
}

func TestLoadAndValidate_EnvSourceCustomPrefix(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "MM_")
	t.Setenv("MM_CONFIG_JSON", `{"name": "prefixed"}`)

	cfg := &testConfig{}

	err := NewConfig(nil).LoadAndValidate(context.Background(), "", cfg)
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Name)
}

func TestLoadAndValidate_EnvSourceMissingVar(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("MESHMETRICSD_CONFIG_JSON", "")

	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &testConfig{})
	assert.ErrorIs(t, err, errLoadConfigFailed)
}

func TestLoadAndValidate_InvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &testConfig{})
	assert.ErrorIs(t, err, errInvalidConfigSource)
}

func TestValidateConfig_NonValidator(t *testing.T) {
	assert.NoError(t, ValidateConfig(&struct{ Name string }{}))
}
