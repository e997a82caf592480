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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

const (
	defaultPushTimeout = 30 * time.Second
	defaultJobName     = "meshtastic_repeater_telemetry"
	pushContentType    = "text/plain; version=0.0.4; charset=utf-8"
)

var errPushStatus = fmt.Errorf("push gateway returned non-200 status")

// PushConfig is the push section of the daemon configuration.
type PushConfig struct {
	URL      string          `json:"url"`
	JobName  string          `json:"job_name,omitempty"`
	Instance string          `json:"instance,omitempty"`
	Timeout  models.Duration `json:"timeout,omitempty"`
}

// PushClient delivers snapshots to a Prometheus push gateway. Delivery is
// best effort: failures come back as error values and never abort the cycle.
type PushClient struct {
	config PushConfig
	client *http.Client
	logger logger.Logger
}

// NewPushClient creates a push sink. An empty URL disables it.
func NewPushClient(config PushConfig, log logger.Logger) *PushClient {
	if config.JobName == "" {
		config.JobName = defaultJobName
	}

	timeout := time.Duration(config.Timeout)
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}

	return &PushClient{
		config: config,
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

// Enabled reports whether a push URL is configured.
func (p *PushClient) Enabled() bool {
	return strings.TrimSpace(p.config.URL) != ""
}

// Push POSTs the exposition payload to the gateway. Disabled clients succeed
// as a no-op without any network call.
func (p *PushClient) Push(ctx context.Context, payload []byte) error {
	if !p.Enabled() {
		return nil
	}

	pushURL := p.buildURL()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}

	req.Header.Set("Content-Type", pushContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push metrics to '%s': %w", p.config.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", errPushStatus, resp.StatusCode)
	}

	p.logger.Debug().Str("url", pushURL).Int("bytes", len(payload)).Msg("Pushed metrics to gateway")

	return nil
}

// buildURL assembles {base}/metrics/job/{job}[/instance/{instance}] with
// percent-encoded path segments.
func (p *PushClient) buildURL() string {
	parts := []string{
		strings.TrimRight(strings.TrimSpace(p.config.URL), "/"),
		"metrics",
		"job",
		url.PathEscape(p.config.JobName),
	}

	if p.config.Instance != "" {
		parts = append(parts, "instance", url.PathEscape(p.config.Instance))
	}

	return strings.Join(parts, "/")
}
