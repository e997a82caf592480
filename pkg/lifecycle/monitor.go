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

package lifecycle

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/models"
)

const (
	monitorReadTimeout     = 10 * time.Second
	monitorShutdownTimeout = 5 * time.Second
)

// selfMetrics exposes the daemon's own health on a private registry, separate
// from the collected node telemetry which goes to the file and push sinks.
type selfMetrics struct {
	registry *prometheus.Registry

	totalPolls      prometheus.Gauge
	successfulPolls prometheus.Gauge
	failedPolls     prometheus.Gauge
	nodesProcessed  prometheus.Gauge
	nodesSuccessful prometheus.Gauge
	pushSuccessful  prometheus.Gauge
	pushFailed      prometheus.Gauge
	lastPoll        prometheus.Gauge
	rssBytes        prometheus.Gauge
	cpuPercent      prometheus.Gauge
}

func newSelfMetrics() *selfMetrics {
	m := &selfMetrics{
		registry: prometheus.NewRegistry(),
		totalPolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_total_polls",
			Help: "Total poll cycles completed.",
		}),
		successfulPolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_successful_polls",
			Help: "Poll cycles with at least one responding node.",
		}),
		failedPolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_failed_polls",
			Help: "Poll cycles where no node responded.",
		}),
		nodesProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_nodes_processed",
			Help: "Cumulative node fetch attempts.",
		}),
		nodesSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_nodes_successful",
			Help: "Cumulative node fetches that returned telemetry.",
		}),
		pushSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_push_successful",
			Help: "Successful push-gateway deliveries.",
		}),
		pushFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_push_failed",
			Help: "Failed push-gateway deliveries.",
		}),
		lastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_last_poll_timestamp_seconds",
			Help: "Unix time of the last completed poll cycle.",
		}),
		rssBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_rss_bytes",
			Help: "Resident set size of the daemon process.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshmetricsd_cpu_percent",
			Help: "CPU usage of the daemon process since the previous cycle.",
		}),
	}

	m.registry.MustRegister(
		m.totalPolls, m.successfulPolls, m.failedPolls,
		m.nodesProcessed, m.nodesSuccessful,
		m.pushSuccessful, m.pushFailed,
		m.lastPoll, m.rssBytes, m.cpuPercent,
	)

	return m
}

// observe mirrors the stats counters into the gauges after a cycle.
func (m *selfMetrics) observe(stats *models.DaemonStats, _ models.CycleResult) {
	m.totalPolls.Set(float64(stats.TotalPolls))
	m.successfulPolls.Set(float64(stats.SuccessfulPolls))
	m.failedPolls.Set(float64(stats.FailedPolls))
	m.nodesProcessed.Set(float64(stats.NodesProcessed))
	m.nodesSuccessful.Set(float64(stats.NodesSuccessful))
	m.pushSuccessful.Set(float64(stats.PushSuccessful))
	m.pushFailed.Set(float64(stats.PushFailed))
	m.rssBytes.Set(float64(stats.RSSBytes))
	m.cpuPercent.Set(stats.CPUPercent)

	if stats.LastPoll != nil {
		m.lastPoll.Set(float64(stats.LastPoll.Unix()))
	}
}

// monitorServer serves the self-metrics registry over HTTP when
// monitoring.listen_addr is set.
type monitorServer struct {
	server *http.Server
	logger logger.Logger
}

func newMonitorServer(addr string, metrics *selfMetrics, log logger.Logger) *monitorServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))

	return &monitorServer{
		server: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: monitorReadTimeout,
		},
		logger: log,
	}
}

// Start serves in a goroutine. Listener failures are logged, not fatal; the
// daemon's primary job does not depend on self-metrics.
func (s *monitorServer) Start() {
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("Starting self-metrics listener")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Self-metrics listener failed")
		}
	}()
}

func (s *monitorServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), monitorShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Self-metrics listener shutdown failed")
	}
}
