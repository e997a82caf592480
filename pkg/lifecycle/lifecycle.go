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

// Package lifecycle assembles and runs the daemon: configuration, logging,
// daemonization, signals, privilege management and the poll loop.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/meshmetricsd/pkg/config"
	"github.com/carverauto/meshmetricsd/pkg/exporter"
	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/mesh"
	"github.com/carverauto/meshmetricsd/pkg/models"
	"github.com/carverauto/meshmetricsd/pkg/poller"
	"github.com/carverauto/meshmetricsd/pkg/roster"
	"github.com/carverauto/meshmetricsd/pkg/sink"
	"github.com/carverauto/meshmetricsd/pkg/version"
)

// Options carries the command-line knobs into the controller. Everything else
// comes from the configuration file.
type Options struct {
	ConfigPath string
	Foreground bool
	PIDFile    string
	LogFile    string
	User       string
	Group      string
}

// Controller wires the daemon together and owns its shutdown order.
type Controller struct {
	opts   Options
	logger logger.Logger

	// mu guards the fields the signal goroutine touches on reload; the
	// pipeline fields are nil until assemble runs.
	mu          sync.Mutex
	cfg         *Config
	stats       *models.DaemonStats
	coordinator *sink.Coordinator
	poller      *poller.Poller
	recorder    *StatsRecorder

	closeOnce sync.Once
	source    mesh.Source
}

// LoadConfig reads and validates the daemon configuration without starting
// anything. Used by --test-config and as the first step of Run.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	cfg := &Config{}

	loader := config.NewConfig(nil)
	if err := loader.LoadAndValidate(ctx, path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Run loads configuration, daemonizes unless foreground, and drives the poll
// loop until a stop signal arrives. The parent of a detached child returns
// nil immediately.
func Run(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(ctx, opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	if !opts.Foreground {
		child, err := Detach()
		if err != nil {
			return fmt.Errorf("failed to daemonize: %w", err)
		}

		if !child {
			return nil
		}
	}

	log, closer, err := buildLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	ctl := &Controller{opts: opts, cfg: cfg, logger: log}

	return ctl.run(ctx)
}

func buildLogger(cfg *Config, opts Options) (logger.Logger, io.Closer, error) {
	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	if opts.LogFile != "" {
		logCfg.File = opts.LogFile
	}

	return logger.NewComponent("meshmetricsd", logCfg)
}

func (c *Controller) run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	c.logger.Info().
		Str("version", version.GetFullVersion()).
		Str("config", c.opts.ConfigPath).
		Msg("Starting meshmetricsd")

	// Signals first: a SIGTERM during the privilege drop or the initial
	// connect must stop the daemon gracefully, not take the default
	// disposition.
	stopSignals := c.watchSignals(ctx, stop)
	defer stopSignals()

	if err := DropPrivileges(c.opts.User, c.opts.Group, c.logger); err != nil {
		return err
	}

	if err := WritePIDFile(c.opts.PIDFile); err != nil {
		return err
	}

	defer func() {
		if err := RemovePIDFile(c.opts.PIDFile); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to remove pid file")
		}
	}()

	cfg := c.config()

	devices, err := roster.Load(&cfg.Devices)
	if err != nil {
		return fmt.Errorf("failed to load device roster: %w", err)
	}

	c.logger.Info().Int("devices", len(devices)).Str("file", cfg.Devices.File).Msg("Loaded device roster")

	source, err := mesh.NewSource(&cfg.Meshtastic, c.logger)
	if err != nil {
		return err
	}

	c.source = source

	if err := source.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to meshtastic node: %w", err)
	}

	defer c.closeSource()

	c.assemble(devices, source)

	var monitor *monitorServer

	if cfg.Monitoring.ListenAddr != "" {
		monitor = newMonitorServer(cfg.Monitoring.ListenAddr, c.recorder.metrics, c.logger)
		monitor.Start()

		defer monitor.Stop()
	}

	err = c.poller.Run(ctx)

	if perr := c.recorder.Persist(); perr != nil {
		c.logger.Warn().Err(perr).Msg("Failed to write final stats")
	}

	c.logger.Info().Msg("meshmetricsd stopped")

	return err
}

// config returns the current configuration; reload may swap it at any time.
func (c *Controller) config() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg
}

// assemble builds the poll pipeline from the current configuration.
func (c *Controller) assemble(devices []models.Device, source mesh.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.stats = &models.DaemonStats{
		RunID:     uuid.New().String(),
		Version:   version.GetVersion(),
		StartTime: &now,
	}

	metrics := newSelfMetrics()
	c.recorder = NewStatsRecorder(c.stats, c.cfg.Monitoring, metrics, c.logger)
	c.coordinator = sink.NewCoordinator(
		sink.NewFileWriter(c.cfg.Output, c.logger),
		sink.NewPushClient(c.cfg.Push, c.logger),
		c.stats,
		c.logger,
	)

	formatter := exporter.NewFormatter(c.cfg.Output.NodeIDFormat, version.GetVersion())

	c.poller = poller.New(devices, source, c.coordinator, c.recorder,
		&c.cfg.Daemon, formatter, c.logger)
	c.poller.SetDwell(c.cfg.DwellTime())
}

// watchSignals installs the daemon's signal policy: SIGTERM and SIGINT stop
// the daemon, SIGHUP reloads configuration between cycles. Installed before
// the pipeline exists, so stop cancels the run context rather than touching
// the poller. Returns a cleanup func that releases the handler.
func (c *Controller) watchSignals(ctx context.Context, stop context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigCh:
				c.handleSignal(ctx, sig, stop)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func (c *Controller) handleSignal(ctx context.Context, sig os.Signal, stop context.CancelFunc) {
	switch sig {
	case syscall.SIGHUP:
		c.logger.Info().Msg("Received SIGHUP, reloading configuration")
		c.reload(ctx)
	default:
		c.logger.Info().Str("signal", sig.String()).Msg("Received stop signal")
		stop()
	}
}

// reload re-reads the configuration file and, only when the new configuration
// is valid, swaps the sinks and poll intervals. The device roster and the
// mesh connection are fixed for the life of the process. Any error keeps the
// previous configuration untouched.
func (c *Controller) reload(ctx context.Context) {
	cfg, err := LoadConfig(ctx, c.opts.ConfigPath)
	if err != nil {
		c.logger.Error().Err(err).Msg("Reload rejected, keeping previous configuration")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = cfg

	// A SIGHUP during startup lands before the pipeline exists; assemble
	// picks the new configuration up.
	if c.poller == nil {
		return
	}

	c.coordinator.Reload(cfg.Output, cfg.Push)
	c.recorder.SetConfig(cfg.Monitoring)
	c.poller.Reload(&cfg.Daemon, cfg.DwellTime(),
		exporter.NewFormatter(cfg.Output.NodeIDFormat, version.GetVersion()))

	c.logger.Info().Msg("Configuration reloaded")
}

func (c *Controller) closeSource() {
	c.closeOnce.Do(func() {
		if err := c.source.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close meshtastic source")
		}
	})
}
