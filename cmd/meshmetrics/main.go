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

// meshmetrics is the one-shot companion to meshmetricsd: a single poll of the
// device roster, rendered to stdout or a file. Useful for cron jobs and for
// checking a roster before deploying the daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/carverauto/meshmetricsd/pkg/exporter"
	"github.com/carverauto/meshmetricsd/pkg/logger"
	"github.com/carverauto/meshmetricsd/pkg/mesh"
	"github.com/carverauto/meshmetricsd/pkg/roster"
	"github.com/carverauto/meshmetricsd/pkg/version"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "meshmetrics",
		Usage:   "Collect Meshtastic node telemetry once and print Prometheus metrics",
		Version: version.GetFullVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "devices",
				Aliases:  []string{"d"},
				Usage:    "Device roster CSV file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "encrypted",
				Usage: "Roster file is OpenSSL-encrypted",
			},
			&cli.StringFlag{
				Name:  "password-file",
				Usage: "File holding the roster decryption password",
			},
			&cli.StringFlag{
				Name:    "address",
				Aliases: []string{"a"},
				Usage:   "Meshtastic node address (host[:port] or serial device)",
				Value:   "/dev/ttyUSB0",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Connection mode: tcp or serial",
				Value: mesh.ModeSerial,
			},
			&cli.DurationFlag{
				Name:  "dwell",
				Usage: "Per-node response wait and inter-node pause",
				Value: 10 * time.Second,
			},
			&cli.StringFlag{
				Name:  "node-format",
				Usage: "Node label format: default or clean",
				Value: exporter.NodeIDFormatDefault,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file (default: stdout)",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log collection progress to stderr",
			},
		},
		Action: collect,
	}
}

func collect(ctx context.Context, cmd *cli.Command) error {
	log := logger.NewTestLogger()

	if cmd.Bool("verbose") {
		verbose, closer, err := logger.NewComponent("meshmetrics", &logger.Config{
			Level:  "debug",
			Output: "stderr",
		})
		if err != nil {
			return err
		}

		// The closer is nil unless the logger opened a file.
		if closer != nil {
			defer func() { _ = closer.Close() }()
		}

		log = verbose
	}

	devices, err := roster.Load(&roster.Config{
		File:         cmd.String("devices"),
		Encrypted:    cmd.Bool("encrypted"),
		PasswordFile: cmd.String("password-file"),
	})
	if err != nil {
		return fmt.Errorf("failed to load device roster: %w", err)
	}

	source, err := mesh.NewSource(&mesh.Config{
		Mode:    cmd.String("mode"),
		Address: cmd.String("address"),
	}, log)
	if err != nil {
		return err
	}

	if err := source.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to meshtastic node: %w", err)
	}

	defer func() { _ = source.Close() }()

	formatter := exporter.NewFormatter(cmd.String("node-format"), version.GetVersion())
	dwell := cmd.Duration("dwell")

	var snapshot exporter.Snapshot

	for i := range devices {
		device := &devices[i]

		reading := source.Fetch(ctx, device.NodeID, dwell)
		if reading.Empty() {
			log.Warn().Str("node", device.NodeID).Msg("No telemetry data from node")
		}

		snapshot = append(snapshot, formatter.Render(device, reading)...)

		if i < len(devices)-1 && dwell > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(dwell):
			}
		}
	}

	output := cmd.String("output")
	if output == "" {
		_, err = os.Stdout.Write(snapshot.Render())
		return err
	}

	if err := os.WriteFile(output, snapshot.Render(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	return nil
}
