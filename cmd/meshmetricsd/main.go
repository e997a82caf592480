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
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/carverauto/meshmetricsd/pkg/lifecycle"
	"github.com/carverauto/meshmetricsd/pkg/roster"
	"github.com/carverauto/meshmetricsd/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/meshmetricsd/meshmetricsd.json", "Path to config file")
	foreground := flag.Bool("foreground", false, "Run in the foreground (do not daemonize)")
	pidFile := flag.String("pid-file", "", "Path to pid file")
	logFile := flag.String("log-file", "", "Append logs to this file instead of stdio")
	runUser := flag.String("user", "", "Drop privileges to this user (requires root)")
	runGroup := flag.String("group", "", "Drop privileges to this group (requires root)")
	testConfig := flag.Bool("test-config", false, "Validate the configuration and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("meshmetricsd", version.GetFullVersion())
		return nil
	}

	ctx := context.Background()

	if *testConfig {
		cfg, err := lifecycle.LoadConfig(ctx, *configPath)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		devices, err := roster.Load(&cfg.Devices)
		if err != nil {
			return fmt.Errorf("device roster invalid: %w", err)
		}

		fmt.Fprintf(os.Stdout, "configuration OK: %s (%d devices)\n", *configPath, len(devices))

		return nil
	}

	return lifecycle.Run(ctx, lifecycle.Options{
		ConfigPath: *configPath,
		Foreground: *foreground,
		PIDFile:    *pidFile,
		LogFile:    *logFile,
		User:       *runUser,
		Group:      *runGroup,
	})
}
