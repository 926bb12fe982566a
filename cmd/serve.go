// Copyright (C) 2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/webfrontend/config"
	"github.com/cardinalhq/webfrontend/internal/debugging"
	"github.com/cardinalhq/webfrontend/internal/logging"
	"github.com/cardinalhq/webfrontend/internal/telemetry"
	"github.com/cardinalhq/webfrontend/internal/weather"
	"github.com/cardinalhq/webfrontend/internal/web"
)

func init() {
	var configFile string

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Start the web frontend",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, _ []string) error {
			doneCtx, cancel := handleSignals(c.Context())
			defer cancel()
			return runServe(doneCtx, os.Stdout, configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a configuration file (default ./webfrontend.yaml)")

	rootCmd.AddCommand(cmd)
}

// runServe builds the bootstrap logger first so that configuration and
// startup failures are still reported, then swaps in the configured logger
// before anything else starts.
func runServe(ctx context.Context, console io.Writer, configFile string, opts ...logging.Option) error {
	active := logging.NewActive(logging.Bootstrap(console))

	return logging.Guard(ctx, active, "Web frontend terminated unexpectedly", func(ctx context.Context) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		opts = append([]logging.Option{logging.WithConsole(console)}, opts...)
		if _, err := logging.Configure(ctx, active, cfg.Logging, cfg.OTel, opts...); err != nil {
			return err
		}
		logger := active.Logger()

		providers, err := telemetry.Setup(ctx, active, cfg.OTel)
		if err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		defer func() {
			if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Error shutting down telemetry", slog.Any("error", err))
			}
		}()

		debugging.RunPprof(ctx, logging.Category(logger, "debugging"), cfg.HTTP.PprofPort)

		forecasts, err := weather.NewClient(cfg.APIService.URL,
			weather.WithTimeout(cfg.APIService.Timeout),
			weather.WithCacheTTL(cfg.APIService.CacheTTL),
			weather.WithLogger(logging.Category(logger, "weather.client")),
		)
		if err != nil {
			return err
		}

		host, err := web.NewHost(cfg.HTTP, logging.Category(logger, "web.host"), cfg.IsDevelopment(), forecasts)
		if err != nil {
			return err
		}

		logger.Info("Starting the web frontend",
			slog.String("environment", cfg.Environment),
			slog.String("apiservice", cfg.APIService.URL))
		return host.Run(ctx)
	})
}
