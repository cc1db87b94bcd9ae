// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package main

import (
	"fmt"

	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stockclerk/stockclerk/internal/logging"
)

// cliConfig holds the command-line settings.
type cliConfig struct {
	Config      string   `koanf:"config"`
	LogFormat   string   `koanf:"log-format"`
	LogLevel    string   `koanf:"log-level"`
	MetricsAddr string   `koanf:"metrics-addr"`
	PluginPath  []string `koanf:"plugin-path"`
}

// Validate checks that the configuration is valid.
func (cfg *cliConfig) Validate() error {
	if cfg.LogFormat != logging.FormatJSON && cfg.LogFormat != logging.FormatText {
		return fmt.Errorf("log-format must be 'json' or 'text', got %q", cfg.LogFormat)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// Default values for flags.
const (
	defaultLogFormat = logging.FormatText
	defaultLogLevel  = "info"
)

// NewRootCmd creates the stockclerk command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockclerk",
		Short: "Run a product-status plugin pipeline",
		Long: `stockclerk loads the plugins named in a configuration file and runs
product-status messages and errors through them in order until it is
interrupted.

Without --config the first of .stockclerkrc, .stockclerkrc.lua,
.stockclerkrc.json, .stockclerkrc.yaml or .stockclerkrc.yml found in the
current directory is used. With none of them the pipeline is empty.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	cmd.Flags().StringP("config", "c", "", "pipeline config file (default: discovered in the current directory)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaultLogLevel, "log level (debug, info, warn or error)")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().StringSlice("plugin-path", nil, "extra directories searched for plugin modules")

	return cmd
}

// loadCLIConfig reads the parsed flags, defaults included, into a cliConfig.
func loadCLIConfig(flags *pflag.FlagSet) (*cliConfig, error) {
	k := koanf.New(".")
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}
	var cfg cliConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode flags: %w", err)
	}
	return &cfg, nil
}
