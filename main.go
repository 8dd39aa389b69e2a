package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codemate-server/config"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

var errConfig = errors.New("configuration")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errConfig) {
			os.Exit(exitConfig)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

func newRootCmd() *cobra.Command {
	var (
		port     int
		logLevel string
		envFile  string
	)

	cmd := &cobra.Command{
		Use:          "codemate-server",
		Short:        "Real-time relay for collaborative code editing rooms",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return fmt.Errorf("%w: %w", errConfig, err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%w: %w", errConfig, err)
			}

			setupLogger(cfg)
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP listen port (overrides PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error (overrides LOG_LEVEL)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	return cmd
}
