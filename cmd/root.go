package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/pkg/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFile string
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "page-narrator",
		Short:         "Turn manga page images into captioned, narrated videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(newServeCommand(&logLevel))
	rootCmd.AddCommand(newNarrateCommand(&logLevel))
	return rootCmd
}

// loadConfig reads the environment, layers saved runtime settings on top and
// initializes the logger.
func loadConfig(logLevel string, withSettings bool) (*config.Config, error) {
	var opts []config.Option
	if withSettings {
		settings, err := config.LoadRuntimeSettingsFile(config.RuntimeSettingsFilePath())
		switch {
		case err == nil:
			opts = append(opts, config.WithRuntimeSettings(settings))
		case !errors.Is(err, fs.ErrNotExist):
			log.Warn("Ignoring runtime settings: %v", err)
		}
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.System.LogLevel = logLevel
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))
	return cfg, nil
}
