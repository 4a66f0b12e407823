package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/prescient/internal/config"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prescient-server",
		Short: "Prescient - predictive lead scoring API",
		Long: `Prescient serves the lead scoring API with account registration,
bearer token authentication and email password reset.

Configuration is read from --config, environment variables with the
PRESCIENT_ prefix (PRESCIENT_TOKEN_SECRET, PRESCIENT_STORAGE_DSN, ...)
and command line flags, in increasing order of precedence.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (yaml, json or toml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAccountCmd())
	cmd.AddCommand(NewSecretCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHealthcheckCmd())

	return cmd
}

// loadConfig собирает конфигурацию из файла, окружения и флагов команды
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}

	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, err
	}

	logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, logger, nil
}
