package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/prescient/internal/client/api"
)

// NewHealthcheckCmd creates the healthcheck subcommand.
func NewHealthcheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Query GET /health of a running server",
		Long: `Query GET /health of a running server and fail unless it reports ok.
Without --url the server address from the configuration is used,
which makes the command usable as a container health check.`,
		Args: cobra.NoArgs,
		RunE: runHealthcheck,
	}
	cmd.Flags().String("url", "", "base URL of the server (default: derived from server.address)")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")

	return cmd
}

func runHealthcheck(cmd *cobra.Command, _ []string) error {
	baseURL, err := cmd.Flags().GetString("url")
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	if baseURL == "" {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		baseURL, err = localURL(cfg.Server.Address)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	health, err := api.NewClient(baseURL).Health(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "status=%s storage=%s version=%s\n",
		health.Status, health.Storage, health.Version)
	return err
}

// localURL превращает адрес прослушивания в URL для локального запроса
func localURL(address string) (string, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", address, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
