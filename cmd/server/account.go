package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/prescient/internal/iocli"
)

// NewAccountCmd creates the account subcommand tree.
func NewAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Administer user accounts",
	}

	cmd.AddCommand(newSetActiveCmd("activate", "Allow the account to obtain tokens", true))
	cmd.AddCommand(newSetActiveCmd("deactivate", "Deny the account new tokens", false))
	cmd.AddCommand(&cobra.Command{
		Use:   "set-password <username>",
		Short: "Set a new password for the account",
		Args:  cobra.ExactArgs(1),
		RunE:  runSetPassword,
	})

	return cmd
}

func newSetActiveCmd(use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app, io iocli.IO) error {
				if err := a.auth.SetActive(ctx, args[0], active); err != nil {
					return err
				}
				io.Printf("Account %s %sd\n", args[0], use)
				return nil
			})
		},
	}
}

func runSetPassword(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app, io iocli.IO) error {
		password, err := io.ReadPassword("New password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		confirm, err := io.ReadPassword("Repeat password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if password != confirm {
			return errors.New("passwords do not match")
		}

		if err := a.auth.SetPassword(ctx, args[0], password); err != nil {
			return err
		}
		io.Printf("Password for %s updated\n", args[0])
		return nil
	})
}

// withApp поднимает компоненты сервера на время выполнения fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app, io iocli.IO) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close resources", slog.Any("error", err))
		}
	}()

	return fn(ctx, a, iocli.NewStdio(cmd.InOrStdin(), cmd.OutOrStdout()))
}
