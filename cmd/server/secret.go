package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/prescient/internal/crypto"
)

// NewSecretCmd creates the secret subcommand tree.
func NewSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the token signing secret",
	}

	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a random signing secret",
		Long: `Generate a random 32 byte signing secret encoded as base64.
With --output the secret is written to a file readable only by its owner,
suitable for token.secret_file.`,
		Args: cobra.NoArgs,
		RunE: runSecretGenerate,
	}
	generate.Flags().StringP("output", "o", "", "write the secret to this file instead of stdout")
	cmd.AddCommand(generate)

	return cmd
}

func runSecretGenerate(cmd *cobra.Command, _ []string) error {
	secret, err := crypto.GenerateSecret()
	if err != nil {
		return err
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
		return err
	}

	if err := os.WriteFile(output, []byte(secret+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write secret file: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Secret written to %s\n", output)
	return err
}
