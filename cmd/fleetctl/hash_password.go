package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"bot-fleet-engine/internal/auth"

	"github.com/spf13/cobra"
)

func newHashPasswordCmd() *cobra.Command {
	var (
		password string
		cost     int
		skipRule bool
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for an operator password",
		Long: `Hash an operator password for auth.admin_password_hash or
auth.viewer_password_hash. Without --password the first line of stdin is used.

Examples:
  fleetctl hash-password --password 'correct-Horse-battery-1'
  echo 'correct-Horse-battery-1' | fleetctl hash-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := readFirstLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = line
			}
			if !skipRule {
				if err := auth.ValidatePasswordStrength(password); err != nil {
					return err
				}
			}

			hash, err := auth.NewPasswordManager(cost).HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password to hash (read from stdin when empty)")
	cmd.Flags().IntVar(&cost, "cost", auth.DefaultBcryptCost, "bcrypt cost")
	cmd.Flags().BoolVar(&skipRule, "skip-strength-check", false, "Hash without enforcing the password rules")
	return cmd
}

func readFirstLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", fmt.Errorf("no password given")
	}
	line := strings.TrimRight(scanner.Text(), "\r")
	if line == "" {
		return "", fmt.Errorf("no password given")
	}
	return line, nil
}
