package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taxlens/internal/authz"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token utilities",
	}

	var (
		roles     []string
		expiresIn time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Sign a bearer token for subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokens := authz.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)
			token, err := tokens.Issue(args[0], roles, expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringSliceVar(&roles, "role", nil, "role to grant (repeatable)")
	issue.Flags().DurationVar(&expiresIn, "expires-in", time.Hour, "token lifetime")
	cmd.AddCommand(issue)
	return cmd
}
