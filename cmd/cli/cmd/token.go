// Package cmd - token command
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shop-pricing/core/principal"
	"shop-pricing/internal/config"
	"shop-pricing/internal/errors"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue API bearer tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for --user with --role in --tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if actorID == "" {
			return errors.Validation("--user is required to issue a token")
		}
		p, err := actingPrincipal()
		if err != nil {
			return err
		}
		cfg := config.Get()
		auth, err := principal.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return err
		}
		signed, err := auth.Issue(p, tokenTTL, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	addTenantFlags(tokenIssueCmd)
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
