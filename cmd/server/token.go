package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/storefront/internal/adapter/auth"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
)

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		admin  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			caller := domain.Caller{UserID: userID, Email: email, Role: domain.RoleUser}
			if admin {
				caller.Role = domain.RoleAdmin
			}
			token, err := auth.NewAuthenticator(cfg.JWTPrivateKey, cfg.SessionTTL).Issue(caller, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token")
	cmd.Flags().StringVar(&email, "email", "", "Email to embed in the token")
	cmd.Flags().BoolVar(&admin, "admin", false, "Issue an admin token")
	return cmd
}
