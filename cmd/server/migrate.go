package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the MySQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.mysql == nil {
				return errors.New("migrate requires STORAGE_DRIVER=mysql")
			}
			if err := a.mysql.Migrate(ctx); err != nil {
				return err
			}
			a.logger.Info("schema migrated")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Migration timeout")
	return cmd
}
