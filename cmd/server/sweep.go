package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/storefront/internal/core/service"
)

func sweepCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Resume one batch of stalled or backordered orders and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.sweeper().SweepOnce(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("sweep complete", slog.Int("fulfilled", n))
			fmt.Fprintf(cmd.OutOrStdout(), "fulfilled %d orders\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall sweep timeout")
	return cmd
}

func (a *app) sweeper() *service.Sweeper {
	return service.NewSweeper(a.repo, a.reconciler, a.logger, service.SweeperConfig{
		Workers:  a.cfg.WorkerCount,
		Interval: a.cfg.SweepInterval,
		Grace:    a.cfg.SweepGrace,
		Batch:    a.cfg.SweepBatch,
	})
}
