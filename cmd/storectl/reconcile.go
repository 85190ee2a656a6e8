package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"storefront/backend/internal/app"
)

func reconcileCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			rep, runErr := a.Reconciler.RunOnce(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "upper bound for the pass")
	return cmd
}
