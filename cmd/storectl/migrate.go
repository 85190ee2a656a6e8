package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storefront/backend/internal/db/migrate"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(migrateDirectionCmd("up", "Apply pending migrations (all unless --steps is set)"))
	cmd.AddCommand(migrateDirectionCmd("down", "Roll back migrations (one unless --steps is set)"))
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()
			st, err := migrate.CurrentStatus(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", st.Version, st.Dirty)
			return nil
		},
	})
	return cmd
}

func migrateDirectionCmd(direction, short string) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   direction,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()
			if err := migrate.Run(cfg.DatabaseURL, direction, steps); err != nil {
				return fmt.Errorf("migrate %s: %w", direction, err)
			}
			st, err := migrate.CurrentStatus(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			log.Sugar().Infow("migrations applied", "direction", direction, "version", st.Version)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply")
	return cmd
}
