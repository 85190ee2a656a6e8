package main

import (
	"context"

	"github.com/spf13/cobra"

	"storefront/backend/internal/db"
	"storefront/backend/internal/security"
	"storefront/backend/internal/seed"
	tenantrepo "storefront/backend/internal/tenant/repository"
	userrepo "storefront/backend/internal/user/repository"
)

func seedCmd() *cobra.Command {
	f := seed.Default()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the development tenant and admin account",
		Long: `Insert the development tenant, map its hosts and create its admin.

Existing rows are kept, so seed can be re-run safely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()

			conn, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()

			_, err = seed.Run(context.Background(),
				tenantrepo.NewPostgresRepository(conn),
				userrepo.NewPostgresRepository(conn),
				security.NewHasher(cfg.BcryptCost),
				f, log)
			return err
		},
	}
	cmd.Flags().StringVar(&f.TenantKey, "tenant", f.TenantKey, "tenant key")
	cmd.Flags().StringVar(&f.TenantName, "name", f.TenantName, "tenant display name")
	cmd.Flags().StringSliceVar(&f.Domains, "domain", f.Domains, "hosts mapped to the tenant; the first is primary")
	cmd.Flags().StringVar(&f.AdminEmail, "admin-email", f.AdminEmail, "admin email")
	cmd.Flags().StringVar(&f.AdminPassword, "admin-password", f.AdminPassword, "admin password")
	return cmd
}
