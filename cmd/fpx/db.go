package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DataShades/fpx/internal/storage"
	"github.com/DataShades/fpx/internal/workers"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Database management"}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Create or upgrade tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			if gs, ok := store.(*storage.GormStore); ok && gs.Pool() != nil {
				if err := workers.MigrateRiver(ctx, gs.Pool()); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date")
			return nil
		},
	})
	return cmd
}
