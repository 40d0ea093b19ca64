package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DataShades/fpx/internal/models"
	"github.com/DataShades/fpx/internal/storage"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "client", Short: "Manage API clients"}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Create a client and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := models.NewClient(args[0])
			if err != nil {
				return err
			}
			if err := store.InsertClient(ctx, client); err != nil {
				if errors.Is(err, storage.ErrDuplicate) {
					return fmt.Errorf("client %s already exists", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client created: %s - %s\n", client.Name, client.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop NAME",
		Short: "Remove a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.DeleteClient(ctx, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("client %s does not exist", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client removed: %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "regenerate NAME",
		Short: "Issue a new id for a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := models.NewClientSecret()
			if err != nil {
				return err
			}
			if err := store.UpdateClientID(ctx, args[0], id); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("client %s does not exist", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Client updated: %s - %s\n", args[0], id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			clients, err := store.ListClients(ctx)
			if err != nil {
				return err
			}
			for _, c := range clients {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.Name, c.ID)
			}
			return nil
		},
	})

	return cmd
}
