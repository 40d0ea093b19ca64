package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTicketCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ticket", Short: "Inspect and remove tickets"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tickets, total, err := store.ListTickets(ctx, 0, 0)
			if err != nil {
				return err
			}
			for _, t := range tickets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d items\tavailable=%t\t%s\n",
					t.ID, t.Type, len(t.Items), t.IsAvailable, t.CreatedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tickets\n", total)
			return nil
		},
	})

	var all bool
	drop := &cobra.Command{
		Use:   "drop [ID]",
		Short: "Remove one ticket, or every ticket with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("pass a ticket id or --all")
			}
			ctx := cmd.Context()
			_, store, err := setup(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if all {
				n, err := store.DeleteAllTickets(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tickets\n", n)
				return nil
			}
			removed, err := store.DeleteTicket(ctx, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("ticket %s does not exist", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed ticket %s\n", args[0])
			return nil
		},
	}
	drop.Flags().BoolVar(&all, "all", false, "remove every ticket")
	cmd.AddCommand(drop)

	return cmd
}
