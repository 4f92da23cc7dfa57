package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newCycleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run exactly one cancel-and-replace cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.cycle().Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "cycle=%s symbol=%s stage=%s bid_order_id=%q ask_order_id=%q cancelled=%d errors=%d\n",
				res.ID, res.Symbol, res.Stage, res.BidOrderID, res.AskOrderID, res.Cancelled, len(res.Errors))
			if !res.OK() {
				return fmt.Errorf("cycle finished with errors: %w", errors.Join(res.Errors...))
			}
			return nil
		},
	}
}
