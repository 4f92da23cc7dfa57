package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"backpack-mm/internal/engine"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Quote continuously until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.registry.Schedule(a.cfg.Runtime.RulesRefresh); err != nil {
				return err
			}
			runner := &engine.Runner{
				Cycle:            a.cycle(),
				Interval:         time.Duration(a.cfg.Runtime.RefreshIntervalSec) * time.Second,
				CancelOnShutdown: a.cfg.Runtime.CancelOnShutdown,
				ShutdownTimeout:  time.Duration(a.cfg.Exchange.CallTimeoutSec) * time.Second * 2,
				Alerts:           a.alerts,
				Logger:           a.logger.Named("runner"),
			}
			return runner.Run(ctx)
		},
	}
}
