package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"backpack-mm/internal/core"
	"backpack-mm/internal/exchange/backpack"
	"backpack-mm/internal/instrument"
)

func newRulesCmd() *cobra.Command {
	var baseURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "rules [SYMBOL...]",
		Short: "Print the precision rules the exchange publishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := backpack.NewClientWithOptions(backpack.Options{RestBaseURL: baseURL})
			registry := instrument.NewRegistry(client, nil)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := registry.Refresh(ctx); err != nil {
				return err
			}
			symbols := make([]string, 0, len(args))
			for _, s := range args {
				symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
			}
			return printRules(cmd, registry, symbols)
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "https://api.backpack.exchange", "exchange REST base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func printRules(cmd *cobra.Command, registry *instrument.Registry, symbols []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTICK\tSTEP\tMIN_QTY\tTRADABLE")
	if len(symbols) == 0 {
		fmt.Fprintf(w, "(%d markets loaded; pass symbols to print their rules)\n", registry.Len())
		return w.Flush()
	}
	var missing []string
	for _, symbol := range symbols {
		rules, err := registry.Rules(symbol)
		if err != nil {
			missing = append(missing, symbol)
			continue
		}
		tradable := "yes"
		if _, err := registry.Tradable(symbol); err != nil {
			tradable = "no: unsupported precision"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rules.Symbol, rules.PriceTick, rules.QtyStep, rules.MinQty, tradable)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", core.ErrSymbolNotFound, strings.Join(missing, ", "))
	}
	return nil
}
