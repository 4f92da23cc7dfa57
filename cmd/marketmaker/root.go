package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "marketmaker",
		Short:         "Single-pair market maker for Backpack Exchange",
		Long:          `Quotes a bid and an ask around the market price of one symbol, replacing both orders every refresh interval.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config/config.yaml", "config yaml path")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with API_KEY/API_SECRET (missing file is ignored)")

	cmd.AddCommand(
		newRunCmd(opts),
		newCycleCmd(opts),
		newRulesCmd(),
		newKeygenCmd(),
	)
	return cmd
}
