package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"backpack-mm/internal/exchange/backpack"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 key pair for API registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			signer, err := backpack.NewSignerFromKey(priv)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API_SECRET=%s\n", base64.StdEncoding.EncodeToString(priv.Seed()))
			fmt.Fprintf(out, "# public key to register with the exchange:\n# %s\n", signer.PublicKey())
			return nil
		},
	}
}
