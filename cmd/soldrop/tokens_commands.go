package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/soldrop/service/airdrop"
)

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "List the wallet's SOL balance and token holdings",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			env, err := setupEnvironment(c.Context)
			defer env.Close()
			if err != nil {
				return err
			}

			owner := env.wallet.PublicKey()
			lamports, err := env.ledger.GetBalance(c.Context, owner)
			if err != nil {
				return fmt.Errorf("failed to get balance: %w", err)
			}
			holdings, err := env.ledger.ListOwnedTokens(c.Context, owner)
			if err != nil {
				return fmt.Errorf("failed to list tokens: %w", err)
			}

			tokens := make([]airdrop.SelectedToken, len(holdings))
			for i, h := range holdings {
				tokens[i] = airdrop.NewSelectedToken(h)
			}

			if c.Bool("json") {
				return writeIndented(c.App.Writer, map[string]any{
					"wallet":   owner.String(),
					"lamports": lamports,
					"tokens":   tokens,
				})
			}

			fmt.Fprintf(c.App.Writer, "Wallet:  %s\n", owner)
			fmt.Fprintf(c.App.Writer, "Balance: %s SOL\n\n", airdrop.FromBaseUnits(lamports, 9).String())
			if len(tokens) == 0 {
				fmt.Fprintln(c.App.Writer, "No token accounts found.")
				return nil
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MINT\tACCOUNT\tDECIMALS\tBALANCE")
			for _, t := range tokens {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Mint, t.SourceAccount, t.Decimals, t.AvailableBalance().String())
			}
			return w.Flush()
		},
	}
}
