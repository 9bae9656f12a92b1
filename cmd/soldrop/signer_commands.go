package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/soldrop/service/airdrop"
)

func signerNewCommand() *cli.Command {
	return &cli.Command{
		Name:  "new",
		Usage: "Generate a keypair and print or save its backup text",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write the backup to this file (mode 0600) instead of stdout",
			},
		},
		Action: func(c *cli.Context) error {
			key, err := solana.NewRandomPrivateKey()
			if err != nil {
				return fmt.Errorf("failed to generate keypair: %w", err)
			}
			backup := airdrop.SignerBackup{PublicKey: key.PublicKey(), Text: airdrop.BackupText(key)}

			out := c.String("out")
			if out == "" {
				fmt.Fprint(c.App.Writer, backup.Text)
				return nil
			}
			if err := airdrop.WriteSignerBackup(out, backup); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Public Key: %s\n", backup.PublicKey)
			fmt.Fprintf(c.App.Writer, "Backup written to %s\n", out)
			return nil
		},
	}
}
