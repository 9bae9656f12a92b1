package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/soldrop/service/airdrop"
	"github.com/brojonat/soldrop/service/recipients"
)

func csvValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Classify every address in an address book",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "decimals",
				Usage: "Also check amounts against this many decimals",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output rows as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address book path is required")
			}
			rows, err := readRows(c.Args().Get(0))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeIndented(c.App.Writer, rows)
			}

			checkAmounts := c.IsSet("decimals")
			decimals := uint8(c.Uint("decimals"))

			var valid, invalid, badAmounts int
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTATUS\tADDRESS\tAMOUNT")
			for i, row := range rows {
				status := "Valid"
				if _, ok := row.Address(); ok {
					valid++
				} else {
					status = "Invalid"
					invalid++
				}
				if checkAmounts && status == "Valid" {
					if _, err := airdrop.ParseAmount(row.Amount, decimals); err != nil {
						status = "Bad amount"
						badAmounts++
					}
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, status, displayAddress(row), row.Amount)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "\n%d rows: %d valid, %d invalid", len(rows), valid, invalid)
			if checkAmounts {
				fmt.Fprintf(c.App.Writer, ", %d with bad amounts", badAmounts)
			}
			fmt.Fprintln(c.App.Writer)
			return nil
		},
	}
}

func displayAddress(row recipients.Row) string {
	if s := row.Destination.String(); s != "" {
		return s
	}
	return "(empty)"
}
