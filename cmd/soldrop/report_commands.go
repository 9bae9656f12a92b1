package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/soldrop/client"
	"github.com/brojonat/soldrop/service/airdrop"
)

func reportShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a result report",
		ArgsUsage: "[FILE]",
		Flags: []cli.Flag{
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			path := c.Args().Get(0)
			if path == "" {
				path = "Result.json"
			}
			report, err := airdrop.ReadReport(path)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, report, filters)
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the live state of a running distribution",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "Status server URL",
				EnvVars: []string{"SOLDROP_SERVER_URL"},
			},
			&cli.BoolFlag{
				Name:    "follow",
				Aliases: []string{"f"},
				Usage:   "Stream row updates until interrupted",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout (ignored with --follow)",
				Value: 10 * time.Second,
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			if c.Bool("follow") {
				// No client timeout: the stream stays open.
				cl := client.NewClient(c.String("server"), &http.Client{}, quietLogger())
				run, err := cl.GetRun(c.Context)
				if err != nil {
					return fmt.Errorf("failed to get run: %w", err)
				}
				return cl.StreamRows(c.Context, run.RunID, func(ev client.RowEvent) error {
					return printJSON(c.App.Writer, ev, filters)
				})
			}

			httpClient := &http.Client{Timeout: c.Duration("timeout")}
			cl := client.NewClient(c.String("server"), httpClient, quietLogger())

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			run, err := cl.GetRun(ctx)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			return printJSON(c.App.Writer, run, filters)
		},
	}
}
