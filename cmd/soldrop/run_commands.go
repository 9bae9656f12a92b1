package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/soldrop/service/airdrop"
	natspkg "github.com/brojonat/soldrop/service/nats"
	"github.com/brojonat/soldrop/service/recipients"
	"github.com/brojonat/soldrop/service/server"
)

func csvFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "csv",
		Aliases:  []string{"c"},
		Usage:    "Address book with an Addresses,Amount header",
		Required: true,
	}
}

func mintFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "mint",
		Aliases:  []string{"m"},
		Usage:    "Mint address of the token to distribute",
		Required: true,
		EnvVars:  []string{"SOLDROP_MINT"},
	}
}

func jqFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "jq",
		Usage: "jq filter applied to the JSON output (repeatable, applied in order)",
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Plan, fund and execute a distribution",
		Flags: []cli.Flag{
			csvFlag(),
			mintFlag(),
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Continue without prompting once the signer backup is written",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := setupEnvironment(ctx)
			defer env.Close()
			if err != nil {
				return err
			}

			deps := airdrop.Deps{
				Acknowledger: &promptAcknowledger{
					path: env.cfg.SignerBackupPath,
					yes:  c.Bool("yes"),
					in:   c.App.Reader,
					out:  c.App.ErrWriter,
				},
				Sink: airdrop.FileSink{Path: env.cfg.ResultPath},
			}
			if env.cfg.NATSURL != "" {
				publisher, err := natspkg.NewPublisher(env.cfg.NATSURL, env.metrics, env.logger)
				if err != nil {
					return err
				}
				env.onClose(publisher.Close)
				deps.Publisher = publisher
			}

			d, err := newDistributor(ctx, env, c.String("csv"), c.String("mint"), deps)
			if err != nil {
				return err
			}

			if env.cfg.ServerAddr != "" {
				shutdown, err := startStatusServer(env, d)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			report, err := d.Run(ctx)
			if report != nil {
				printReportSummary(c.App.Writer, report, env.cfg.ResultPath, err)
			}
			var planErr *airdrop.PlanError
			if errors.As(err, &planErr) {
				fmt.Fprintf(c.App.ErrWriter, "Plan rejected: %s\n", planErr.Reason)
			}
			return err
		},
	}
}

// startStatusServer serves the live run in the background and returns a
// function that stops it.
func startStatusServer(env *environment, d *airdrop.Distributor) (func(), error) {
	var sse *server.SSEPublisher
	if env.cfg.NATSURL != "" {
		var err error
		sse, err = server.NewSSEPublisher(env.cfg.NATSURL, env.logger)
		if err != nil {
			return nil, err
		}
	}

	srv := server.New(env.cfg.ServerAddr, d, sse, env.metrics, env.logger)
	go func() {
		if err := srv.Start(); err != nil {
			env.logger.Error("status server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			env.logger.Error("failed to shutdown status server gracefully", "error", err)
		}
	}, nil
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Check token and SOL sufficiency without sending anything",
		Flags: []cli.Flag{
			csvFlag(),
			mintFlag(),
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			env, err := setupEnvironment(c.Context)
			defer env.Close()
			if err != nil {
				return err
			}

			d, err := newDistributor(c.Context, env, c.String("csv"), c.String("mint"), airdrop.Deps{})
			if err != nil {
				return err
			}

			plan, err := d.Plan(c.Context)
			if err != nil {
				var planErr *airdrop.PlanError
				if errors.As(err, &planErr) {
					fmt.Fprintf(c.App.ErrWriter, "Plan rejected: %s\n", planErr.Reason)
				}
				return err
			}
			return printJSON(c.App.Writer, plan, filters)
		},
	}
}

// promptAcknowledger saves the signer backup and then asks the operator to
// confirm before anything is funded.
type promptAcknowledger struct {
	path string
	yes  bool
	in   io.Reader
	out  io.Writer
}

func (a *promptAcknowledger) Acknowledge(ctx context.Context, backup airdrop.SignerBackup) error {
	if err := airdrop.WriteSignerBackup(a.path, backup); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Temporary signer: %s\n", backup.PublicKey)
	fmt.Fprintf(a.out, "Its secret key was saved to %s.\n", a.path)
	fmt.Fprintf(a.out, "Keep that file until the run is over: it is the only way to recover funds left on the signer.\n")
	if a.yes {
		return nil
	}

	fmt.Fprint(a.out, "Fund the signer and start the distribution? [y/N] ")
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return airdrop.ErrCancelled
}

func printReportSummary(w io.Writer, report *airdrop.Report, path string, runErr error) {
	succeeded, failed, skipped := report.Counts()
	fmt.Fprintln(w, "Distribution finished")
	fmt.Fprintf(w, "  Succeeded: %d\n", succeeded)
	fmt.Fprintf(w, "  Failed:    %d\n", failed)
	fmt.Fprintf(w, "  Skipped:   %d\n", skipped)
	if errors.Is(runErr, airdrop.ErrReportNotWritten) {
		fmt.Fprintf(w, "  Report:    not written (%v)\n", runErr)
		return
	}
	fmt.Fprintf(w, "  Report:    %s\n", path)
}

// readRows parses the address book at path.
func readRows(path string) ([]recipients.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open address book: %w", err)
	}
	defer f.Close()
	return recipients.ParseCSV(f)
}
