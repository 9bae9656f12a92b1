package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/brojonat/soldrop/service/nats"
)

func natsURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "nats-url",
		Usage:   "NATS server URL",
		EnvVars: []string{"NATS_URL"},
		Value:   "nats://localhost:4222",
	}
}

func eventsCommands() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Row progress events published to NATS JetStream",
		Subcommands: []*cli.Command{
			subscribeCommand(),
			inspectStreamCommand(),
		},
	}
}

// subscribeCommand streams row events for one run, or for every run.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream row transitions as a run progresses",
		ArgsUsage: "[RUN_ID]",
		Description: `Streams row events from JetStream. Events are published to the
subject airdrop.{run_id}; without RUN_ID every run is streamed.

Example:
  soldrop events subscribe 6f1c2a44-3c1e-4b8f-9b1a-0d3c5e7f9a11 --json`,
		Flags: []cli.Flag{
			natsURLFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Print one JSON event per line",
			},
		},
		Action: func(c *cli.Context) error {
			subject := natspkg.StreamSubjects
			if runID := c.Args().Get(0); runID != "" {
				subject = natspkg.Subject(runID)
			}

			nc, js, err := natspkg.Connect(c.String("nats-url"), "soldrop-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, jetstream.ConsumerConfig{
				FilterSubject: subject,
				AckPolicy:     jetstream.AckExplicitPolicy,
				DeliverPolicy: jetstream.DeliverNewPolicy,
			})
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Subscribing to %s (Ctrl-C to exit)\n\n", subject)
			}

			var count atomic.Int64
			consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
				defer msg.Ack()
				var event natspkg.RowEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
					return
				}
				count.Add(1)
				printRowEvent(c.App.Writer, event, jsonOutput)
			})
			if err != nil {
				return fmt.Errorf("failed to consume: %w", err)
			}
			defer consumeCtx.Stop()

			<-ctx.Done()
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\nReceived %d events\n", count.Load())
			}
			return nil
		},
	}
}

func printRowEvent(w io.Writer, event natspkg.RowEvent, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.Marshal(event)
		fmt.Fprintln(w, string(data))
		return
	}
	line := fmt.Sprintf("%s  %-11s  %s  %s", event.PublishedAt.Format(time.RFC3339), event.State, event.Address, event.Amount)
	if event.Signature != "" {
		line += "  " + event.Signature
	}
	if event.Reason != "" {
		line += "  (" + event.Reason + ")"
	}
	fmt.Fprintln(w, line)
}

// inspectStreamCommand shows information about the row event stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the " + natspkg.StreamName + " JetStream stream",
		Flags: []cli.Flag{
			natsURLFlag(),
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			nc, js, err := natspkg.Connect(c.String("nats-url"), "soldrop-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if len(filters) > 0 {
				return printJSON(c.App.Writer, info, filters)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream:     %s\n", info.Config.Name)
			fmt.Fprintf(w, "Subjects:   %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:   %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:      %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:  %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:   %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:  %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:    %s\n", info.Config.MaxAge)
			return nil
		},
	}
}
