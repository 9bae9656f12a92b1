package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "soldrop",
		Usage: "Distribute one SPL token to many recipients",
		Description: `Plans, funds and executes a token airdrop from a CSV address book.

Configuration is read from the environment (and an optional .env file):
SOLANA_CLUSTER, SOLANA_RPC_URLS, WALLET_KEYPAIR, BATCH_SIZE, BATCH_DELAY,
PLAN_SAMPLE_LIMIT, PLAN_SAMPLE_POLICY, FEE_SAFETY_MULTIPLIER, RESULT_PATH,
SIGNER_BACKUP_PATH, NATS_URL, REDIS_URL, SERVER_ADDR and LOG_LEVEL.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			runCommand(),
			planCommand(),
			tokensCommand(),
			{
				Name:  "csv",
				Usage: "Address book commands",
				Subcommands: []*cli.Command{
					csvValidateCommand(),
				},
			},
			{
				Name:  "report",
				Usage: "Result report commands",
				Subcommands: []*cli.Command{
					reportShowCommand(),
				},
			},
			statusCommand(),
			eventsCommands(),
			{
				Name:  "signer",
				Usage: "Keypair utilities",
				Subcommands: []*cli.Command{
					signerNewCommand(),
				},
			},
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			fmt.Fprintf(w, "soldrop CLI\n")
			fmt.Fprintf(w, "  Version: %s\n", version)
			fmt.Fprintf(w, "  Commit:  %s\n", commit)
			fmt.Fprintf(w, "  Built:   %s\n", date)
			return nil
		},
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// quietLogger is used by commands that only talk to files or the status
// server and have no configuration to load.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
