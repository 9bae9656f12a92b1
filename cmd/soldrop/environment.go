package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/brojonat/soldrop/service/airdrop"
	"github.com/brojonat/soldrop/service/batch"
	"github.com/brojonat/soldrop/service/cache"
	"github.com/brojonat/soldrop/service/config"
	"github.com/brojonat/soldrop/service/metrics"
	"github.com/brojonat/soldrop/service/recipients"
	ledger "github.com/brojonat/soldrop/service/solana"
	"github.com/brojonat/soldrop/service/wallet"
)

var (
	metricsOnce sync.Once
	appMetrics  *metrics.Metrics
)

// processMetrics registers the collectors with the default registry, which
// the status server exposes, once per process.
func processMetrics() *metrics.Metrics {
	metricsOnce.Do(func() {
		appMetrics = metrics.NewMetrics(nil)
	})
	return appMetrics
}

// environment is everything a ledger-facing command needs: configuration,
// logging, metrics, the ledger client and the connected wallet.
type environment struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	ledger  *ledger.Client
	wallet  *wallet.KeypairWallet

	closers []func() error
}

// setupEnvironment loads configuration and connects to the ledger, the
// wallet and, when configured, the Redis mint cache. Close must be called
// even when an error is returned.
func setupEnvironment(ctx context.Context) (*environment, error) {
	env := &environment{}

	cfg, err := config.Load()
	if err != nil {
		return env, err
	}
	env.cfg = cfg
	env.logger = setupLogger(cfg.LogLevel)
	env.metrics = processMetrics()

	endpoint, err := ledger.SelectRandomEndpoint(cfg.RPCURLs)
	if err != nil {
		return env, err
	}

	opts := []ledger.Option{ledger.WithConfirmTimeout(cfg.ConfirmTimeout)}
	if cfg.RedisURL != "" {
		mintCache, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return env, err
		}
		env.onClose(mintCache.Close)
		opts = append(opts, ledger.WithMintCache(mintCache))
		env.logger.InfoContext(ctx, "mint cache enabled")
	}
	env.ledger = ledger.NewClient(ledger.NewRPCClient(endpoint), cfg.Cluster, env.metrics, env.logger, opts...)
	env.logger.InfoContext(ctx, "initialized solana RPC client", "cluster", cfg.Cluster, "url", endpoint)

	env.wallet = wallet.NewKeypairWallet(cfg.WalletKeypair, env.logger)
	if err := env.wallet.Connect(ctx); err != nil {
		return env, err
	}
	env.onClose(func() error { return env.wallet.Disconnect(context.Background()) })

	return env, nil
}

func (e *environment) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && e.logger != nil {
			e.logger.Warn("failed to release resource", "error", err)
		}
	}
	e.closers = nil
}

// distributorOptions maps configuration onto distributor options.
func distributorOptions(cfg *config.Config, logger *slog.Logger) airdrop.Options {
	return airdrop.Options{
		Batch: batch.Options{
			Size:   cfg.BatchSize,
			Delay:  cfg.BatchDelay,
			Logger: logger,
		},
		Plan: airdrop.PlanOptions{
			SampleLimit:   cfg.PlanSampleLimit,
			SamplePolicy:  cfg.PlanSamplePolicy,
			FeeMultiplier: cfg.FeeSafetyMultiplier,
		},
	}
}

// newDistributor loads the address book, selects the token and returns a
// distributor ready to plan or run.
func newDistributor(ctx context.Context, env *environment, csvPath, mintText string, deps airdrop.Deps) (*airdrop.Distributor, error) {
	rows, err := readRows(csvPath)
	if err != nil {
		return nil, err
	}
	mint, err := solana.PublicKeyFromBase58(mintText)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", mintText, err)
	}

	selected, err := airdrop.SelectToken(ctx, env.ledger, env.wallet.PublicKey(), mint)
	if err != nil {
		return nil, fmt.Errorf("failed to select token: %w", err)
	}
	env.logger.InfoContext(ctx, "token selected",
		"mint", selected.Mint.String(),
		"source_account", selected.SourceAccount.String(),
		"available", selected.AvailableBalance().String(),
	)

	deps.Ledger = env.ledger
	deps.Wallet = env.wallet
	deps.Metrics = env.metrics
	deps.Logger = env.logger

	d := airdrop.NewDistributor(recipients.NewStore(rows...), deps, distributorOptions(env.cfg, env.logger))
	if err := d.SelectToken(selected); err != nil {
		return nil, err
	}
	return d, nil
}
