package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"

	"github.com/brojonat/soldrop/service/airdrop"
	"github.com/brojonat/soldrop/service/wallet"
)

// Clusters maps a cluster name to its public RPC endpoint.
var Clusters = map[string]string{
	"mainnet-beta": rpc.MainNetBeta_RPC,
	"devnet":       rpc.DevNet_RPC,
	"testnet":      rpc.TestNet_RPC,
	"localnet":     rpc.LocalNet_RPC,
}

// Config holds all application configuration loaded from environment variables.
// All fields are validated at load time so misconfiguration fails fast.
type Config struct {
	LogLevel string

	// Ledger configuration
	Cluster        string
	RPCURLs        []string
	ConfirmTimeout time.Duration

	// Distribution configuration
	BatchSize           int
	BatchDelay          time.Duration
	PlanSampleLimit     int
	PlanSamplePolicy    airdrop.SamplePolicy
	FeeSafetyMultiplier uint64

	// Files
	ResultPath       string
	SignerBackupPath string
	WalletKeypair    string

	// Optional infrastructure; empty disables the component.
	NATSURL    string
	RedisURL   string
	ServerAddr string
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists. Variables already set in
// the environment win over the file.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	return FromEnv()
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// FromEnv reads configuration from the environment only and validates it.
// Every problem is reported, not only the first.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.Cluster = getEnvOrDefault("SOLANA_CLUSTER", "devnet")
	if raw := os.Getenv("SOLANA_RPC_URLS"); raw != "" {
		cfg.RPCURLs = splitList(raw)
	} else if url, ok := Clusters[cfg.Cluster]; ok {
		cfg.RPCURLs = []string{url}
	}

	var err error
	if cfg.ConfirmTimeout, err = parseDuration("CONFIRM_TIMEOUT", "90s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.BatchSize, err = parseInt("BATCH_SIZE", 10); err != nil {
		errs = append(errs, err)
	}
	if cfg.BatchDelay, err = parseDuration("BATCH_DELAY", "1s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.PlanSampleLimit, err = parseInt("PLAN_SAMPLE_LIMIT", 20); err != nil {
		errs = append(errs, err)
	}
	if cfg.PlanSamplePolicy, err = airdrop.ParseSamplePolicy(getEnvOrDefault("PLAN_SAMPLE_POLICY", string(airdrop.SampleExtrapolate))); err != nil {
		errs = append(errs, fmt.Errorf("PLAN_SAMPLE_POLICY: %w", err))
	}
	multiplier, err := parseInt("FEE_SAFETY_MULTIPLIER", 1)
	if err != nil {
		errs = append(errs, err)
	} else if multiplier < 1 {
		errs = append(errs, fmt.Errorf("FEE_SAFETY_MULTIPLIER must be at least 1, got %d", multiplier))
	} else {
		cfg.FeeSafetyMultiplier = uint64(multiplier)
	}

	cfg.ResultPath = getEnvOrDefault("RESULT_PATH", "Result.json")
	cfg.SignerBackupPath = getEnvOrDefault("SIGNER_BACKUP_PATH", "Keypair.SECRET.txt")
	cfg.WalletKeypair = getEnvOrDefault("WALLET_KEYPAIR", wallet.DefaultKeypairPath())

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.ServerAddr = os.Getenv("SERVER_ADDR")

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks the values of an assembled configuration.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel))
	}

	if _, ok := Clusters[c.Cluster]; !ok {
		errs = append(errs, fmt.Errorf("SOLANA_CLUSTER must be one of mainnet-beta, devnet, testnet, localnet, got %q", c.Cluster))
	}
	if len(c.RPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("no RPC endpoints configured"))
	}
	for _, u := range c.RPCURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS: %q is not an http(s) URL", u))
		}
	}

	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be at least 1, got %d", c.BatchSize))
	}
	if c.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("BATCH_DELAY cannot be negative"))
	}
	if c.PlanSampleLimit < 1 {
		errs = append(errs, fmt.Errorf("PLAN_SAMPLE_LIMIT must be at least 1, got %d", c.PlanSampleLimit))
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CONFIRM_TIMEOUT must be positive"))
	}

	if c.ResultPath == "" {
		errs = append(errs, fmt.Errorf("RESULT_PATH is required"))
	}
	if c.SignerBackupPath == "" {
		errs = append(errs, fmt.Errorf("SIGNER_BACKUP_PATH is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
