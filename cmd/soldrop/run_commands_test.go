package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/soldrop/service/airdrop"
	natspkg "github.com/brojonat/soldrop/service/nats"
	"github.com/brojonat/soldrop/service/wallet"
)

func TestPromptAcknowledger(t *testing.T) {
	tests := []struct {
		name    string
		yes     bool
		input   string
		wantErr error
	}{
		{name: "confirmed", input: "y\n"},
		{name: "confirmed without newline", input: "YES"},
		{name: "auto confirmed", yes: true, input: ""},
		{name: "declined", input: "n\n", wantErr: airdrop.ErrCancelled},
		{name: "no answer", input: "", wantErr: airdrop.ErrCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := solana.NewWallet().PrivateKey
			backup := airdrop.SignerBackup{PublicKey: key.PublicKey(), Text: airdrop.BackupText(key)}
			path := filepath.Join(t.TempDir(), "Keypair.SECRET.txt")

			var out bytes.Buffer
			ack := &promptAcknowledger{path: path, yes: tt.yes, in: strings.NewReader(tt.input), out: &out}
			err := ack.Acknowledge(context.Background(), backup)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			// The backup is written before the operator is asked.
			data, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			assert.Equal(t, backup.Text, string(data))
			assert.Contains(t, out.String(), key.PublicKey().String())
			assert.Equal(t, !tt.yes, strings.Contains(out.String(), "[y/N]"))
		})
	}
}

func TestPromptAcknowledger_BackupFailure(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	backup := airdrop.SignerBackup{PublicKey: key.PublicKey(), Text: airdrop.BackupText(key)}
	path := filepath.Join(t.TempDir(), "missing-dir", "Keypair.SECRET.txt")

	var out bytes.Buffer
	ack := &promptAcknowledger{path: path, yes: true, in: strings.NewReader(""), out: &out}
	err := ack.Acknowledge(context.Background(), backup)
	assert.ErrorContains(t, err, "failed to write signer backup")
	assert.Empty(t, out.String())
}

func TestPrintReportSummary(t *testing.T) {
	report := &airdrop.Report{Result: []airdrop.ReportEntry{
		{Address: "A", Response: airdrop.ResponseSuccess, TxHash: "sig"},
		{Address: "B", Response: airdrop.ResponseFailedPrefix + "boom"},
		{Address: "C", Response: airdrop.ResponseSkipPrefix + airdrop.ReasonInvalidAddress},
	}}

	var buf bytes.Buffer
	printReportSummary(&buf, report, "Result.json", nil)
	assert.Contains(t, buf.String(), "Succeeded: 1")
	assert.Contains(t, buf.String(), "Failed:    1")
	assert.Contains(t, buf.String(), "Skipped:   1")
	assert.Contains(t, buf.String(), "Report:    Result.json")

	buf.Reset()
	printReportSummary(&buf, report, "Result.json", errors.Join(airdrop.ErrReportNotWritten, errors.New("disk full")))
	assert.Contains(t, buf.String(), "not written")
}

var configKeys = []string{
	"LOG_LEVEL", "SOLANA_CLUSTER", "SOLANA_RPC_URLS", "CONFIRM_TIMEOUT",
	"BATCH_SIZE", "BATCH_DELAY", "PLAN_SAMPLE_LIMIT", "PLAN_SAMPLE_POLICY",
	"FEE_SAFETY_MULTIPLIER", "RESULT_PATH", "SIGNER_BACKUP_PATH", "WALLET_KEYPAIR",
	"NATS_URL", "REDIS_URL", "SERVER_ADDR",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func TestSetupEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LOG_LEVEL", "error")

	key := solana.NewWallet().PrivateKey
	keyPath := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(keyPath, []byte(key.String()), 0o600))
	t.Setenv("WALLET_KEYPAIR", keyPath)

	env, err := setupEnvironment(context.Background())
	defer env.Close()
	require.NoError(t, err)

	assert.Equal(t, key.PublicKey(), env.wallet.PublicKey())
	assert.NotNil(t, env.ledger)
	assert.NotNil(t, env.metrics)
	assert.Same(t, env.metrics, processMetrics())

	opts := distributorOptions(env.cfg, env.logger)
	assert.Equal(t, 10, opts.Batch.Size)
	assert.Equal(t, 20, opts.Plan.SampleLimit)
	assert.Equal(t, airdrop.SampleExtrapolate, opts.Plan.SamplePolicy)
	assert.Equal(t, uint64(1), opts.Plan.FeeMultiplier)

	env.Close()
	assert.False(t, env.wallet.Connected())
}

func TestSetupEnvironment_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("BATCH_SIZE", "0")

		env, err := setupEnvironment(context.Background())
		defer env.Close()
		assert.ErrorContains(t, err, "BATCH_SIZE")
	})

	t.Run("missing keypair", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("LOG_LEVEL", "error")
		t.Setenv("WALLET_KEYPAIR", filepath.Join(t.TempDir(), "missing.json"))

		env, err := setupEnvironment(context.Background())
		defer env.Close()
		assert.ErrorContains(t, err, "failed to connect wallet")
	})

	t.Run("bad keypair", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("LOG_LEVEL", "error")
		keyPath := filepath.Join(t.TempDir(), "id.json")
		require.NoError(t, os.WriteFile(keyPath, []byte("[1,2,3]"), 0o600))
		t.Setenv("WALLET_KEYPAIR", keyPath)

		env, err := setupEnvironment(context.Background())
		defer env.Close()
		assert.ErrorIs(t, err, wallet.ErrInvalidKeypairFile)
	})
}

func TestPlanCommand_RequiresFlags(t *testing.T) {
	_, _, err := runApp(t, "", "plan")
	assert.Error(t, err)
}

func TestPrintRowEvent(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := natspkg.RowEvent{
		RunID:       "run-1",
		RowID:       "row-1",
		Address:     "Addr1",
		Amount:      "1.5",
		State:       "failed",
		Signature:   "sig",
		Reason:      "blockhash not found",
		PublishedAt: at,
	}

	var buf bytes.Buffer
	printRowEvent(&buf, event, false)
	assert.Equal(t, "2026-01-02T03:04:05Z  failed       Addr1  1.5  sig  (blockhash not found)\n", buf.String())

	buf.Reset()
	printRowEvent(&buf, event, true)
	var decoded natspkg.RowEvent
	require.NoError(t, jsonUnmarshal(buf.String(), &decoded))
	assert.Equal(t, event, decoded)
}
