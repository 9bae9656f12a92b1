package airdrop

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/soldrop/service/recipients"
)

func TestBuildReport(t *testing.T) {
	okSig := solana.Signature{1}
	failSig := solana.Signature{2}
	a, b, c, d := newKey(), newKey(), newKey(), newKey()

	rows := []recipients.Row{
		{Destination: recipients.Valid{Address: a}, Amount: "1", State: recipients.Succeeded{Signature: okSig}},
		{Destination: recipients.Valid{Address: b}, Amount: "1", State: recipients.Failed{Signature: &failSig, Reason: "custom program error: 0x1"}},
		{Destination: recipients.Valid{Address: c}, Amount: "1", State: recipients.Failed{Reason: "blockhash not found"}},
		{Destination: recipients.Invalid{Raw: "bogus"}, Amount: "1", State: recipients.Skipped{Reason: ReasonInvalidAddress}},
		{Destination: recipients.Valid{Address: d}, Amount: "1", State: recipients.Idle{}},
	}

	r := BuildReport(rows)
	require.Len(t, r.Result, 5)

	assert.Equal(t, ReportEntry{Address: a.String(), Response: ResponseSuccess, TxHash: okSig.String()}, r.Result[0])
	assert.Equal(t, ReportEntry{Address: b.String(), Response: "Transaction failed: custom program error: 0x1", TxHash: failSig.String()}, r.Result[1])
	assert.Equal(t, ReportEntry{Address: c.String(), Response: "Transaction failed: blockhash not found"}, r.Result[2])
	assert.Equal(t, ReportEntry{Address: "bogus", Response: "Skipped: invalid address"}, r.Result[3])
	assert.Equal(t, ReportEntry{Address: d.String(), Response: ResponseNotAttempted}, r.Result[4])

	succeeded, failed, skipped := r.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, failed)
	assert.Equal(t, 1, skipped)
}

func TestReportJSONShape(t *testing.T) {
	r := &Report{Result: []ReportEntry{
		{Address: "A", Response: ResponseSuccess, TxHash: "sig"},
		{Address: "B", Response: "Skipped: invalid address"},
	}}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":[
		{"address":"A","response":"Transaction successful","txHash":"sig"},
		{"address":"B","response":"Skipped: invalid address"}
	]}`, string(data))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Result.json")
	r := &Report{Result: []ReportEntry{{Address: "A", Response: ResponseSuccess, TxHash: "sig"}}}

	require.NoError(t, FileSink{Path: path}.WriteReport(context.Background(), r))

	got, err := ReadReport(path)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = ReadReport(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
