package airdrop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/brojonat/soldrop/service/recipients"
)

// Report response strings.
const (
	ResponseSuccess      = "Transaction successful"
	ResponseFailedPrefix = "Transaction failed: "
	ResponseSkipPrefix   = "Skipped: "
	ResponsePending      = "Transaction pending"
	ResponseNotAttempted = "Not attempted"

	ReasonInvalidAddress = "invalid address"
)

// ReportEntry is one recipient's outcome.
type ReportEntry struct {
	Address  string `json:"address"`
	Response string `json:"response"`
	TxHash   string `json:"txHash,omitempty"`
}

// Report is the exported Result.json document.
type Report struct {
	Result []ReportEntry `json:"result"`
}

// BuildReport assembles a report from the final rows of a run, in row order.
func BuildReport(rows []recipients.Row) *Report {
	r := &Report{Result: make([]ReportEntry, 0, len(rows))}
	for _, row := range rows {
		entry := ReportEntry{Address: row.Destination.String()}
		if sig := recipients.SignatureOf(row.State); sig != nil {
			entry.TxHash = sig.String()
		}
		switch st := row.State.(type) {
		case recipients.Succeeded:
			entry.Response = ResponseSuccess
		case recipients.Failed:
			entry.Response = ResponseFailedPrefix + st.Reason
		case recipients.Skipped:
			entry.Response = ResponseSkipPrefix + st.Reason
		case recipients.InProgress:
			entry.Response = ResponsePending
		case recipients.Idle:
			entry.Response = ResponseNotAttempted
		default:
			panic(fmt.Sprintf("unknown transfer state %T", row.State))
		}
		r.Result = append(r.Result, entry)
	}
	return r
}

// Counts tallies entries by outcome.
func (r *Report) Counts() (succeeded, failed, skipped int) {
	for _, e := range r.Result {
		switch {
		case e.Response == ResponseSuccess:
			succeeded++
		case strings.HasPrefix(e.Response, ResponseSkipPrefix):
			skipped++
		default:
			failed++
		}
	}
	return succeeded, failed, skipped
}

// ReportSink exports a finished report.
type ReportSink interface {
	WriteReport(ctx context.Context, r *Report) error
}

// FileSink writes the report as indented JSON to Path.
type FileSink struct {
	Path string
}

func (s FileSink) WriteReport(ctx context.Context, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by FileSink.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
