package nats

import (
	"fmt"
	"time"
)

// RowEvent is a recipient row transition published to NATS.
// This is published to the subject "airdrop.{run_id}" in JetStream.
type RowEvent struct {
	// Run and row identifiers
	RunID string `json:"run_id"`
	RowID string `json:"row_id"`

	// Recipient
	Address string `json:"address"`
	Amount  string `json:"amount"`

	// Transfer state after the transition
	State     string `json:"state"`
	Signature string `json:"signature,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject an event for runID is published on.
func Subject(runID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, runID)
}
