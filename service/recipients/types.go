// Package recipients holds the recipient rows of a distribution: their
// destination, the amount to send and the per-row transfer state.
package recipients

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

var (
	ErrRowNotFound       = errors.New("row not found")
	ErrInvalidTransition = errors.New("invalid transfer state transition")
	ErrRowLocked         = errors.New("row is no longer editable")
)

// Destination is either Valid or Invalid.
type Destination interface {
	isDestination()
	String() string
}

// Valid is a well-formed ledger address.
type Valid struct {
	Address solana.PublicKey
}

// Invalid keeps user input that failed address validation.
type Invalid struct {
	Raw string
}

func (Valid) isDestination()   {}
func (Invalid) isDestination() {}

func (v Valid) String() string   { return v.Address.String() }
func (i Invalid) String() string { return i.Raw }

// ParseDestination trims raw and classifies it.
func ParseDestination(raw string) Destination {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Invalid{Raw: raw}
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return Invalid{Raw: raw}
	}
	return Valid{Address: pk}
}

// TransferState is one of Idle, InProgress, Succeeded, Failed or Skipped.
type TransferState interface {
	isTransferState()
	Name() string
}

type Idle struct{}

// InProgress means the transaction was submitted and awaits confirmation.
type InProgress struct {
	Signature solana.Signature
}

type Succeeded struct {
	Signature solana.Signature
}

// Failed carries the submitted signature when the failure happened after
// submission, and nil when it happened before.
type Failed struct {
	Signature *solana.Signature
	Reason    string
}

// Skipped rows were never submitted: the destination was not actionable or
// does not exist on the ledger.
type Skipped struct {
	Reason string
}

func (Idle) isTransferState()       {}
func (InProgress) isTransferState() {}
func (Succeeded) isTransferState()  {}
func (Failed) isTransferState()     {}
func (Skipped) isTransferState()    {}

func (Idle) Name() string       { return "idle" }
func (InProgress) Name() string { return "in_progress" }
func (Succeeded) Name() string  { return "succeeded" }
func (Failed) Name() string     { return "failed" }
func (Skipped) Name() string    { return "skipped" }

// SignatureOf returns the transaction reference carried by s, if any.
func SignatureOf(s TransferState) *solana.Signature {
	switch st := s.(type) {
	case Idle, Skipped:
		return nil
	case InProgress:
		return &st.Signature
	case Succeeded:
		return &st.Signature
	case Failed:
		return st.Signature
	default:
		panic(fmt.Sprintf("unknown transfer state %T", s))
	}
}

// IsTerminal reports whether s can no longer change within a run.
func IsTerminal(s TransferState) bool {
	switch s.(type) {
	case Succeeded, Failed, Skipped:
		return true
	case Idle, InProgress:
		return false
	default:
		panic(fmt.Sprintf("unknown transfer state %T", s))
	}
}

// ValidateTransition enforces forward-only movement:
// Idle -> InProgress | Failed | Skipped, InProgress -> Succeeded | Failed.
func ValidateTransition(from, to TransferState) error {
	ok := false
	switch from.(type) {
	case Idle:
		switch to.(type) {
		case InProgress, Failed, Skipped:
			ok = true
		}
	case InProgress:
		switch to.(type) {
		case Succeeded, Failed:
			ok = true
		}
	case Succeeded, Failed, Skipped:
	default:
		panic(fmt.Sprintf("unknown transfer state %T", from))
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from.Name(), to.Name())
	}
	return nil
}

// Row is one recipient. Rows are addressed by ID, never by position.
type Row struct {
	ID          uuid.UUID
	Destination Destination
	Amount      string
	State       TransferState
}

// NewRow builds an Idle row with a fresh id.
func NewRow(dest Destination, amount string) Row {
	return Row{
		ID:          uuid.New(),
		Destination: dest,
		Amount:      strings.TrimSpace(amount),
		State:       Idle{},
	}
}

// Address returns the destination address when it is Valid.
func (r Row) Address() (solana.PublicKey, bool) {
	switch d := r.Destination.(type) {
	case Valid:
		return d.Address, true
	case Invalid:
		return solana.PublicKey{}, false
	default:
		panic(fmt.Sprintf("unknown destination %T", r.Destination))
	}
}

// IsBlank reports whether the row is an untouched placeholder.
func (r Row) IsBlank() bool {
	inv, ok := r.Destination.(Invalid)
	return ok && inv.Raw == "" && r.Amount == ""
}
