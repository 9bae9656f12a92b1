package airdrop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

var (
	ErrFundingFailed   = errors.New("funding failed")
	ErrSignerState     = errors.New("temporary signer is in the wrong state")
	ErrNotAcknowledged = errors.New("temporary signer backup not acknowledged")
)

// SignerState is a step of the temporary signer lifecycle.
type SignerState int

const (
	SignerGenerated SignerState = iota
	SignerAwaitingAcknowledgement
	SignerFunded
	SignerSpent
	SignerDiscarded
)

func (s SignerState) String() string {
	switch s {
	case SignerGenerated:
		return "generated"
	case SignerAwaitingAcknowledgement:
		return "awaiting_acknowledgement"
	case SignerFunded:
		return "funded"
	case SignerSpent:
		return "spent"
	case SignerDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// SignerBackup is what the user must save before the signer is funded.
type SignerBackup struct {
	PublicKey solana.PublicKey
	Text      string
}

// TemporarySigner is a disposable keypair that holds the distributed tokens
// and pays every per-recipient transfer of one run. It lives only in memory.
type TemporarySigner struct {
	mu           sync.Mutex
	key          solana.PrivateKey
	pub          solana.PublicKey
	state        SignerState
	acknowledged bool
	tokenAccount solana.PublicKey
}

// NewTemporarySigner generates a fresh keypair.
func NewTemporarySigner() (*TemporarySigner, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate temporary signer: %w", err)
	}
	return &TemporarySigner{key: key, pub: key.PublicKey(), state: SignerGenerated}, nil
}

func (s *TemporarySigner) PublicKey() solana.PublicKey { return s.pub }

func (s *TemporarySigner) State() SignerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TokenAccount is the signer's associated account, known once funded.
func (s *TemporarySigner) TokenAccount() solana.PublicKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenAccount
}

// BackupText renders the key the way solana-cli stores it.
func BackupText(key solana.PrivateKey) string {
	var b strings.Builder
	b.WriteString("Private Key: [")
	for i, v := range key {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(v)))
	}
	b.WriteString("]\nPublic Key: ")
	b.WriteString(key.PublicKey().String())
	b.WriteString("\n")
	return b.String()
}

// BeginAcknowledgement moves the signer to AwaitingAcknowledgement and
// returns the backup the user has to keep.
func (s *TemporarySigner) BeginAcknowledgement() (SignerBackup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SignerGenerated && s.state != SignerAwaitingAcknowledgement {
		return SignerBackup{}, fmt.Errorf("%w: %s", ErrSignerState, s.state)
	}
	s.state = SignerAwaitingAcknowledgement
	return SignerBackup{PublicKey: s.pub, Text: BackupText(s.key)}, nil
}

// Acknowledge records that the user saved the backup.
func (s *TemporarySigner) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SignerAwaitingAcknowledgement {
		return fmt.Errorf("%w: %s", ErrSignerState, s.state)
	}
	s.acknowledged = true
	return nil
}

// BuildFundingTransaction builds the single funding transaction, paid by
// wallet: fund the signer with lamports, create the signer's associated
// account, then move totalUnits of the token into it.
func BuildFundingTransaction(
	wallet, signer solana.PublicKey,
	selected SelectedToken,
	lamports, totalUnits uint64,
	blockhash solana.Hash,
) (*solana.Transaction, solana.PublicKey, error) {
	signerATA, _, err := solana.FindAssociatedTokenAddress(signer, selected.Mint)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to derive signer token account: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, wallet, signer).Build(),
			associatedtokenaccount.NewCreateInstruction(wallet, signer, selected.Mint).Build(),
			token.NewTransferCheckedInstruction(
				totalUnits, selected.Decimals,
				selected.SourceAccount, selected.Mint, signerATA, wallet, nil,
			).Build(),
		},
		blockhash,
		solana.TransactionPayer(wallet),
	)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to build funding transaction: %w", err)
	}
	return tx, signerATA, nil
}

// Fund sends the funding transaction and waits for it to confirm. Any
// failure is returned wrapping ErrFundingFailed and leaves the signer unfunded.
func (s *TemporarySigner) Fund(ctx context.Context, l Ledger, w Wallet, selected SelectedToken, plan *Plan) (solana.Signature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SignerAwaitingAcknowledgement {
		return solana.Signature{}, fmt.Errorf("%w: %s", ErrSignerState, s.state)
	}
	if !s.acknowledged {
		return solana.Signature{}, ErrNotAcknowledged
	}

	fail := func(step string, err error) (solana.Signature, error) {
		return solana.Signature{}, fmt.Errorf("%w: %s: %w", ErrFundingFailed, step, err)
	}

	blockhash, err := l.RecentBlockhash(ctx)
	if err != nil {
		return fail("blockhash", err)
	}
	tx, signerATA, err := BuildFundingTransaction(w.PublicKey(), s.pub, selected, plan.RequiredLamports, plan.TotalBaseUnits, blockhash)
	if err != nil {
		return fail("build", err)
	}
	if err := w.SignTransaction(ctx, tx); err != nil {
		return fail("sign", err)
	}
	sig, err := l.SendTransaction(ctx, tx)
	if err != nil {
		return fail("send", err)
	}
	if err := l.ConfirmTransaction(ctx, sig); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: confirm %s: %w", ErrFundingFailed, sig, err)
	}

	s.tokenAccount = signerATA
	s.state = SignerFunded
	return sig, nil
}

// Sign signs tx as fee payer and token authority.
func (s *TemporarySigner) Sign(tx *solana.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SignerFunded && s.state != SignerSpent {
		return fmt.Errorf("%w: %s", ErrSignerState, s.state)
	}
	s.state = SignerSpent

	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(s.pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign with temporary signer: %w", err)
	}
	return nil
}

// Discard zeroes the key. Every later use fails.
func (s *TemporarySigner) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.key)
	s.state = SignerDiscarded
}

// WriteSignerBackup saves a backup readable only by the current user.
func WriteSignerBackup(path string, b SignerBackup) error {
	if err := os.WriteFile(path, []byte(b.Text), 0o600); err != nil {
		return fmt.Errorf("failed to write signer backup: %w", err)
	}
	return nil
}
