// Package airdrop distributes one token to many recipients: it plans the
// native currency and accounts a run needs, funds a temporary signer,
// transfers to every recipient in rate-limited batches and reports per-row
// outcomes.
package airdrop

import (
	"context"

	"github.com/gagliardetto/solana-go"

	ledger "github.com/brojonat/soldrop/service/solana"
)

// Ledger is the remote ledger connection. *solana.Client implements it.
type Ledger interface {
	GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
	GetTokenAccountsOwnedBy(ctx context.Context, owner, mint solana.PublicKey) ([]ledger.TokenAccount, error)
	// GetAccountInfo returns an error wrapping ledger.ErrAccountNotFound for
	// addresses with no account.
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*ledger.AccountInfo, error)
	// RecentBlockhash is one round trip; RecentBlockhashAndFee also prices
	// a signature and is only needed when planning.
	RecentBlockhash(ctx context.Context) (solana.Hash, error)
	RecentBlockhashAndFee(ctx context.Context, payer solana.PublicKey) (solana.Hash, uint64, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
	MinimumRentExemptBalance(ctx context.Context) (uint64, error)
}

// Wallet is the sender's wallet. *wallet.KeypairWallet implements it.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}
