package airdrop

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	ledger "github.com/brojonat/soldrop/service/solana"
)

// ErrDestinationUnresolvable means the destination has no account on the
// ledger at all. Such rows are skipped, never attempted.
var ErrDestinationUnresolvable = errors.New("destination account does not exist")

// ErrDestinationNotWallet means the destination exists but is neither a
// system wallet nor a token account of the mint. An associated account
// owned by it could never be spent, so such rows are skipped too.
var ErrDestinationNotWallet = errors.New("destination is not a wallet or a token account of the mint")

// skipReason reports whether a resolution error means the row is skipped
// rather than failed, and the reason to record.
func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrDestinationUnresolvable):
		return ErrDestinationUnresolvable.Error(), true
	case errors.Is(err, ErrDestinationNotWallet):
		return ErrDestinationNotWallet.Error(), true
	}
	return "", false
}

// Resolution says where a recipient's tokens go.
type Resolution struct {
	// TokenAccount receives the transfer.
	TokenAccount solana.PublicKey

	// Create is non-nil when TokenAccount is a derived associated account
	// that must be created first. The instruction is idempotent, so two
	// transfers to the same fresh owner both land.
	Create solana.Instruction
}

// NeedsAccount reports whether the transfer must create TokenAccount.
func (r Resolution) NeedsAccount() bool {
	return r.Create != nil
}

// Resolve finds the token account that should receive mint for destination.
// payer funds the associated account when one must be created.
//
//  1. no account at destination: ErrDestinationUnresolvable
//  2. destination is a token account of mint: transfer to it
//  3. destination owns a token account of mint: transfer to that
//  4. destination is not a system wallet: ErrDestinationNotWallet
//  5. otherwise create the associated account for (destination, mint)
func Resolve(ctx context.Context, l Ledger, destination, mint, payer solana.PublicKey) (Resolution, error) {
	info, err := l.GetAccountInfo(ctx, destination)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return Resolution{}, fmt.Errorf("%s: %w", destination, ErrDestinationUnresolvable)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to look up destination: %w", err)
	}

	if accountMint, ok := info.TokenAccountMint(); ok && accountMint.Equals(mint) {
		return Resolution{TokenAccount: destination}, nil
	}

	owned, err := l.GetTokenAccountsOwnedBy(ctx, destination, mint)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to list token accounts of destination: %w", err)
	}
	if len(owned) > 0 {
		return Resolution{TokenAccount: owned[0].Address}, nil
	}

	if !info.Owner.Equals(solana.SystemProgramID) {
		return Resolution{}, fmt.Errorf("%s is owned by %s: %w", destination, info.Owner, ErrDestinationNotWallet)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(destination, mint)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to derive associated account: %w", err)
	}
	return Resolution{
		TokenAccount: ata,
		Create:       createAssociatedAccountIdempotent(payer, ata, destination, mint),
	}, nil
}

// createAssociatedAccountIdempotent builds the associated token program's
// CreateIdempotent instruction, which succeeds when the account already
// exists with the expected owner and mint.
func createAssociatedAccountIdempotent(payer, ata, owner, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.Meta(payer).WRITE().SIGNER(),
			solana.Meta(ata).WRITE(),
			solana.Meta(owner),
			solana.Meta(mint),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.TokenProgramID),
		},
		[]byte{ledger.AssociatedTokenCreateIdempotentInstruction},
	)
}
