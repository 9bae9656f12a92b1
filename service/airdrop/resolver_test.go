package airdrop

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/brojonat/soldrop/service/solana"
)

func TestResolve(t *testing.T) {
	ctx := context.Background()
	mint := newKey()
	payer := newKey()

	t.Run("no account at destination", func(t *testing.T) {
		l := newFakeLedger()
		_, err := Resolve(ctx, l, newKey(), mint, payer)
		assert.ErrorIs(t, err, ErrDestinationUnresolvable)
	})

	t.Run("destination is a token account of the mint", func(t *testing.T) {
		l := newFakeLedger()
		owner := newKey()
		ata := l.addHolder(owner, mint)

		res, err := Resolve(ctx, l, ata, mint, payer)
		require.NoError(t, err)
		assert.Equal(t, ata, res.TokenAccount)
		assert.False(t, res.NeedsAccount())
	})

	t.Run("destination owns a token account of the mint", func(t *testing.T) {
		l := newFakeLedger()
		owner := newKey()
		ata := l.addHolder(owner, mint)

		res, err := Resolve(ctx, l, owner, mint, payer)
		require.NoError(t, err)
		assert.Equal(t, ata, res.TokenAccount)
		assert.False(t, res.NeedsAccount())
	})

	t.Run("destination holds only other mints", func(t *testing.T) {
		l := newFakeLedger()
		owner := newKey()
		l.addHolder(owner, newKey())

		res, err := Resolve(ctx, l, owner, mint, payer)
		require.NoError(t, err)
		assert.True(t, res.NeedsAccount())

		want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
		require.NoError(t, err)
		assert.Equal(t, want, res.TokenAccount)

		tx, err := solana.NewTransaction([]solana.Instruction{res.Create}, solana.Hash{}, solana.TransactionPayer(payer))
		require.NoError(t, err)
		summaries, err := ledger.InspectInstructions(tx)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, ledger.KindCreateAssociatedAccount, summaries[0].Kind)
		assert.Equal(t, payer.String(), summaries[0].Payer)
		assert.Equal(t, want.String(), summaries[0].Destination)
		assert.Equal(t, owner.String(), summaries[0].Authority)
		assert.Equal(t, mint.String(), summaries[0].Mint)

		data, err := res.Create.Data()
		require.NoError(t, err)
		assert.Equal(t, []byte{ledger.AssociatedTokenCreateIdempotentInstruction}, data)
	})

	t.Run("destination is a token account of another mint", func(t *testing.T) {
		l := newFakeLedger()
		other := l.addHolder(newKey(), newKey())

		_, err := Resolve(ctx, l, other, mint, payer)
		assert.ErrorIs(t, err, ErrDestinationNotWallet)
		reason, skip := skipReason(err)
		assert.True(t, skip)
		assert.Equal(t, ErrDestinationNotWallet.Error(), reason)
	})

	t.Run("program account that holds the mint still resolves", func(t *testing.T) {
		l := newFakeLedger()
		vault := l.addHolder(newKey(), mint)
		pda := newKey()
		l.accounts[pda] = &ledger.AccountInfo{Address: pda, Owner: newKey()}
		l.owned[pda] = []ledger.TokenAccount{{Address: vault, Mint: mint, Owner: pda}}

		res, err := Resolve(ctx, l, pda, mint, payer)
		require.NoError(t, err)
		assert.Equal(t, vault, res.TokenAccount)
		assert.False(t, res.NeedsAccount())
	})

	t.Run("lookup failure is not unresolvable", func(t *testing.T) {
		l := newFakeLedger()
		dest := newKey()
		l.lookupErr[dest] = errors.New("rpc timeout")

		_, err := Resolve(ctx, l, dest, mint, payer)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDestinationUnresolvable)
	})
}
