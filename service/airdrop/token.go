package airdrop

import (
	"context"
	"encoding/json"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	ledger "github.com/brojonat/soldrop/service/solana"
)

// SelectedToken is the token distributed by a run.
type SelectedToken struct {
	Mint          solana.PublicKey
	SourceAccount solana.PublicKey // sender's token account for Mint
	Decimals      uint8
	Balance       uint64 // base units held by SourceAccount
}

// NewSelectedToken builds a SelectedToken from a wallet holding.
func NewSelectedToken(h ledger.TokenHolding) SelectedToken {
	return SelectedToken{
		Mint:          h.Mint,
		SourceAccount: h.Address,
		Decimals:      h.Decimals,
		Balance:       h.Amount,
	}
}

// TokenSelector finds the sender's account for a mint.
type TokenSelector interface {
	SelectToken(ctx context.Context, owner, mint solana.PublicKey) (*ledger.TokenHolding, error)
}

// SelectToken looks up owner's holding of mint.
func SelectToken(ctx context.Context, s TokenSelector, owner, mint solana.PublicKey) (SelectedToken, error) {
	h, err := s.SelectToken(ctx, owner, mint)
	if err != nil {
		return SelectedToken{}, err
	}
	return NewSelectedToken(*h), nil
}

// AvailableBalance is the human-readable quantity available to distribute.
func (t SelectedToken) AvailableBalance() decimal.Decimal {
	return FromBaseUnits(t.Balance, t.Decimals)
}

func (t SelectedToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mint             string `json:"mint"`
		SourceAccount    string `json:"source_account"`
		Decimals         uint8  `json:"decimals"`
		Balance          uint64 `json:"balance"`
		AvailableBalance string `json:"available_balance"`
	}{
		Mint:             t.Mint.String(),
		SourceAccount:    t.SourceAccount.String(),
		Decimals:         t.Decimals,
		Balance:          t.Balance,
		AvailableBalance: t.AvailableBalance().String(),
	})
}
