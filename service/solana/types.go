package solana

import (
	"encoding/binary"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrAccountNotFound is returned when an address has no account on the ledger.
var ErrAccountNotFound = errors.New("account not found")

// SPL token account and mint layouts.
const (
	TokenAccountSize = 165
	MintAccountSize  = 82

	mintDecimalsOffset = 44
)

// DefaultFeePerSignature is used when the node cannot price a message.
const DefaultFeePerSignature uint64 = 5000

// AccountInfo is the part of an on-chain account the distribution needs.
// This is our domain model, independent of the RPC response format.
type AccountInfo struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey // owning program
	Lamports uint64
	Data     []byte
}

// TokenAccountMint returns the mint when the account is an SPL token account.
func (a *AccountInfo) TokenAccountMint() (solana.PublicKey, bool) {
	if a == nil || !a.Owner.Equals(solana.TokenProgramID) || len(a.Data) != TokenAccountSize {
		return solana.PublicKey{}, false
	}
	return solana.PublicKeyFromBytes(a.Data[0:32]), true
}

// TokenAccount is an SPL token account held by some owner.
type TokenAccount struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64 // base units
}

// TokenHolding is a TokenAccount together with the mint's decimals.
type TokenHolding struct {
	TokenAccount
	Decimals uint8
}

// decodeTokenAccount reads mint, owner and amount from the SPL layout:
// [0..32] mint, [32..64] owner, [64..72] amount (u64 LE).
func decodeTokenAccount(address solana.PublicKey, data []byte) (TokenAccount, error) {
	if len(data) != TokenAccountSize {
		return TokenAccount{}, errors.New("not a token account")
	}
	return TokenAccount{
		Address: address,
		Mint:    solana.PublicKeyFromBytes(data[0:32]),
		Owner:   solana.PublicKeyFromBytes(data[32:64]),
		Amount:  binary.LittleEndian.Uint64(data[64:72]),
	}, nil
}

func decodeMintDecimals(data []byte) (uint8, error) {
	if len(data) != MintAccountSize {
		return 0, errors.New("not a mint account")
	}
	return data[mintDecimalsOffset], nil
}
