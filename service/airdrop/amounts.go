package airdrop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a human-entered token amount. It must be positive and
// carry no more fractional digits than the token supports.
func ParseAmount(s string, decimals uint8) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, s)
	}
	if d.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(int32(decimals))) {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, decimals)
	}
	return d, nil
}

// SumAmounts adds amounts, rounding to decimals after every step so the
// total does not depend on input order.
func SumAmounts(amounts []decimal.Decimal, decimals uint8) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a).Round(int32(decimals))
	}
	return total
}

// ToBaseUnits converts a whole-token amount to base units.
func ToBaseUnits(d decimal.Decimal, decimals uint8) (uint64, error) {
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s is finer than %d decimals", ErrInvalidAmount, d, decimals)
	}
	bi := shifted.BigInt()
	if bi.Sign() < 0 || !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows base units", ErrInvalidAmount, d)
	}
	return bi.Uint64(), nil
}

// FromBaseUnits converts base units to whole tokens.
func FromBaseUnits(units uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals))
}
