package airdrop

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{name: "whole", input: "10", decimals: 6, want: "10"},
		{name: "fraction", input: "1.5", decimals: 6, want: "1.5"},
		{name: "max precision", input: "0.000001", decimals: 6, want: "0.000001"},
		{name: "too precise", input: "0.0000001", decimals: 6, wantErr: true},
		{name: "zero", input: "0", decimals: 6, wantErr: true},
		{name: "negative", input: "-1", decimals: 6, wantErr: true},
		{name: "not a number", input: "ten", decimals: 6, wantErr: true},
		{name: "empty", input: "", decimals: 6, wantErr: true},
		{name: "zero decimals", input: "3", decimals: 0, want: "3"},
		{name: "fraction with zero decimals", input: "3.5", decimals: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.decimals)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestSumAmounts_Exact(t *testing.T) {
	a := decimal.RequireFromString("0.1")
	b := decimal.RequireFromString("0.2")

	total := SumAmounts([]decimal.Decimal{a, b}, 9)
	assert.True(t, total.Equal(decimal.RequireFromString("0.3")), "got %s", total)
}

func TestSumAmounts_OrderIndependent(t *testing.T) {
	values := []string{"0.000001", "1234.5", "0.3", "999999.999999", "7"}
	forward := make([]decimal.Decimal, len(values))
	backward := make([]decimal.Decimal, len(values))
	for i, v := range values {
		forward[i] = decimal.RequireFromString(v)
		backward[len(values)-1-i] = decimal.RequireFromString(v)
	}

	assert.True(t, SumAmounts(forward, 6).Equal(SumAmounts(backward, 6)))
	assert.Equal(t, "1001241.800000", SumAmounts(forward, 6).StringFixed(6))
}

func TestBaseUnits(t *testing.T) {
	units, err := ToBaseUnits(decimal.RequireFromString("1.5"), 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), units)

	assert.Equal(t, "1.5", FromBaseUnits(1_500_000, 6).String())
	assert.Equal(t, "0.000001", FromBaseUnits(1, 6).String())

	_, err = ToBaseUnits(decimal.RequireFromString("18446744073709551616"), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ToBaseUnits(decimal.RequireFromString("0.5"), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
