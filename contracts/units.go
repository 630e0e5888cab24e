package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxUint256 returns 2^256-1, the conventional "infinite" allowance.
func MaxUint256() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}

// ParseUnits converts a decimal string into base units, rejecting values with
// more fractional digits than decimals. Exponent notation is rejected, as
// ethers parseUnits does.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("contracts: empty amount")
	}
	if strings.ContainsAny(trimmed, "eE") {
		return nil, fmt.Errorf("contracts: amount %q uses exponent notation", value)
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("contracts: parse amount %q: %w", value, err)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("contracts: negative amount %q", value)
	}
	scaled := parsed.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("contracts: amount %q has more than %d decimals", value, decimals)
	}
	out := scaled.BigInt()
	if out.BitLen() > 256 {
		return nil, fmt.Errorf("contracts: amount %q overflows uint256", value)
	}
	return out, nil
}

// MustParseUnits is ParseUnits for literals.
func MustParseUnits(value string, decimals uint8) *big.Int {
	out, err := ParseUnits(value, decimals)
	if err != nil {
		panic(err)
	}
	return out
}

// FormatUnits renders base units as a decimal string the way ethers does,
// keeping at least one fractional digit ("1000000.0").
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		value = new(big.Int)
	}
	text := decimal.NewFromBigInt(value, -int32(decimals)).String()
	if !strings.Contains(text, ".") {
		text += ".0"
	}
	return text
}
