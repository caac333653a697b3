package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const etherDecimals = 18

var (
	ErrInvalidAmount = errors.New("invalid amount")

	oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(etherDecimals), nil)
)

// ParseEther converts a decimal native-token amount ("0.01") to wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, etherDecimals)
	}
	frac += strings.Repeat("0", etherDecimals-len(frac))

	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return n, nil
}

// FormatEther renders wei as a decimal string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, oneEther)
	s := r.FloatString(etherDecimals)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}

// FormatFixed renders an 18-decimal fixed-point value with the given precision.
func FormatFixed(v *big.Int, decimals int) string {
	if v == nil {
		v = new(big.Int)
	}
	return new(big.Rat).SetFrac(v, oneEther).FloatString(decimals)
}
