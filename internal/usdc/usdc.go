// Package usdc converts between decimal stablecoin amounts and base units.
//
// Escrow and milestone amounts travel as decimal strings of a 6-decimal
// stablecoin. Arithmetic is done on base units (1 USDC = 1,000,000) held in
// 256-bit integers, which covers the contract's u128 balances.
package usdc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

const Decimals = 6

var (
	ErrEmpty     = errors.New("usdc: empty amount")
	ErrInvalid   = errors.New("usdc: invalid amount")
	ErrPrecision = errors.New("usdc: more than 6 decimal places")
	ErrOverflow  = errors.New("usdc: amount overflows")
)

// Parse converts a decimal string ("1.50", "1,000", "250") to base units.
// Thousands separators are accepted; signs, exponents and more than six
// fractional digits are not.
func Parse(s string) (*uint256.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil, ErrEmpty
	}

	whole, frac, found := strings.Cut(s, ".")
	if found && frac == "" && whole == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if whole == "" {
		whole = "0"
	}
	if !digits(whole) || (frac != "" && !digits(frac)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	if len(frac) > Decimals {
		if strings.Trim(frac[Decimals:], "0") != "" {
			return nil, fmt.Errorf("%w: %q", ErrPrecision, s)
		}
		frac = frac[:Decimals]
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	units := strings.TrimLeft(whole+frac, "0")
	if units == "" {
		return new(uint256.Int), nil
	}
	n, err := uint256.FromDecimal(units)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return n, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) *uint256.Int {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Format renders base units with exactly six decimals ("1.500000").
func Format(amount *uint256.Int) string {
	if amount == nil {
		return "0.000000"
	}
	s := amount.Dec()
	if len(s) <= Decimals {
		s = strings.Repeat("0", Decimals-len(s)+1) + s
	}
	point := len(s) - Decimals
	return s[:point] + "." + s[point:]
}

// Sum adds amounts, failing on the first invalid one or on overflow.
func Sum(amounts ...string) (*uint256.Int, error) {
	total := new(uint256.Int)
	for i, a := range amounts {
		n, err := Parse(a)
		if err != nil {
			return nil, fmt.Errorf("amount %d: %w", i, err)
		}
		if _, overflow := total.AddOverflow(total, n); overflow {
			return nil, ErrOverflow
		}
	}
	return total, nil
}

// Equal reports whether two decimal amounts denote the same value.
func Equal(a, b string) (bool, error) {
	x, err := Parse(a)
	if err != nil {
		return false, err
	}
	y, err := Parse(b)
	if err != nil {
		return false, err
	}
	return x.Eq(y), nil
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
