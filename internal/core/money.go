// Package core provides money parsing and handling utilities.
//
// Amounts are held as exact minor units (cents). Parsing and formatting go
// through shopspring/decimal so that no float arithmetic touches a balance.
package core

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountTooLarge = errors.New("amount too large")
)

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

const (
	// maxIntegerDigits is the widest integer part that can fit in int64 cents.
	maxIntegerDigits = 17
	// Half-up rounding to cents only looks at the third decimal place.
	keptFractionDigits = 3
)

// Money is an amount in cents. Balances may be negative; parsed user input
// never is.
type Money struct {
	Cents int64
}

// ParseMoney converts a decimal string to Money with half-up rounding on the
// third decimal place.
//
// Only plain digits with an optional single separator are accepted; signs
// other than a leading minus, exponents and grouping are rejected. Dot (12.34)
// and comma (12,34) both act as the decimal separator, so a comma is never
// read as a thousands separator: "1,234" is 1.23.
// Zero is a valid amount; negative values are rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234
//	ParseMoney("12,345") -> 1235 (rounds up)
//	ParseMoney("-1")     -> ErrNegativeAmount
//	ParseMoney("1e3")    -> ErrInvalidAmount
func ParseMoney(s string) (Money, error) {
	m, negative, err := parseCents(s)
	if err != nil {
		return Money{}, err
	}
	if negative && m.Cents != 0 {
		return Money{}, ErrNegativeAmount
	}
	return m, nil
}

// parseCents validates the literal before handing it to decimal so that the
// magnitude is bounded before any rescale happens.
func parseCents(s string) (Money, bool, error) {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}

	intPart, frac := s, ""
	if i := strings.IndexAny(s, ".,"); i >= 0 {
		intPart, frac = s[:i], s[i+1:]
	}
	if (intPart == "" && frac == "") || !allDigits(intPart) || !allDigits(frac) {
		return Money{}, negative, ErrInvalidAmount
	}

	intPart = strings.TrimLeft(intPart, "0")
	if len(intPart) > maxIntegerDigits {
		return Money{}, negative, ErrAmountTooLarge
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(frac) > keptFractionDigits {
		frac = frac[:keptFractionDigits]
	}

	literal := intPart
	if frac != "" {
		literal += "." + frac
	}
	if negative {
		literal = "-" + literal
	}
	d, err := decimal.NewFromString(literal)
	if err != nil {
		return Money{}, negative, ErrInvalidAmount
	}
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return Money{}, negative, ErrAmountTooLarge
	}
	return Money{Cents: cents.IntPart()}, negative, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustParseMoney is ParseMoney for literals; it panics on malformed input.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("core: MustParseMoney(%q): %v", s, err))
	}
	return m
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Add returns m+o, or ErrAmountTooLarge when the sum leaves the int64 range.
func (m Money) Add(o Money) (Money, error) {
	sum := m.Cents + o.Cents
	if (o.Cents > 0 && sum < m.Cents) || (o.Cents < 0 && sum > m.Cents) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: sum}, nil
}

func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON reads the quoted form written by MarshalJSON. Unlike
// ParseMoney it accepts negative amounts, since balances and deltas can be.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	parsed, _, err := parseCents(s[1 : len(s)-1])
	if err != nil {
		return fmt.Errorf("%w: %s", err, s)
	}
	*m = parsed
	return nil
}
