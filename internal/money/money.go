// Package money provides an immutable amount-with-currency value.
//
// Domain amounts are decimal major units (rupees). Payment gateways speak in
// minor units (paise); the conversion is an exact multiply/divide by 100.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every amount.
const Scale = 2

var (
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter code")
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

var hundred = decimal.NewFromInt(100)

// Money is a non-negative amount in a single currency. The zero value is not
// usable; build values with New, MustParse or FromMinor.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New validates and rounds amount to Scale digits.
func New(amount decimal.Decimal, currency string) (Money, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if len(cur) != 3 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	if amount.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	return Money{amount: amount.Round(Scale), currency: cur}, nil
}

// Parse builds Money from a decimal string such as "425.00".
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return New(d, currency)
}

// MustParse is Parse for constants and tests. It panics on bad input.
func MustParse(amount, currency string) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinor converts gateway minor units (paise) into Money.
func FromMinor(minor int64, currency string) (Money, error) {
	return New(decimal.NewFromInt(minor).Div(hundred), currency)
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }
func (m Money) IsPositive() bool        { return m.amount.IsPositive() }

// Minor converts to gateway minor units. Amounts are kept at Scale 2, so the
// result is exact.
func (m Money) Minor() int64 {
	return m.amount.Mul(hundred).Round(0).IntPart()
}

// Add returns m+o. Both must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub returns m-o. The result must not be negative.
func (m Money) Sub(o Money) (Money, error) {
	if m.currency != o.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return New(m.amount.Sub(o.amount), m.currency)
}

// Percent returns pct percent of m, rounded half-up to Scale.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(pct).Div(hundred).Round(Scale), currency: m.currency}
}

// Split deducts a fee of pct percent and returns (fee, remainder). fee+remainder
// always equals m exactly.
func (m Money) Split(pct decimal.Decimal) (fee, rest Money) {
	fee = m.Percent(pct)
	rest = Money{amount: m.amount.Sub(fee.amount), currency: m.currency}
	return fee, rest
}

// Mul scales m by factor, rounding to Scale.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor).Round(Scale), currency: m.currency}
}

func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

func (m Money) GreaterThan(o Money) bool {
	return m.amount.GreaterThan(o.amount)
}

func (m Money) String() string {
	return m.amount.StringFixed(Scale) + " " + m.currency
}
