// Package money implements fixed-point currency arithmetic on integer minor
// units. Values never pass through floating point inside the engine; Float64
// exists only for presentation code.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrInvalidAmount is returned when a negative amount, quantity or percent
	// is supplied where a non-negative value is required, or on overflow.
	ErrInvalidAmount = errors.New("money: invalid amount")
	// ErrCurrencyMismatch is returned when combining different currencies.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	// ErrInvalidCurrency is returned for codes that are not ISO-4217.
	ErrInvalidCurrency = errors.New("money: invalid currency")
)

var hundred = decimal.NewFromInt(100)

// Money is an amount in minor units tagged with its currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New builds a Money value. The currency code is upper-cased.
func New(amount int64, code string) Money {
	return Money{Amount: amount, Currency: strings.ToUpper(code)}
}

// Zero returns a zero amount in the given currency.
func Zero(code string) Money {
	return New(0, code)
}

// ParseCurrency validates an ISO-4217 code and returns its canonical form.
func ParseCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Multiply returns amount × quantity. Both operands must be non-negative.
func (m Money) Multiply(quantity int64) (Money, error) {
	if m.Amount < 0 || quantity < 0 {
		return Money{}, fmt.Errorf("%w: multiply %d by %d", ErrInvalidAmount, m.Amount, quantity)
	}
	if quantity != 0 && m.Amount > math.MaxInt64/quantity {
		return Money{}, fmt.Errorf("%w: overflow multiplying %d by %d", ErrInvalidAmount, m.Amount, quantity)
	}
	return Money{Amount: m.Amount * quantity, Currency: m.Currency}, nil
}

// ApplyPercent returns pct percent of the amount, rounded half-up to the
// nearest minor unit. Rounding happens here and nowhere earlier.
func (m Money) ApplyPercent(pct decimal.Decimal) (Money, error) {
	if m.Amount < 0 {
		return Money{}, fmt.Errorf("%w: negative base %d", ErrInvalidAmount, m.Amount)
	}
	if pct.IsNegative() {
		return Money{}, fmt.Errorf("%w: negative percent %s", ErrInvalidAmount, pct.String())
	}
	raw := decimal.NewFromInt(m.Amount).Mul(pct).Div(hundred)
	rounded := raw.Round(0)
	if rounded.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Money{}, fmt.Errorf("%w: overflow applying %s%%", ErrInvalidAmount, pct.String())
	}
	return Money{Amount: rounded.IntPart(), Currency: m.Currency}, nil
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	if (other.Amount > 0 && m.Amount > math.MaxInt64-other.Amount) ||
		(other.Amount < 0 && m.Amount < math.MinInt64-other.Amount) {
		return Money{}, fmt.Errorf("%w: overflow adding %d and %d", ErrInvalidAmount, m.Amount, other.Amount)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m − other.
func (m Money) Sub(other Money) (Money, error) {
	if other.Amount == math.MinInt64 {
		return Money{}, fmt.Errorf("%w: overflow subtracting %d", ErrInvalidAmount, other.Amount)
	}
	return m.Add(Money{Amount: -other.Amount, Currency: other.Currency})
}

// Sum adds the amounts exactly. An empty list yields zero in code.
func Sum(code string, amounts ...Money) (Money, error) {
	total := Zero(code)
	for _, amount := range amounts {
		next, err := total.Add(amount)
		if err != nil {
			return Money{}, err
		}
		total = next
	}
	return total, nil
}

// Float64 converts to a major-unit float for display. Never use the result in
// calculations.
func (m Money) Float64() float64 {
	return float64(m.Amount) / 100
}

// String renders the amount with two decimals and the currency code.
func (m Money) String() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, m.Currency)
}
