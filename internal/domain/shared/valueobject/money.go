package valueobject

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
)

// DefaultCurrency is the default currency for the system
const DefaultCurrency = EUR

// zeroDecimalCurrencies have no minor unit subdivision
var zeroDecimalCurrencies = map[Currency]bool{
	JPY: true,
}

// ParseCurrency normalizes a three-letter currency code
func ParseCurrency(code string) (Currency, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return DefaultCurrency, nil
	}
	if len(c) != 3 {
		return "", fmt.Errorf("invalid currency code %q", code)
	}
	return Currency(c), nil
}

// Exponent returns the number of minor-unit digits of the currency
func (c Currency) Exponent() int32 {
	if zeroDecimalCurrencies[c] {
		return 0
	}
	return 2
}

// Money is an immutable amount in integer minor units (cents).
// Arithmetic never leaves the integer domain.
type Money struct {
	minor    int64
	currency Currency
}

// NewMoney creates Money from minor units
func NewMoney(minor int64, currency Currency) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency cannot be empty")
	}
	return Money{minor: minor, currency: currency}, nil
}

// MustMoney is NewMoney for constants; it panics on an empty currency
func MustMoney(minor int64, currency Currency) Money {
	m, err := NewMoney(minor, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the currency
func Zero(currency Currency) Money {
	return Money{currency: currency}
}

// Minor returns the amount in minor units
func (m Money) Minor() int64 {
	return m.minor
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.minor == 0
}

// IsPositive returns true if the amount is positive
func (m Money) IsPositive() bool {
	return m.minor > 0
}

// IsNegative returns true if the amount is negative
func (m Money) IsNegative() bool {
	return m.minor < 0
}

// Add returns the sum. Currencies must match and the result must not overflow.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	if (other.minor > 0 && m.minor > math.MaxInt64-other.minor) ||
		(other.minor < 0 && m.minor < math.MinInt64-other.minor) {
		return Money{}, errors.New("money overflow")
	}
	return Money{minor: m.minor + other.minor, currency: m.currency}, nil
}

// Subtract returns m - other. Currencies must match.
func (m Money) Subtract(other Money) (Money, error) {
	return m.Add(Money{minor: -other.minor, currency: other.currency})
}

// Min returns the smaller amount. Currencies must match.
func (m Money) Min(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	if other.minor < m.minor {
		return other, nil
	}
	return m, nil
}

// Decimal returns the amount in major units as an exact decimal
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.minor, -m.currency.Exponent())
}

// String renders the amount in major units, e.g. "50.00 EUR"
func (m Money) String() string {
	return m.Decimal().StringFixed(m.currency.Exponent()) + " " + string(m.currency)
}

// FormatMinor renders a minor-unit amount in major units without the code, e.g. "50.00"
func FormatMinor(minor int64, currency Currency) string {
	return decimal.New(minor, -currency.Exponent()).StringFixed(currency.Exponent())
}
