package valueobject

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	t.Run("creates money with minor units and currency", func(t *testing.T) {
		m, err := NewMoney(10050, EUR)
		require.NoError(t, err)
		assert.Equal(t, EUR, m.Currency())
		assert.Equal(t, int64(10050), m.Minor())
	})

	t.Run("returns error for empty currency", func(t *testing.T) {
		_, err := NewMoney(100, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "currency cannot be empty")
	})
}

func TestMoney_Add(t *testing.T) {
	a := MustMoney(5000, EUR)
	b := MustMoney(3000, EUR)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), sum.Minor())

	_, err = a.Add(MustMoney(1, USD))
	assert.ErrorContains(t, err, "currency mismatch")

	_, err = MustMoney(math.MaxInt64, EUR).Add(MustMoney(1, EUR))
	assert.ErrorContains(t, err, "overflow")
}

func TestMoney_Subtract(t *testing.T) {
	diff, err := MustMoney(5000, EUR).Subtract(MustMoney(6000, EUR))
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), diff.Minor())
	assert.True(t, diff.IsNegative())
}

func TestMoney_Min(t *testing.T) {
	m, err := MustMoney(5000, EUR).Min(MustMoney(3000, EUR))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), m.Minor())
}

func TestMoney_String(t *testing.T) {
	tests := []struct {
		minor    int64
		currency Currency
		want     string
	}{
		{5000, EUR, "50.00 EUR"},
		{1, EUR, "0.01 EUR"},
		{-250, USD, "-2.50 USD"},
		{1200, JPY, "1200 JPY"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, MustMoney(tt.minor, tt.currency).String())
		})
	}
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "60.00", FormatMinor(6000, EUR))
	assert.Equal(t, "0.05", FormatMinor(5, EUR))
	assert.Equal(t, "0", FormatMinor(0, JPY))
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, USD, c)

	c, err = ParseCurrency("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCurrency, c)

	_, err = ParseCurrency("EURO")
	assert.Error(t, err)
}
