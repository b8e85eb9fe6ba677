package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestBalancedWithinTolerance(t *testing.T) {
	cases := []struct {
		name   string
		debit  string
		credit string
		want   bool
	}{
		{"exact", "100.00", "100.00", true},
		{"one cent apart", "100.00", "100.01", true},
		{"one cent apart reversed", "100.01", "100.00", true},
		{"two cents apart", "100.00", "100.02", false},
		{"large drift", "1500.00", "1499.50", false},
		{"both zero", "0", "0", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Balanced(money(tc.debit), money(tc.credit)))
		})
	}
}

func TestPercentRoundsToCents(t *testing.T) {
	cases := []struct {
		base string
		rate string
		want string
	}{
		{"5000.00", "2.5", "125.00"},
		{"1000.00", "1.5", "15.00"},
		{"333.33", "3", "10.00"},
		{"100.00", "0", "0.00"},
		{"999.99", "2.5", "25.00"},
	}
	for _, tc := range cases {
		got := Percent(money(tc.base), money(tc.rate))
		require.True(t, got.Equal(money(tc.want)), "Percent(%s, %s) = %s, want %s", tc.base, tc.rate, got, tc.want)
	}
}
