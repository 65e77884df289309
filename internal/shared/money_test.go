package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestWithinTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.01")

	require.True(t, WithinTolerance(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.01"), tol))
	require.True(t, WithinTolerance(decimal.RequireFromString("100.01"), decimal.RequireFromString("100.00"), tol))
	require.False(t, WithinTolerance(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.02"), tol))
}

func TestRoundMoney(t *testing.T) {
	require.Equal(t, "33.33", RoundMoney(decimal.RequireFromString("33.333")).StringFixed(2))
	require.Equal(t, "33.34", RoundMoney(decimal.RequireFromString("33.335")).StringFixed(2))
	require.Equal(t, "-10.00", RoundMoney(decimal.RequireFromString("-9.999")).StringFixed(2))
}

func TestPaymentMethods(t *testing.T) {
	for _, m := range []PaymentMethod{MethodCash, MethodDebit, MethodCredit, MethodPix, MethodStoreCredit} {
		require.True(t, m.Known(), "method %s", m)
	}
	require.False(t, PaymentMethod("CHEQUE").Known())

	require.True(t, MethodPix.Immediate())
	require.False(t, MethodStoreCredit.Immediate())
}
