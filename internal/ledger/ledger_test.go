package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

func TestOrderedPairSortsAscending(t *testing.T) {
	first, second := orderedPair("USD", "EUR")
	require.Equal(t, "EUR", first)
	require.Equal(t, "USD", second)

	first, second = orderedPair("AUD", "GBP")
	require.Equal(t, "AUD", first)
	require.Equal(t, "GBP", second)
}

func TestPoolAvailableIsBalanceMinusReserved(t *testing.T) {
	balance, err := money.New("1000")
	require.NoError(t, err)
	reserved, err := money.New("250")
	require.NoError(t, err)

	p := Pool{Currency: "USD", Balance: balance, ReservedBalance: reserved}
	require.Equal(t, "750.000000", p.Available().String())
}
