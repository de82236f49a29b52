package rebalancer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/withobsrvr/fx-transfer-engine/internal/ledger"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

func mustDecimal(t *testing.T, s string) money.Decimal {
	t.Helper()
	d, err := money.New(s)
	require.NoError(t, err)
	return d
}

func newRebalancer(t *testing.T) *Rebalancer {
	return New(nil, Thresholds{
		HighUtilization:  mustDecimal(t, "0.7"),
		LowUtilization:   mustDecimal(t, "0.3"),
		BufferMultiplier: mustDecimal(t, "1.5"),
	}, zerolog.Nop())
}

func TestIsDeficitOnHighUtilization(t *testing.T) {
	r := newRebalancer(t)
	m := ledger.Metrics{UtilizationRate: mustDecimal(t, "0.8"), NetFlow: mustDecimal(t, "10")}
	require.True(t, r.isDeficit(m))
}

func TestIsDeficitOnNegativeNetFlow(t *testing.T) {
	r := newRebalancer(t)
	m := ledger.Metrics{UtilizationRate: mustDecimal(t, "0.5"), NetFlow: mustDecimal(t, "-1")}
	require.True(t, r.isDeficit(m))
}

func TestIsNotDeficitWithinBand(t *testing.T) {
	r := newRebalancer(t)
	m := ledger.Metrics{UtilizationRate: mustDecimal(t, "0.5"), NetFlow: mustDecimal(t, "5")}
	require.False(t, r.isDeficit(m))
}

func TestIsDonorBelowLowUtilization(t *testing.T) {
	r := newRebalancer(t)
	require.True(t, r.isDonor(ledger.Metrics{UtilizationRate: mustDecimal(t, "0.2")}))
	require.False(t, r.isDonor(ledger.Metrics{UtilizationRate: mustDecimal(t, "0.3")}))
}
