package txengine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

func mustDecimal(t *testing.T, s string) money.Decimal {
	t.Helper()
	d, err := money.New(s)
	require.NoError(t, err)
	return d
}

func TestQuoteMatchesScenarioS1(t *testing.T) {
	sourceAmount := mustDecimal(t, "1000")
	rate := mustDecimal(t, "0.92")
	marginRate := mustDecimal(t, "0.001")

	targetAmount, marginAmount := quote(sourceAmount, rate, marginRate)

	require.Equal(t, "919.080000", targetAmount.String())
	require.Equal(t, "0.920000", marginAmount.String())
}

func TestQuoteRevenueIsMarginTimesBaseTarget(t *testing.T) {
	sourceAmount := mustDecimal(t, "400")
	rate := mustDecimal(t, "1.0")
	marginRate := mustDecimal(t, "0.001")

	targetAmount, marginAmount := quote(sourceAmount, rate, marginRate)

	require.Equal(t, "399.600000", targetAmount.String())
	require.Equal(t, "0.400000", marginAmount.String())
}
