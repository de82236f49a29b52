package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteArithmetic(t *testing.T) {
	sourceAmount, err := New("1000")
	require.NoError(t, err)
	rate, err := New("0.92")
	require.NoError(t, err)
	margin, err := New("0.001")
	require.NoError(t, err)

	baseTarget := sourceAmount.Mul(rate)
	require.Equal(t, "920.000000", baseTarget.String())

	marginAmount := baseTarget.Mul(margin)
	require.Equal(t, "0.920000", marginAmount.String())

	targetAmount := baseTarget.Sub(marginAmount)
	require.Equal(t, "919.080000", targetAmount.String())
}

func TestUtilizationRateZeroBalance(t *testing.T) {
	outgoing := FromInt(100)
	require.True(t, outgoing.DivRate(Zero).IsZero())
}

func TestDecimalRoundTripJSON(t *testing.T) {
	d, err := New("123.456789")
	require.NoError(t, err)
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"123.456789"`, string(b))

	var out Decimal
	require.NoError(t, out.UnmarshalJSON(b))
	require.Equal(t, "123.456789", out.String())
}

func TestInvalidDecimalRejected(t *testing.T) {
	_, err := New("not-a-number")
	require.Error(t, err)
}

func TestMulRoundsHalfEvenOnTies(t *testing.T) {
	// 0.000001 * 0.5 = 0.0000005 exactly: a tie at the 7th digit between
	// 0.000000 (even) and 0.000001 (odd). Half-even rounds down to 0;
	// half-away-from-zero (shopspring's plain Round) would round up to 1.
	a, err := New("0.000001")
	require.NoError(t, err)
	half, err := New("0.5")
	require.NoError(t, err)
	require.Equal(t, "0.000000", a.Mul(half).String())

	// 0.000005 * 0.5 = 0.0000025: a tie between 0.000002 (even) and
	// 0.000003 (odd). Half-even rounds down to the even neighbor.
	b, err := New("0.000005")
	require.NoError(t, err)
	require.Equal(t, "0.000002", b.Mul(half).String())
}
