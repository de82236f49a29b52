package rebalancer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/withobsrvr/fx-transfer-engine/internal/fxrate"
	"github.com/withobsrvr/fx-transfer-engine/internal/ledger"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
	"github.com/withobsrvr/fx-transfer-engine/internal/store"
)

// TestRebalanceCycleConvertsAtBidirectionallyDerivedRate drives one
// rebalance tick against an in-memory store: USD is over-utilized with
// EUR under-utilized and donating, but only the USD/EUR rate has been
// posted. The cycle must still convert the EUR->USD leg by inverting it.
func TestRebalanceCycleConvertsAtBidirectionallyDerivedRate(t *testing.T) {
	ctx := context.Background()
	db := store.NewFake()
	isSupported := func(string) bool { return true }

	usdBalance, err := money.New("10000")
	require.NoError(t, err)
	eurBalance, err := money.New("10000")
	require.NoError(t, err)
	db.SeedPool("USD", usdBalance)
	db.SeedPool("EUR", eurBalance)

	usdOutgoing, err := money.New("8000")
	require.NoError(t, err)
	eurOutgoing, err := money.New("1000")
	require.NoError(t, err)
	zero := money.Zero
	now := time.Now()

	_, err = db.InsertTransaction(ctx, store.TransactionRow{
		SourceCurrency: "USD", TargetCurrency: "JPY",
		SourceAmount: usdOutgoing, TargetAmount: zero,
		FxRate: zero, Margin: zero, Revenue: zero,
		Status: "COMPLETED", CreatedAt: now,
	})
	require.NoError(t, err)
	_, err = db.InsertTransaction(ctx, store.TransactionRow{
		SourceCurrency: "EUR", TargetCurrency: "JPY",
		SourceAmount: eurOutgoing, TargetAmount: zero,
		FxRate: zero, Margin: zero, Revenue: zero,
		Status: "COMPLETED", CreatedAt: now,
	})
	require.NoError(t, err)

	fx := fxrate.New(db, isSupported, zerolog.Nop())
	_, err = fx.RecordRate(ctx, "USD/EUR", "0.9", now)
	require.NoError(t, err)

	lg := ledger.New(db, fx, zerolog.Nop())
	r := New(lg, Thresholds{
		HighUtilization:  mustDecimal(t, "0.7"),
		LowUtilization:   mustDecimal(t, "0.3"),
		BufferMultiplier: mustDecimal(t, "1.5"),
		MetricsWindow:    time.Hour,
	}, zerolog.Nop())

	require.NoError(t, r.runCycle(ctx))

	eurAfter, err := db.GetPool(ctx, "EUR")
	require.NoError(t, err)
	usdAfter, err := db.GetPool(ctx, "USD")
	require.NoError(t, err)

	require.Equal(t, "5000.000000", eurAfter.Balance.String())
	require.Equal(t, "15555.555000", usdAfter.Balance.String())
}
