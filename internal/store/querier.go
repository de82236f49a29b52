package store

import (
	"context"
	"time"

	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

// PoolRow is one liquidity_pools row.
type PoolRow struct {
	Currency        string
	Balance         money.Decimal
	ReservedBalance money.Decimal
	UpdatedAt       time.Time
}

// RateRow is one fx_rates observation.
type RateRow struct {
	ID        int64
	Pair      string
	Rate      money.Decimal
	Timestamp time.Time
}

// TransactionRow is one transactions row.
type TransactionRow struct {
	ID             int64
	SourceCurrency string
	TargetCurrency string
	SourceAmount   money.Decimal
	TargetAmount   money.Decimal
	FxRate         money.Decimal
	Margin         money.Decimal
	Revenue        money.Decimal
	Status         string
	CreatedAt      time.Time
	SettledAt      *time.Time
}

// Querier is the storage seam the ledger, fxrate, and txengine packages are
// written against, instead of raw SQL. PgQuerier runs these operations
// against Postgres; Fake runs them against in-memory maps, so the business
// logic above this package can be exercised in tests without a live
// database.
type Querier interface {
	// LockPool loads a pool row for update: under PgQuerier this takes a
	// row lock that holds until the enclosing WithTx commits or rolls
	// back; under Fake the lock is the store-wide mutex WithTx holds for
	// the duration of its callback.
	LockPool(ctx context.Context, currency string) (PoolRow, error)
	WritePool(ctx context.Context, p PoolRow) error
	// GetPool is a plain, non-locking read of a pool's current row.
	GetPool(ctx context.Context, currency string) (PoolRow, error)
	ListPoolCurrencies(ctx context.Context) ([]string, error)

	RecordRate(ctx context.Context, pair string, rate money.Decimal, timestamp time.Time) (int64, error)
	LatestRateForPair(ctx context.Context, pair string) (RateRow, error)

	InsertTransaction(ctx context.Context, t TransactionRow) (int64, error)
	GetTransaction(ctx context.Context, id int64) (TransactionRow, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status string, settledAt *time.Time) error
	SumSourceVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error)
	SumTargetVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error)

	// WithTx runs fn against a Querier scoped to a single transaction: the
	// pools fn locks stay locked until fn returns, and any error fn
	// returns rolls back every write fn made.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error
}
