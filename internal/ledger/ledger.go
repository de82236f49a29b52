// Package ledger is the liquidity pool ledger: the authoritative balance
// store. Every mutating operation runs inside its own transaction with
// row-level locks acquired in ascending currency-code order, so two
// transactions touching the same pair of pools can never deadlock against
// each other.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/withobsrvr/fx-transfer-engine/internal/apperr"
	"github.com/withobsrvr/fx-transfer-engine/internal/fxrate"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
	"github.com/withobsrvr/fx-transfer-engine/internal/store"
)

// Pool is the in-memory view of one liquidity_pools row, materialized for
// the duration of a single transaction.
type Pool struct {
	Currency        string
	Balance         money.Decimal
	ReservedBalance money.Decimal
	UpdatedAt       time.Time
}

// Available returns balance minus reserved_balance.
func (p Pool) Available() money.Decimal {
	return p.Balance.Sub(p.ReservedBalance)
}

// Metrics is the result of pool_metrics for one currency over a window.
type Metrics struct {
	Currency        string
	OutgoingVolume  money.Decimal
	IncomingVolume  money.Decimal
	NetFlow         money.Decimal
	UtilizationRate money.Decimal
	Balance         money.Decimal
}

// Ledger is the liquidity pool ledger.
type Ledger struct {
	db  store.Querier
	fx  *fxrate.Store
	log zerolog.Logger
}

// New builds a Ledger over db, consulting fx for internal_rebalance rates.
func New(db store.Querier, fx *fxrate.Store, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, fx: fx, log: log}
}

func poolFromRow(r store.PoolRow) Pool {
	return Pool{Currency: r.Currency, Balance: r.Balance, ReservedBalance: r.ReservedBalance, UpdatedAt: r.UpdatedAt}
}

func poolToRow(p Pool) store.PoolRow {
	return store.PoolRow{Currency: p.Currency, Balance: p.Balance, ReservedBalance: p.ReservedBalance, UpdatedAt: p.UpdatedAt}
}

// orderedPair returns a, b sorted ascending by currency code, for
// deterministic lock acquisition order.
func orderedPair(a, b string) (first, second string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// CheckLiquidity reports whether the named pool's available balance covers
// amount. Read-only; no lock held beyond the query.
func (l *Ledger) CheckLiquidity(ctx context.Context, currency string, amount money.Decimal) (bool, error) {
	row, err := l.db.GetPool(ctx, currency)
	if err != nil {
		return false, err
	}
	return poolFromRow(row).Available().GreaterThanOrEqual(amount), nil
}

// ReserveFunds atomically checks and holds amount against the named pool's
// available balance.
func (l *Ledger) ReserveFunds(ctx context.Context, currency string, amount money.Decimal) error {
	return l.db.WithTx(ctx, func(ctx context.Context, tx store.Querier) error {
		row, err := tx.LockPool(ctx, currency)
		if err != nil {
			return err
		}
		p := poolFromRow(row)
		if p.Available().LessThan(amount) {
			return apperr.New(apperr.InsufficientLiquidity,
				fmt.Sprintf("pool %s: available %s < requested %s", currency, p.Available(), amount))
		}
		p.ReservedBalance = p.ReservedBalance.Add(amount)
		return tx.WritePool(ctx, poolToRow(p))
	})
}

// ReleaseReservation decrements reserved_balance by amount, failing
// InvariantViolation if that would drive it negative.
func (l *Ledger) ReleaseReservation(ctx context.Context, currency string, amount money.Decimal) error {
	return l.db.WithTx(ctx, func(ctx context.Context, tx store.Querier) error {
		row, err := tx.LockPool(ctx, currency)
		if err != nil {
			return err
		}
		p := poolFromRow(row)
		newReserved := p.ReservedBalance.Sub(amount)
		if newReserved.IsNegative() {
			return apperr.New(apperr.InvariantViolation,
				fmt.Sprintf("pool %s: release of %s would drive reserved_balance negative", currency, amount))
		}
		p.ReservedBalance = newReserved
		return tx.WritePool(ctx, poolToRow(p))
	})
}

// SettleTransaction applies the two-sided, target-pool-pays-beneficiary
// settlement model: the target pool releases its reservation and pays the
// beneficiary out of its own balance; the source pool receives the sender's
// deposit. Both pools are locked in ascending currency-code order.
func (l *Ledger) SettleTransaction(ctx context.Context, sourceCurrency, targetCurrency string, sourceAmount, targetAmount money.Decimal) error {
	first, second := orderedPair(sourceCurrency, targetCurrency)

	return l.db.WithTx(ctx, func(ctx context.Context, tx store.Querier) error {
		locked := map[string]Pool{}
		for _, cur := range []string{first, second} {
			row, err := tx.LockPool(ctx, cur)
			if err != nil {
				return err
			}
			locked[cur] = poolFromRow(row)
		}

		source := locked[sourceCurrency]
		target := locked[targetCurrency]

		target.ReservedBalance = target.ReservedBalance.Sub(targetAmount)
		target.Balance = target.Balance.Sub(targetAmount)
		source.Balance = source.Balance.Add(sourceAmount)

		if target.Balance.IsNegative() || target.ReservedBalance.IsNegative() || source.Balance.IsNegative() {
			return apperr.New(apperr.InvariantViolation, "settlement would violate a non-negative balance invariant")
		}

		if err := tx.WritePool(ctx, poolToRow(source)); err != nil {
			return err
		}
		return tx.WritePool(ctx, poolToRow(target))
	})
}

// InternalRebalance moves amount (in from_currency units) from fromCurrency
// to toCurrency, converting at the latest from->to rate with no margin.
// Insufficient balance is a silent no-op (logged), per the rebalancer's
// failure policy.
func (l *Ledger) InternalRebalance(ctx context.Context, fromCurrency, toCurrency string, amount money.Decimal) error {
	rate, err := l.fx.LatestRate(ctx, fromCurrency, toCurrency)
	if err != nil {
		return err
	}
	converted := amount.Mul(rate.Rate)

	first, second := orderedPair(fromCurrency, toCurrency)

	return l.db.WithTx(ctx, func(ctx context.Context, tx store.Querier) error {
		locked := map[string]Pool{}
		for _, cur := range []string{first, second} {
			row, err := tx.LockPool(ctx, cur)
			if err != nil {
				return err
			}
			locked[cur] = poolFromRow(row)
		}

		from := locked[fromCurrency]
		to := locked[toCurrency]

		if from.Balance.LessThan(amount) {
			l.log.Info().
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Str("amount", amount.String()).
				Msg("internal rebalance skipped: insufficient donor balance")
			return nil
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(converted)

		if err := tx.WritePool(ctx, poolToRow(from)); err != nil {
			return err
		}
		return tx.WritePool(ctx, poolToRow(to))
	})
}

// PoolMetrics computes outgoing/incoming volume, net flow, and utilization
// rate for currency over the trailing window.
func (l *Ledger) PoolMetrics(ctx context.Context, currency string, window time.Duration) (Metrics, error) {
	since := time.Now().Add(-window)

	outgoing, err := l.db.SumSourceVolumeSince(ctx, currency, since)
	if err != nil {
		return Metrics{}, err
	}
	incoming, err := l.db.SumTargetVolumeSince(ctx, currency, since)
	if err != nil {
		return Metrics{}, err
	}
	row, err := l.db.GetPool(ctx, currency)
	if err != nil {
		return Metrics{}, err
	}

	utilization := outgoing.DivRate(row.Balance)

	return Metrics{
		Currency:        currency,
		OutgoingVolume:  outgoing,
		IncomingVolume:  incoming,
		NetFlow:         incoming.Sub(outgoing),
		UtilizationRate: utilization,
		Balance:         row.Balance,
	}, nil
}

// FXRateForRebalance returns the latest from->to rate (units of to per unit
// of from), for the rebalancer's no-margin conversion.
func (l *Ledger) FXRateForRebalance(ctx context.Context, from, to string) (money.Decimal, error) {
	rate, err := l.fx.LatestRate(ctx, from, to)
	if err != nil {
		return money.Decimal{}, err
	}
	return rate.Rate, nil
}

// ListPools returns every pool currency in ascending code order, the
// iteration order the rebalancer requires for deterministic behavior.
func (l *Ledger) ListPools(ctx context.Context) ([]string, error) {
	return l.db.ListPoolCurrencies(ctx)
}
