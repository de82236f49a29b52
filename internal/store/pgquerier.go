package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/withobsrvr/fx-transfer-engine/internal/apperr"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

// txBeginner is the subset of *pgxpool.Pool PgQuerier needs to start a
// transaction. Satisfied by *Pool.
type txBeginner interface {
	DB
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgQuerier implements Querier against Postgres: one method per query, rows
// scanned by hand, same as the rest of this codebase.
type PgQuerier struct {
	db DB
}

// NewPgQuerier wraps db (either *Pool or a pgx.Tx) as a Querier.
func NewPgQuerier(db DB) *PgQuerier {
	return &PgQuerier{db: db}
}

func (q *PgQuerier) LockPool(ctx context.Context, currency string) (PoolRow, error) {
	var p PoolRow
	err := q.db.QueryRow(ctx, `
		SELECT currency, balance, reserved_balance, updated_at
		FROM liquidity_pools
		WHERE currency = $1
		FOR UPDATE`,
		currency).Scan(&p.Currency, &p.Balance, &p.ReservedBalance, &p.UpdatedAt)
	if err != nil {
		return PoolRow{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("pool %s not found", currency), err)
	}
	return p, nil
}

func (q *PgQuerier) WritePool(ctx context.Context, p PoolRow) error {
	_, err := q.db.Exec(ctx, `
		UPDATE liquidity_pools
		SET balance = $2, reserved_balance = $3, updated_at = now()
		WHERE currency = $1`,
		p.Currency, p.Balance, p.ReservedBalance)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update pool", err)
	}
	return nil
}

func (q *PgQuerier) GetPool(ctx context.Context, currency string) (PoolRow, error) {
	var p PoolRow
	err := q.db.QueryRow(ctx, `
		SELECT currency, balance, reserved_balance, updated_at FROM liquidity_pools WHERE currency = $1`,
		currency).Scan(&p.Currency, &p.Balance, &p.ReservedBalance, &p.UpdatedAt)
	if err != nil {
		return PoolRow{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("pool %s not found", currency), err)
	}
	return p, nil
}

func (q *PgQuerier) ListPoolCurrencies(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, `SELECT currency FROM liquidity_pools ORDER BY currency ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list pools", err)
	}
	defer rows.Close()

	var currencies []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan pool currency", err)
		}
		currencies = append(currencies, c)
	}
	return currencies, nil
}

func (q *PgQuerier) RecordRate(ctx context.Context, pair string, rate money.Decimal, timestamp time.Time) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO fx_rates (currency_pair, rate, timestamp)
		VALUES ($1, $2, $3)
		RETURNING id`,
		pair, rate, timestamp).Scan(&id)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "store fx rate", err)
	}
	return id, nil
}

func (q *PgQuerier) LatestRateForPair(ctx context.Context, pair string) (RateRow, error) {
	var r RateRow
	err := q.db.QueryRow(ctx, `
		SELECT id, currency_pair, rate, timestamp
		FROM fx_rates
		WHERE currency_pair = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`,
		pair).Scan(&r.ID, &r.Pair, &r.Rate, &r.Timestamp)
	if err != nil {
		return RateRow{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("no fx rate for %s", pair), err)
	}
	return r, nil
}

func (q *PgQuerier) InsertTransaction(ctx context.Context, t TransactionRow) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO transactions
			(source_currency, target_currency, source_amount, target_amount, fx_rate, margin, revenue, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		t.SourceCurrency, t.TargetCurrency, t.SourceAmount, t.TargetAmount,
		t.FxRate, t.Margin, t.Revenue, t.Status, t.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "persist transaction", err)
	}
	return id, nil
}

func (q *PgQuerier) GetTransaction(ctx context.Context, id int64) (TransactionRow, error) {
	var t TransactionRow
	err := q.db.QueryRow(ctx, `
		SELECT id, source_currency, target_currency, source_amount, target_amount,
		       fx_rate, margin, revenue, status, created_at, settled_at
		FROM transactions WHERE id = $1`,
		id).Scan(&t.ID, &t.SourceCurrency, &t.TargetCurrency, &t.SourceAmount,
		&t.TargetAmount, &t.FxRate, &t.Margin, &t.Revenue, &t.Status, &t.CreatedAt, &t.SettledAt)
	if err != nil {
		return TransactionRow{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("transaction %d not found", id), err)
	}
	return t, nil
}

func (q *PgQuerier) UpdateTransactionStatus(ctx context.Context, id int64, status string, settledAt *time.Time) error {
	_, err := q.db.Exec(ctx, `
		UPDATE transactions SET status = $2, settled_at = $3 WHERE id = $1`,
		id, status, settledAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update transaction status", err)
	}
	return nil
}

func (q *PgQuerier) SumSourceVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error) {
	var sum money.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(source_amount), 0)
		FROM transactions
		WHERE source_currency = $1 AND created_at >= $2`,
		currency, since).Scan(&sum)
	if err != nil {
		return money.Decimal{}, apperr.Wrap(apperr.Internal, "sum outgoing volume", err)
	}
	return sum, nil
}

func (q *PgQuerier) SumTargetVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error) {
	var sum money.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(target_amount), 0)
		FROM transactions
		WHERE target_currency = $1 AND created_at >= $2`,
		currency, since).Scan(&sum)
	if err != nil {
		return money.Decimal{}, apperr.Wrap(apperr.Internal, "sum incoming volume", err)
	}
	return sum, nil
}

// WithTx begins a transaction on the underlying connection, runs fn against
// a PgQuerier scoped to it, and commits iff fn returns nil. The underlying
// db must support Begin; *Pool does, a PgQuerier already wrapping a pgx.Tx
// does not, and nesting transactions is programmer error.
func (q *PgQuerier) WithTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
	beginner, ok := q.db.(txBeginner)
	if !ok {
		return apperr.New(apperr.Internal, "underlying connection does not support starting a transaction")
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PgQuerier{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.Internal, "commit transaction", err)
	}
	return nil
}
