// Package txengine is the transaction lifecycle engine: it quotes a
// transfer, persists it PENDING, and hands settlement off to an independent
// scheduler so the HTTP request that created it never waits on the
// settlement delay.
package txengine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/withobsrvr/fx-transfer-engine/internal/apperr"
	"github.com/withobsrvr/fx-transfer-engine/internal/fxrate"
	"github.com/withobsrvr/fx-transfer-engine/internal/ledger"
	"github.com/withobsrvr/fx-transfer-engine/internal/metrics"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
	"github.com/withobsrvr/fx-transfer-engine/internal/store"
)

// Status is one of the four lifecycle states a Transaction passes through.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Transaction is one transfer, as persisted.
type Transaction struct {
	ID             int64
	SourceCurrency string
	TargetCurrency string
	SourceAmount   money.Decimal
	TargetAmount   money.Decimal
	FxRate         money.Decimal
	Margin         money.Decimal
	Revenue        money.Decimal
	Status         Status
	CreatedAt      time.Time
	SettledAt      *time.Time
}

// CreateRequest is the input to CreateTransaction.
type CreateRequest struct {
	SourceCurrency string
	TargetCurrency string
	SourceAmount   string
}

// SettlementTimes resolves the per-currency settlement delay.
type SettlementTimes interface {
	SettlementDelay(currency string) time.Duration
}

// Clock abstracts wall-clock time so tests can replace real settlement
// delays with an instant fake instead of actually sleeping.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Engine composes the FX rate store and ledger to drive the transaction
// state machine.
type Engine struct {
	db          store.Querier
	fx          *fxrate.Store
	ledger      *ledger.Ledger
	scheduler   *Scheduler
	marginRate  money.Decimal
	settlement  SettlementTimes
	isSupported func(string) bool
	clock       Clock
	log         zerolog.Logger
}

// New builds an Engine and binds scheduler's workers to it. Call
// Scheduler.Start after New and before the first CreateTransaction.
func New(db store.Querier, fx *fxrate.Store, lg *ledger.Ledger, scheduler *Scheduler, marginRate money.Decimal, settlement SettlementTimes, isSupported func(string) bool, log zerolog.Logger) *Engine {
	e := &Engine{
		db:          db,
		fx:          fx,
		ledger:      lg,
		scheduler:   scheduler,
		marginRate:  marginRate,
		settlement:  settlement,
		isSupported: isSupported,
		clock:       realClock{},
		log:         log,
	}
	scheduler.bind(e)
	return e
}

// WithClock overrides the engine's clock, for tests that need settlement
// delays to resolve without waiting on real time.
func (e *Engine) WithClock(c Clock) *Engine {
	e.clock = c
	return e
}

// quote computes target_amount and the margin (revenue) amount for a
// source_amount converted at rate: each multiplication rounds half-even to
// scale 6.
func quote(sourceAmount, rate, marginRate money.Decimal) (targetAmount, marginAmount money.Decimal) {
	baseTarget := sourceAmount.Mul(rate)
	marginAmount = baseTarget.Mul(marginRate)
	targetAmount = baseTarget.Sub(marginAmount)
	return targetAmount, marginAmount
}

// CreateTransaction validates the request, quotes the conversion, persists
// the transaction PENDING, and enqueues asynchronous settlement.
func (e *Engine) CreateTransaction(ctx context.Context, req CreateRequest) (Transaction, error) {
	if !e.isSupported(req.SourceCurrency) || !e.isSupported(req.TargetCurrency) {
		return Transaction{}, apperr.New(apperr.InvalidInput, "unsupported currency")
	}
	if req.SourceCurrency == req.TargetCurrency {
		return Transaction{}, apperr.New(apperr.InvalidInput, "source and target currency must differ")
	}

	sourceAmount, err := money.New(req.SourceAmount)
	if err != nil {
		return Transaction{}, apperr.Wrap(apperr.InvalidInput, "malformed source amount", err)
	}
	if !sourceAmount.IsPositive() {
		return Transaction{}, apperr.New(apperr.InvalidInput, "source amount must be positive")
	}

	rate, err := e.fx.LatestRate(ctx, req.SourceCurrency, req.TargetCurrency)
	if err != nil {
		return Transaction{}, err
	}

	targetAmount, marginAmount := quote(sourceAmount, rate.Rate, e.marginRate)

	tx := Transaction{
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		SourceAmount:   sourceAmount,
		TargetAmount:   targetAmount,
		FxRate:         rate.Rate,
		Margin:         e.marginRate,
		Revenue:        marginAmount,
		Status:         StatusPending,
		CreatedAt:      e.clock.Now(),
	}

	id, err := e.db.InsertTransaction(ctx, store.TransactionRow{
		SourceCurrency: tx.SourceCurrency,
		TargetCurrency: tx.TargetCurrency,
		SourceAmount:   tx.SourceAmount,
		TargetAmount:   tx.TargetAmount,
		FxRate:         tx.FxRate,
		Margin:         tx.Margin,
		Revenue:        tx.Revenue,
		Status:         string(tx.Status),
		CreatedAt:      tx.CreatedAt,
	})
	if err != nil {
		return Transaction{}, apperr.Wrap(apperr.Internal, "persist transaction", err)
	}
	tx.ID = id

	metrics.TransactionsCreatedTotal.Inc()
	e.scheduler.Enqueue(tx.ID)

	return tx, nil
}

// GetTransaction looks up a transaction by id.
func (e *Engine) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return e.loadTransaction(ctx, id)
}

func transactionFromRow(row store.TransactionRow) Transaction {
	return Transaction{
		ID:             row.ID,
		SourceCurrency: row.SourceCurrency,
		TargetCurrency: row.TargetCurrency,
		SourceAmount:   row.SourceAmount,
		TargetAmount:   row.TargetAmount,
		FxRate:         row.FxRate,
		Margin:         row.Margin,
		Revenue:        row.Revenue,
		Status:         Status(row.Status),
		CreatedAt:      row.CreatedAt,
		SettledAt:      row.SettledAt,
	}
}

func (e *Engine) loadTransaction(ctx context.Context, id int64) (Transaction, error) {
	row, err := e.db.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("transaction %d not found", id), err)
	}
	return transactionFromRow(row), nil
}

func (e *Engine) updateStatus(ctx context.Context, id int64, status Status, settledAt *time.Time) error {
	if err := e.db.UpdateTransactionStatus(ctx, id, string(status), settledAt); err != nil {
		return apperr.Wrap(apperr.Internal, "update transaction status", err)
	}
	return nil
}

// settle runs the settlement worker state machine for one transaction. It
// is invoked from a Scheduler worker goroutine, never from the request path
// that created the transaction.
func (e *Engine) settle(ctx context.Context, id int64) {
	tx, err := e.loadTransaction(ctx, id)
	if err != nil {
		e.log.Warn().Int64("transaction_id", id).Msg("settlement worker: transaction not found, skipping")
		return
	}

	reservedAt := e.clock.Now()

	if err := e.ledger.ReserveFunds(ctx, tx.TargetCurrency, tx.TargetAmount); err != nil {
		e.log.Warn().Int64("transaction_id", id).Err(err).Msg("reservation failed, transaction failed")
		metrics.ReservationFailuresTotal.Inc()
		metrics.TransactionsFailedTotal.Inc()
		if serr := e.updateStatus(ctx, id, StatusFailed, nil); serr != nil {
			e.log.Error().Int64("transaction_id", id).Err(serr).Msg("failed to record FAILED status")
		}
		return
	}

	if err := e.updateStatus(ctx, id, StatusProcessing, nil); err != nil {
		e.log.Error().Int64("transaction_id", id).Err(err).Msg("failed to record PROCESSING status")
		return
	}

	delay := e.settlement.SettlementDelay(tx.SourceCurrency) + e.settlement.SettlementDelay(tx.TargetCurrency)
	e.clock.Sleep(delay)

	if err := e.ledger.SettleTransaction(ctx, tx.SourceCurrency, tx.TargetCurrency, tx.SourceAmount, tx.TargetAmount); err != nil {
		e.log.Warn().Int64("transaction_id", id).Err(err).Msg("settlement failed, releasing reservation")
		if rerr := e.ledger.ReleaseReservation(ctx, tx.TargetCurrency, tx.TargetAmount); rerr != nil {
			e.log.Error().Int64("transaction_id", id).Err(rerr).Msg("failed to release reservation after settlement failure")
		}
		metrics.TransactionsFailedTotal.Inc()
		if serr := e.updateStatus(ctx, id, StatusFailed, nil); serr != nil {
			e.log.Error().Int64("transaction_id", id).Err(serr).Msg("failed to record FAILED status")
		}
		return
	}

	settledAt := e.clock.Now()
	metrics.TransactionsCompletedTotal.Inc()
	metrics.SettlementDurationSeconds.Observe(settledAt.Sub(reservedAt).Seconds())
	if err := e.updateStatus(ctx, id, StatusCompleted, &settledAt); err != nil {
		e.log.Error().Int64("transaction_id", id).Err(err).Msg("failed to record COMPLETED status")
	}
}
