// Package rebalancer runs the periodic pool-rebalancing control loop: a
// time.Ticker-driven cycle that measures each pool's utilization and moves
// liquidity from donor pools to deficit pools. Cancellation is checked only
// between ticks, so a cycle already in flight always runs to completion.
package rebalancer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/withobsrvr/fx-transfer-engine/internal/ledger"
	"github.com/withobsrvr/fx-transfer-engine/internal/metrics"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

// Thresholds bundles the rebalancer's tunable constants.
type Thresholds struct {
	HighUtilization  money.Decimal
	LowUtilization   money.Decimal
	BufferMultiplier money.Decimal
	Interval         time.Duration
	MetricsWindow    time.Duration
}

// Rebalancer periodically rebalances liquidity pools.
type Rebalancer struct {
	ledger     *ledger.Ledger
	thresholds Thresholds
	log        zerolog.Logger
}

// New builds a Rebalancer.
func New(lg *ledger.Ledger, thresholds Thresholds, log zerolog.Logger) *Rebalancer {
	return &Rebalancer{ledger: lg, thresholds: thresholds, log: log}
}

// Run starts the ticker loop and blocks until ctx is canceled. Cancellation
// is checked only at tick boundaries; a cycle in flight always completes.
func (r *Rebalancer) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.thresholds.Interval).Msg("pool rebalancer started")

	ticker := time.NewTicker(r.thresholds.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runCycleSafely(ctx)
		case <-ctx.Done():
			r.log.Info().Msg("pool rebalancer stopping")
			return
		}
	}
}

// runCycleSafely recovers a panicking cycle so the loop survives to the
// next tick, per the rebalancer's cycle-level failure policy.
func (r *Rebalancer) runCycleSafely(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Msg("rebalance cycle panicked, continuing to next tick")
		}
	}()

	if err := r.runCycle(ctx); err != nil {
		r.log.Error().Err(err).Msg("rebalance cycle failed")
	}
}

func (r *Rebalancer) runCycle(ctx context.Context) error {
	metrics.RebalanceCyclesTotal.Inc()

	currencies, err := r.ledger.ListPools(ctx)
	if err != nil {
		return err
	}

	poolMetrics := make(map[string]ledger.Metrics, len(currencies))
	for _, currency := range currencies {
		m, err := r.ledger.PoolMetrics(ctx, currency, r.thresholds.MetricsWindow)
		if err != nil {
			r.log.Error().Str("currency", currency).Err(err).Msg("failed to compute pool metrics, skipping")
			continue
		}
		poolMetrics[currency] = m
	}

	for _, deficit := range currencies {
		m, ok := poolMetrics[deficit]
		if !ok {
			continue
		}
		if !r.isDeficit(m) {
			continue
		}
		r.rebalanceOne(ctx, deficit, m, currencies, poolMetrics)
	}

	return nil
}

func (r *Rebalancer) isDeficit(m ledger.Metrics) bool {
	return m.UtilizationRate.Cmp(r.thresholds.HighUtilization) > 0 || m.NetFlow.IsNegative()
}

func (r *Rebalancer) isDonor(m ledger.Metrics) bool {
	return m.UtilizationRate.LessThan(r.thresholds.LowUtilization)
}

// rebalanceOne finds the first donor (in ascending currency-code order) for
// the deficit currency and executes one internal rebalance, then stops
// looking — one rebalance per cycle per deficit pool.
func (r *Rebalancer) rebalanceOne(ctx context.Context, deficit string, deficitMetrics ledger.Metrics, currencies []string, poolMetrics map[string]ledger.Metrics) {
	for _, donor := range currencies {
		if donor == deficit {
			continue
		}
		donorMetrics, ok := poolMetrics[donor]
		if !ok || !r.isDonor(donorMetrics) {
			continue
		}

		targetRequired := deficitMetrics.NetFlow.Abs().Mul(r.thresholds.BufferMultiplier)

		rate, err := r.ledger.FXRateForRebalance(ctx, deficit, donor)
		if err != nil {
			r.log.Error().Str("deficit", deficit).Str("donor", donor).Err(err).Msg("no rate available for rebalance, skipping")
			return
		}
		sourceRequired := targetRequired.Mul(rate)

		donorCap := donorMetrics.Balance.Mul(money.Half)
		transferAmount := sourceRequired
		if donorCap.LessThan(transferAmount) {
			transferAmount = donorCap
		}

		if !transferAmount.IsPositive() {
			return
		}

		if err := r.ledger.InternalRebalance(ctx, donor, deficit, transferAmount); err != nil {
			r.log.Error().
				Str("from", donor).Str("to", deficit).Str("amount", transferAmount.String()).
				Err(err).Msg("internal rebalance failed")
			return
		}

		r.log.Info().
			Str("from", donor).Str("to", deficit).Str("amount", transferAmount.String()).
			Msg("internal rebalance executed")
		return
	}
}
