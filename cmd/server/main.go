// Command server is the fx-transfer-engine process entrypoint: it loads
// configuration, bootstraps the database, wires the FX rate store, ledger,
// transaction engine, rebalancer, and HTTP boundary, then runs until a
// shutdown signal arrives and shuts down gracefully within a bounded
// timeout.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/withobsrvr/fx-transfer-engine/internal/config"
	"github.com/withobsrvr/fx-transfer-engine/internal/fxrate"
	"github.com/withobsrvr/fx-transfer-engine/internal/httpapi"
	"github.com/withobsrvr/fx-transfer-engine/internal/ledger"
	"github.com/withobsrvr/fx-transfer-engine/internal/logging"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
	"github.com/withobsrvr/fx-transfer-engine/internal/rebalancer"
	"github.com/withobsrvr/fx-transfer-engine/internal/store"
	"github.com/withobsrvr/fx-transfer-engine/internal/txengine"
)

// settlementAdapter adapts *config.Config to txengine.SettlementTimes.
type settlementAdapter struct{ cfg *config.Config }

func (a settlementAdapter) SettlementDelay(currency string) time.Duration {
	return a.cfg.SettlementDelay(currency)
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pool, err := store.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer pool.Close()

	if err := pool.Bootstrap(ctx, cfg.Currencies.InitialBalances); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap schema")
	}

	querier := store.NewPgQuerier(pool)
	rates := fxrate.New(querier, cfg.IsSupported, log)
	lg := ledger.New(querier, rates, log)

	marginRate, err := money.New(cfg.Margin.TransactionRate)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid margin.transaction_rate")
	}

	scheduler := txengine.NewScheduler(10, 10_000, log)
	engine := txengine.New(querier, rates, lg, scheduler, marginRate, settlementAdapter{cfg}, cfg.IsSupported, log)
	scheduler.Start()
	defer scheduler.Close()

	highUtil, err := money.New(cfg.Rebalance.HighUtilization)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid rebalance.high_utilization")
	}
	lowUtil, err := money.New(cfg.Rebalance.LowUtilization)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid rebalance.low_utilization")
	}
	buffer, err := money.New(cfg.Rebalance.BufferMultiplier)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid rebalance.buffer_multiplier")
	}

	rb := rebalancer.New(lg, rebalancer.Thresholds{
		HighUtilization:  highUtil,
		LowUtilization:   lowUtil,
		BufferMultiplier: buffer,
		Interval:         cfg.RebalanceInterval(),
		MetricsWindow:    time.Duration(cfg.Rebalance.MetricsWindowHours) * time.Hour,
	}, log)

	go rb.Run(ctx)

	api := httpapi.New(engine, rates, pool, log)
	httpServer := &http.Server{
		Addr:    cfg.Service.HTTPAddr,
		Handler: api,
	}

	go func() {
		log.Info().Str("addr", cfg.Service.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}

	log.Info().Msg("fx-transfer-engine stopped")
}
