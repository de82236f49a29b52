package fxrate

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/withobsrvr/fx-transfer-engine/internal/store"
)

func TestParsePairSplitsBaseAndQuote(t *testing.T) {
	base, quote, err := ParsePair("USD/EUR")
	require.NoError(t, err)
	require.Equal(t, "USD", base)
	require.Equal(t, "EUR", quote)
}

func TestParsePairRejectsMalformed(t *testing.T) {
	_, _, err := ParsePair("USDEUR")
	require.Error(t, err)
}

func TestParsePairRejectsIdenticalCurrencies(t *testing.T) {
	_, _, err := ParsePair("USD/USD")
	require.Error(t, err)
}

func TestParsePairRejectsEmptySides(t *testing.T) {
	_, _, err := ParsePair("/EUR")
	require.Error(t, err)

	_, _, err = ParsePair("USD/")
	require.Error(t, err)
}

func TestLatestRateFallsBackToReciprocalOfPostedPair(t *testing.T) {
	db := store.NewFake()
	s := New(db, func(string) bool { return true }, zerolog.Nop())
	ctx := context.Background()

	_, err := s.RecordRate(ctx, "USD/EUR", "0.9", time.Now())
	require.NoError(t, err)

	rate, err := s.LatestRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.Equal(t, "1.111111", rate.Rate.String())
}

func TestLatestRatePrefersDirectlyPostedPairOverReciprocal(t *testing.T) {
	db := store.NewFake()
	s := New(db, func(string) bool { return true }, zerolog.Nop())
	ctx := context.Background()

	_, err := s.RecordRate(ctx, "USD/EUR", "0.9", time.Now())
	require.NoError(t, err)
	_, err = s.RecordRate(ctx, "EUR/USD", "1.2", time.Now())
	require.NoError(t, err)

	rate, err := s.LatestRate(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.Equal(t, "1.200000", rate.Rate.String())
}

func TestLatestRateNotFoundWhenNeitherDirectionPosted(t *testing.T) {
	db := store.NewFake()
	s := New(db, func(string) bool { return true }, zerolog.Nop())

	_, err := s.LatestRate(context.Background(), "USD", "JPY")
	require.Error(t, err)
}

// TestScenarioS3StaleRateStillSucceedsButLogsAWarning matches spec.md's S3:
// a rate posted well outside the staleness window is still returned
// successfully, with a stale warning logged rather than an error raised.
func TestScenarioS3StaleRateStillSucceedsButLogsAWarning(t *testing.T) {
	var logBuf bytes.Buffer
	db := store.NewFake()
	s := New(db, func(string) bool { return true }, zerolog.New(&logBuf))
	ctx := context.Background()

	staleTimestamp := time.Now().Add(-10 * time.Minute)
	_, err := s.RecordRate(ctx, "USD/JPY", "150", staleTimestamp)
	require.NoError(t, err)

	rate, err := s.LatestRate(ctx, "USD", "JPY")
	require.NoError(t, err)
	require.Equal(t, "150.000000", rate.Rate.String())
	require.Contains(t, logBuf.String(), "stale")
}
