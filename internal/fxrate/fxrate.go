// Package fxrate is the append-only store of FX rate observations: a
// struct wrapping a store.Querier, one method per operation.
package fxrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/withobsrvr/fx-transfer-engine/internal/apperr"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
	"github.com/withobsrvr/fx-transfer-engine/internal/store"
)

// staleAfter is the age at which a returned observation is logged as stale.
const staleAfter = 300 * time.Second

// Rate is a single FX rate observation.
type Rate struct {
	ID           int64
	Pair         string
	Rate         money.Decimal
	Timestamp    time.Time
}

// Store is the FX rate observation log.
type Store struct {
	db          store.Querier
	log         zerolog.Logger
	isSupported func(string) bool
}

// New builds a Store. isSupported reports whether a currency code is in the
// configured allowlist.
func New(db store.Querier, isSupported func(string) bool, log zerolog.Logger) *Store {
	return &Store{db: db, isSupported: isSupported, log: log}
}

// ParsePair splits "BASE/QUOTE" into its two currencies, validating that
// both sides are non-empty and distinct. It does not check that they are
// supported; RecordRate does that.
func ParsePair(pair string) (base, quote string, err error) {
	parts := strings.SplitN(pair, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperr.New(apperr.InvalidInput, fmt.Sprintf("malformed currency pair %q", pair))
	}
	if parts[0] == parts[1] {
		return "", "", apperr.New(apperr.InvalidInput, "base and quote currency must differ")
	}
	return parts[0], parts[1], nil
}

// RecordRate validates and appends a rate observation.
func (s *Store) RecordRate(ctx context.Context, pair string, rateStr string, timestamp time.Time) (Rate, error) {
	base, quote, err := ParsePair(pair)
	if err != nil {
		return Rate{}, err
	}
	if !s.isSupported(base) || !s.isSupported(quote) {
		return Rate{}, apperr.New(apperr.InvalidInput, fmt.Sprintf("unsupported currency in pair %q", pair))
	}

	rate, err := money.New(rateStr)
	if err != nil {
		return Rate{}, apperr.Wrap(apperr.InvalidInput, "malformed rate", err)
	}
	if !rate.IsPositive() {
		return Rate{}, apperr.New(apperr.InvalidInput, "rate must be positive")
	}

	id, err := s.db.RecordRate(ctx, pair, rate, timestamp)
	if err != nil {
		return Rate{}, apperr.Wrap(apperr.Internal, "store fx rate", err)
	}

	return Rate{ID: id, Pair: pair, Rate: rate, Timestamp: timestamp}, nil
}

// LatestRate returns the most recent observation for base/quote. If no
// base/quote row has ever been recorded but the reverse quote/base pair
// has, the reverse rate is inverted (1/rate) and returned instead, so
// posting a rate in one direction makes both directions queryable.
// Observations older than 300s are logged as stale but still returned.
func (s *Store) LatestRate(ctx context.Context, base, quote string) (Rate, error) {
	if !s.isSupported(base) || !s.isSupported(quote) {
		return Rate{}, apperr.New(apperr.InvalidInput, fmt.Sprintf("unsupported currency pair %s/%s", base, quote))
	}
	pair := base + "/" + quote

	r, err := s.queryLatest(ctx, pair)
	if err != nil {
		if !apperr.Is(err, apperr.NotFound) {
			return Rate{}, err
		}

		reciprocalPair := quote + "/" + base
		reciprocal, rerr := s.queryLatest(ctx, reciprocalPair)
		if rerr != nil {
			return Rate{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("no fx rate for %s or %s", pair, reciprocalPair), rerr)
		}

		r = Rate{
			ID:        reciprocal.ID,
			Pair:      pair,
			Rate:      money.FromInt(1).DivRate(reciprocal.Rate),
			Timestamp: reciprocal.Timestamp,
		}
	}

	if age := time.Since(r.Timestamp); age > staleAfter {
		s.log.Warn().
			Str("pair", pair).
			Dur("age", age).
			Msg("fx rate observation is stale")
	}

	return r, nil
}

// queryLatest looks up the most recent observation for the exact stored
// pair string, with no reciprocal fallback.
func (s *Store) queryLatest(ctx context.Context, pair string) (Rate, error) {
	row, err := s.db.LatestRateForPair(ctx, pair)
	if err != nil {
		return Rate{}, apperr.Wrap(apperr.NotFound, fmt.Sprintf("no fx rate for %s", pair), err)
	}
	return Rate{ID: row.ID, Pair: row.Pair, Rate: row.Rate, Timestamp: row.Timestamp}, nil
}
