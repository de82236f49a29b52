package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/withobsrvr/fx-transfer-engine/internal/apperr"
	"github.com/withobsrvr/fx-transfer-engine/internal/money"
)

// memData holds the in-memory tables. Every method assumes the caller
// already holds whatever lock guards concurrent access; memData itself
// does no locking, so it can be shared between Fake (which locks around
// single calls) and memQuerier (which runs inside a WithTx that already
// holds the lock for its whole callback).
type memData struct {
	pools        map[string]PoolRow
	rates        []RateRow
	nextRateID   int64
	transactions map[int64]TransactionRow
	nextTxID     int64
}

func newMemData() *memData {
	return &memData{
		pools:        map[string]PoolRow{},
		transactions: map[int64]TransactionRow{},
	}
}

func (d *memData) lockPool(currency string) (PoolRow, error) {
	p, ok := d.pools[currency]
	if !ok {
		return PoolRow{}, apperr.New(apperr.NotFound, fmt.Sprintf("pool %s not found", currency))
	}
	return p, nil
}

func (d *memData) writePool(p PoolRow) error {
	if _, ok := d.pools[p.Currency]; !ok {
		return apperr.New(apperr.NotFound, fmt.Sprintf("pool %s not found", p.Currency))
	}
	p.UpdatedAt = time.Now()
	d.pools[p.Currency] = p
	return nil
}

func (d *memData) listPoolCurrencies() ([]string, error) {
	currencies := make([]string, 0, len(d.pools))
	for c := range d.pools {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	return currencies, nil
}

func (d *memData) recordRate(pair string, rate money.Decimal, timestamp time.Time) (int64, error) {
	d.nextRateID++
	d.rates = append(d.rates, RateRow{ID: d.nextRateID, Pair: pair, Rate: rate, Timestamp: timestamp})
	return d.nextRateID, nil
}

// latestRateForPair picks the row with the latest timestamp, breaking ties
// by the highest id, matching the Postgres query's ORDER BY.
func (d *memData) latestRateForPair(pair string) (RateRow, error) {
	var best RateRow
	found := false
	for _, r := range d.rates {
		if r.Pair != pair {
			continue
		}
		if !found || r.Timestamp.After(best.Timestamp) || (r.Timestamp.Equal(best.Timestamp) && r.ID > best.ID) {
			best = r
			found = true
		}
	}
	if !found {
		return RateRow{}, apperr.New(apperr.NotFound, fmt.Sprintf("no fx rate for %s", pair))
	}
	return best, nil
}

func (d *memData) insertTransaction(t TransactionRow) (int64, error) {
	d.nextTxID++
	t.ID = d.nextTxID
	d.transactions[t.ID] = t
	return t.ID, nil
}

func (d *memData) getTransaction(id int64) (TransactionRow, error) {
	t, ok := d.transactions[id]
	if !ok {
		return TransactionRow{}, apperr.New(apperr.NotFound, fmt.Sprintf("transaction %d not found", id))
	}
	return t, nil
}

func (d *memData) updateTransactionStatus(id int64, status string, settledAt *time.Time) error {
	t, ok := d.transactions[id]
	if !ok {
		return apperr.New(apperr.NotFound, fmt.Sprintf("transaction %d not found", id))
	}
	t.Status = status
	t.SettledAt = settledAt
	d.transactions[id] = t
	return nil
}

func (d *memData) sumSourceVolumeSince(currency string, since time.Time) (money.Decimal, error) {
	sum := money.Zero
	for _, t := range d.transactions {
		if t.SourceCurrency == currency && !t.CreatedAt.Before(since) {
			sum = sum.Add(t.SourceAmount)
		}
	}
	return sum, nil
}

func (d *memData) sumTargetVolumeSince(currency string, since time.Time) (money.Decimal, error) {
	sum := money.Zero
	for _, t := range d.transactions {
		if t.TargetCurrency == currency && !t.CreatedAt.Before(since) {
			sum = sum.Add(t.TargetAmount)
		}
	}
	return sum, nil
}

// memQuerier adapts memData to Querier with no locking of its own; it is
// only ever handed to a WithTx callback by Fake, which holds the lock for
// the callback's whole duration.
type memQuerier struct {
	data *memData
}

func (q *memQuerier) LockPool(ctx context.Context, currency string) (PoolRow, error) {
	return q.data.lockPool(currency)
}
func (q *memQuerier) WritePool(ctx context.Context, p PoolRow) error { return q.data.writePool(p) }
func (q *memQuerier) GetPool(ctx context.Context, currency string) (PoolRow, error) {
	return q.data.lockPool(currency)
}
func (q *memQuerier) ListPoolCurrencies(ctx context.Context) ([]string, error) {
	return q.data.listPoolCurrencies()
}
func (q *memQuerier) RecordRate(ctx context.Context, pair string, rate money.Decimal, timestamp time.Time) (int64, error) {
	return q.data.recordRate(pair, rate, timestamp)
}
func (q *memQuerier) LatestRateForPair(ctx context.Context, pair string) (RateRow, error) {
	return q.data.latestRateForPair(pair)
}
func (q *memQuerier) InsertTransaction(ctx context.Context, t TransactionRow) (int64, error) {
	return q.data.insertTransaction(t)
}
func (q *memQuerier) GetTransaction(ctx context.Context, id int64) (TransactionRow, error) {
	return q.data.getTransaction(id)
}
func (q *memQuerier) UpdateTransactionStatus(ctx context.Context, id int64, status string, settledAt *time.Time) error {
	return q.data.updateTransactionStatus(id, status, settledAt)
}
func (q *memQuerier) SumSourceVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error) {
	return q.data.sumSourceVolumeSince(currency, since)
}
func (q *memQuerier) SumTargetVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error) {
	return q.data.sumTargetVolumeSince(currency, since)
}
func (q *memQuerier) WithTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
	return fn(ctx, q)
}

// Fake is an in-memory Querier: a single mutex serializes every operation,
// standing in for the row locks the Postgres-backed PgQuerier relies on.
// It lets ledger, fxrate, and txengine business logic run in tests without
// a live database.
type Fake struct {
	mu   sync.Mutex
	data *memData
}

// NewFake builds an empty in-memory store. Use SeedPool to create pools
// before exercising the engine under test.
func NewFake() *Fake {
	return &Fake{data: newMemData()}
}

// SeedPool creates or overwrites a pool's balance and clears its reserved
// balance, bypassing the normal locking path.
func (f *Fake) SeedPool(currency string, balance money.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data.pools[currency] = PoolRow{Currency: currency, Balance: balance, UpdatedAt: time.Now()}
}

// Pool returns a snapshot of one pool's current row, for test assertions.
func (f *Fake) Pool(currency string) PoolRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.pools[currency]
}

func (f *Fake) LockPool(ctx context.Context, currency string) (PoolRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.lockPool(currency)
}
func (f *Fake) WritePool(ctx context.Context, p PoolRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.writePool(p)
}
func (f *Fake) GetPool(ctx context.Context, currency string) (PoolRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.lockPool(currency)
}
func (f *Fake) ListPoolCurrencies(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.listPoolCurrencies()
}
func (f *Fake) RecordRate(ctx context.Context, pair string, rate money.Decimal, timestamp time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.recordRate(pair, rate, timestamp)
}
func (f *Fake) LatestRateForPair(ctx context.Context, pair string) (RateRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.latestRateForPair(pair)
}
func (f *Fake) InsertTransaction(ctx context.Context, t TransactionRow) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.insertTransaction(t)
}
func (f *Fake) GetTransaction(ctx context.Context, id int64) (TransactionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.getTransaction(id)
}
func (f *Fake) UpdateTransactionStatus(ctx context.Context, id int64, status string, settledAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.updateTransactionStatus(id, status, settledAt)
}
func (f *Fake) SumSourceVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.sumSourceVolumeSince(currency, since)
}
func (f *Fake) SumTargetVolumeSince(ctx context.Context, currency string, since time.Time) (money.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.sumTargetVolumeSince(currency, since)
}
func (f *Fake) WithTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx, &memQuerier{data: f.data})
}
