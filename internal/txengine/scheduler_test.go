package txengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestSchedulerEnqueueNeverDropsWorkWhenQueueIsFull drives far more
// concurrent enqueues than the queue's depth through a single slow worker.
// Enqueue must block rather than drop, so every id is eventually settled.
func TestSchedulerEnqueueNeverDropsWorkWhenQueueIsFull(t *testing.T) {
	s := NewScheduler(1, 1, zerolog.Nop())

	var mu sync.Mutex
	processed := map[int64]bool{}
	s.settle = func(ctx context.Context, id int64) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		processed[id] = true
		mu.Unlock()
	}
	s.Start()

	const n = 20
	var wg sync.WaitGroup
	for i := int64(1); i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Enqueue(id)
		}(i)
	}
	wg.Wait()
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, processed, n, "every enqueued transaction id must eventually be settled, none dropped")
}
