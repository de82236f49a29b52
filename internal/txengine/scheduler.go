package txengine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Scheduler is a bounded worker pool for settlement work: a buffered
// channel drained by a fixed number of goroutines, each settlement running
// on its own context with no handle shared with the request goroutine that
// enqueued it.
type Scheduler struct {
	queue   chan int64
	workers int
	wg      sync.WaitGroup
	settle  func(ctx context.Context, id int64)
	log     zerolog.Logger
}

// NewScheduler builds a Scheduler with the given worker count and queue
// depth. Call Start to launch the workers and bind an Engine via
// txengine.New before enqueuing anything.
func NewScheduler(workers, queueDepth int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		queue:   make(chan int64, queueDepth),
		workers: workers,
		log:     log,
	}
}

func (s *Scheduler) bind(e *Engine) {
	s.settle = e.settle
}

// Start launches the worker goroutines.
func (s *Scheduler) Start() {
	s.wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go s.worker(i)
	}
	s.log.Info().Int("workers", s.workers).Msg("settlement scheduler started")
}

func (s *Scheduler) worker(workerID int) {
	defer s.wg.Done()
	logger := s.log.With().Int("worker_id", workerID).Logger()

	for id := range s.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().Int64("transaction_id", id).Interface("panic", r).Msg("settlement worker recovered from panic")
				}
			}()
			s.settle(context.Background(), id)
		}()
	}

	logger.Info().Msg("settlement worker stopped")
}

// Enqueue schedules settlement for transaction id, blocking until a worker
// has room to take it. Settlement must be attempted exactly once for every
// transaction created, so a full queue applies backpressure to the caller
// instead of dropping the transaction on the floor.
func (s *Scheduler) Enqueue(id int64) {
	s.queue <- id
}

// Close stops accepting new work and waits for in-flight settlements to
// finish.
func (s *Scheduler) Close() {
	close(s.queue)
	s.wg.Wait()
}
