package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/tanq16/rangedl/internal/registry"
	"github.com/tanq16/rangedl/internal/task"
	"github.com/tanq16/rangedl/internal/utils"
)

// Scheduler runs registry tasks with at most workers downloads in flight.
type Scheduler struct {
	reg     *registry.Registry
	workers int

	mu      sync.Mutex
	waiting deque.Deque[*task.Task]
}

func New(reg *registry.Registry, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		reg:     reg,
		workers: workers,
	}
}

// Run queues tasks as Pending and blocks until every one has been started and
// has returned, or ctx ends. Paused and cancelled tasks are not errors.
func (s *Scheduler) Run(ctx context.Context, tasks []*task.Task) error {
	s.mu.Lock()
	for _, t := range tasks {
		t.SetPending()
		s.waiting.PushBack(t)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs []error
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for err := range s.process(ctx, workerID) {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *Scheduler) next() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting.Len() == 0 {
		return nil
	}
	return s.waiting.PopFront()
}

// Pending is the number of tasks not yet handed to a worker.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting.Len()
}

func (s *Scheduler) process(ctx context.Context, workerID int) <-chan error {
	errCh := make(chan error)
	go func() {
		defer close(errCh)
		log := utils.GetLogger("scheduler").With().Int("worker", workerID).Logger()
		for ctx.Err() == nil {
			t := s.next()
			if t == nil {
				return
			}
			if t.Status() != task.Pending {
				log.Debug().Str("task", t.ID()).Str("status", t.Status().String()).Msg("Skipping task that left the queue")
				continue
			}
			log.Debug().Str("url", t.URL()).Msg("Starting task")
			result, err := s.reg.StartDownloadAsync(t)
			if err != nil {
				errCh <- fmt.Errorf("%s: %w", t.URL(), err)
				continue
			}
			if err := <-result; err != nil && !errors.Is(err, utils.ErrPaused) && !errors.Is(err, utils.ErrCancelled) {
				errCh <- fmt.Errorf("%s: %w", t.URL(), err)
			}
		}
	}()
	return errCh
}
