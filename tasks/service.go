// Package tasks runs fetch jobs on a fixed pool of worker goroutines.
package tasks

import (
	"container/heap"
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool width used when none is given
const DefaultWorkers = 8

var (
	// ErrServiceClosed is returned by Add after Close.
	ErrServiceClosed = errors.New("tasks: service closed")
	// ErrAlreadyQueued is returned when a request is added twice.
	ErrAlreadyQueued = errors.New("tasks: request already queued")
)

// Service is a fixed-size worker pool. Pending requests wait in a priority
// heap, highest priority first and FIFO among equals. Add never blocks on
// workers.
type Service struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	pending pendingHeap
	seq     uint64
	closed  bool

	cancel context.CancelFunc
	group  *errgroup.Group

	submitted atomic.Uint64
	finished  atomic.Uint64
}

// NewService starts workers goroutines.
func NewService(name string, workers int) *Service {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	s := &Service{
		name:   name,
		cancel: cancel,
		group:  group,
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			s.worker(ctx)
			return nil
		})
	}
	log.Printf("%s: started %d workers", name, workers)
	return s
}

// Name returns the service label
func (s *Service) Name() string {
	return s.name
}

// Add queues r for execution.
func (s *Service) Add(r Runner, priority float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}
	if !r.claim() {
		return ErrAlreadyQueued
	}
	s.seq++
	heap.Push(&s.pending, &pendingItem{runner: r, priority: priority, seq: s.seq})
	s.submitted.Add(1)
	s.cond.Signal()
	return nil
}

// Close stops the workers after their current request. Requests still
// waiting in the queue are dropped and never complete.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := len(s.pending)
	s.pending = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	err := s.group.Wait()
	log.Printf("%s: stopped (%d finished, %d dropped)", s.name, s.finished.Load(), dropped)
	return err
}

// Submitted counts requests accepted by Add.
func (s *Service) Submitted() uint64 {
	return s.submitted.Load()
}

// Finished counts requests that ran to completion.
func (s *Service) Finished() uint64 {
	return s.finished.Load()
}

// Pending is the number of requests waiting for a worker.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Service) worker(ctx context.Context) {
	for {
		r, ok := s.next()
		if !ok {
			return
		}
		r.run(ctx)
		s.finished.Add(1)
	}
}

func (s *Service) next() (Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil, false
	}
	item := heap.Pop(&s.pending).(*pendingItem)
	return item.runner, true
}

// Inline runs each request synchronously inside Add. Useful for tools and
// tests that want deterministic completion.
type Inline struct{}

// Add runs r on the calling goroutine.
func (Inline) Add(r Runner, _ float64) error {
	if !r.claim() {
		return ErrAlreadyQueued
	}
	r.run(context.Background())
	return nil
}

type pendingItem struct {
	runner   Runner
	priority float64
	seq      uint64
}

type pendingHeap []*pendingItem

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(*pendingItem)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
