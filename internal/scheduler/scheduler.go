package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"wavecache/internal/block"
	"wavecache/internal/config"
	"wavecache/internal/logging"
)

const (
	jobQueueDepth = 1024
	retryDelay    = 250 * time.Millisecond
)

// Summary reports job counts by state.
type Summary struct {
	Pending   int
	Computing int
	Completed int
	Skipped   int
	Failed    int
}

type job struct {
	block    *block.Block
	attempts int
}

// Manager runs background summary computation over a pool of workers.
// Blocks are submitted individually; retries for transient decode or
// persist failures are handled here rather than by the block itself.
type Manager struct {
	logger  *slog.Logger
	workers int
	retries int

	jobs chan *job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   Summary

	// inFlight counts submitted jobs not yet terminal; idle is closed
	// whenever the count is zero and replaced on the next Submit, so
	// Wait can select on it without spawning a helper goroutine.
	inFlight int
	idle     chan struct{}
}

// NewManager constructs a scheduler from the compute configuration.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	workers := cfg.Compute.Workers
	if workers < 1 {
		workers = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &Manager{
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		workers: workers,
		retries: cfg.Compute.Retries,
		jobs:    make(chan *job, jobQueueDepth),
		idle:    idle,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	m.logger.Debug("scheduler started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for workers to exit.
// Jobs still queued at shutdown stay counted as pending; their blocks
// remain placeholders and resume on the next run.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	for {
		select {
		case j := <-m.jobs:
			m.logger.Debug("leaving queued block for next run",
				logging.String("aliased_path", j.block.AliasedPath()),
			)
			m.settleOne()
		default:
			return
		}
	}
}

// Submit enqueues a block for summary computation.
func (m *Manager) Submit(b *block.Block) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return errors.New("scheduler not running")
	}
	m.stats.Pending++
	if m.inFlight == 0 {
		m.idle = make(chan struct{})
	}
	m.inFlight++
	m.mu.Unlock()

	m.jobs <- &job{block: b}
	return nil
}

// Wait blocks until every submitted job has reached a terminal state,
// or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.inFlight == 0 {
			m.mu.Unlock()
			return nil
		}
		idle := m.idle
		m.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// settleOne retires one in-flight job, waking waiters when none remain.
func (m *Manager) settleOne() {
	m.mu.Lock()
	m.inFlight--
	if m.inFlight == 0 {
		close(m.idle)
	}
	m.mu.Unlock()
}

// Status returns a snapshot of job counts.
func (m *Manager) Status() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.jobs:
			m.process(ctx, logger, j)
		}
	}
}

func (m *Manager) process(ctx context.Context, logger *slog.Logger, j *job) {
	m.mu.Lock()
	m.stats.Pending--
	m.stats.Computing++
	m.mu.Unlock()

	err := j.block.WriteSummary(ctx)
	switch {
	case err == nil:
		m.finish(func(s *Summary) { s.Completed++ })
	case errors.Is(err, block.ErrAlreadyComputing):
		// Another goroutine owns this computation; its commit will make
		// the block available, so there is nothing left to do here.
		logger.Debug("block already computing, skipping",
			logging.String("aliased_path", j.block.AliasedPath()),
		)
		m.finish(func(s *Summary) { s.Skipped++ })
	case block.Retryable(err) && j.attempts < m.retries:
		j.attempts++
		logger.Warn("summary computation failed, retrying",
			logging.String("aliased_path", j.block.AliasedPath()),
			logging.Int("attempt", j.attempts),
			logging.Error(err),
		)
		m.requeue(ctx, j)
	default:
		logger.Error("summary computation failed",
			logging.String("aliased_path", j.block.AliasedPath()),
			logging.Int("attempts", j.attempts+1),
			logging.Error(err),
		)
		m.finish(func(s *Summary) { s.Failed++ })
	}
}

func (m *Manager) finish(apply func(*Summary)) {
	m.mu.Lock()
	m.stats.Computing--
	apply(&m.stats)
	m.inFlight--
	if m.inFlight == 0 {
		close(m.idle)
	}
	m.mu.Unlock()
}

func (m *Manager) requeue(ctx context.Context, j *job) {
	m.mu.Lock()
	m.stats.Computing--
	m.stats.Pending++
	m.mu.Unlock()

	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
	}
	// On shutdown the job still goes back on the queue so Stop's drain
	// accounts for it rather than leaking the in-flight count.
	m.jobs <- j
}
