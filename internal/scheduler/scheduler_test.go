package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wavecache/internal/block"
	"wavecache/internal/config"
	"wavecache/internal/summary"
)

type memStore struct {
	mu       sync.Mutex
	recs     map[string]*summary.Record
	failNext atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*summary.Record)}
}

func (s *memStore) Write(path string, rec *summary.Record) error {
	if s.failNext.Load() > 0 {
		s.failNext.Add(-1)
		return errors.New("store unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[path] = rec
	return nil
}

func (s *memStore) Read(path string) (*summary.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

type seqAlloc struct {
	next atomic.Int64
}

func (a *seqAlloc) Allocate(string, int, int64, int64) (string, error) {
	return fmt.Sprintf("blocks/%d.ods", a.next.Add(1)), nil
}

func rampDecoder(n int64) block.DecodeFunc {
	return func(_ string, _ int, start, count int64) ([]float32, error) {
		if start < 0 || start+count > n {
			return nil, errors.New("range out of bounds")
		}
		out := make([]float32, count)
		for i := range out {
			out[i] = float32(start+int64(i)) / float32(n)
		}
		return out, nil
	}
}

func testConfig(workers, retries int) *config.Config {
	cfg := config.Default()
	cfg.Compute.Workers = workers
	cfg.Compute.Retries = retries
	return &cfg
}

func startManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	m := NewManager(cfg, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestManagerComputesSubmittedBlocks(t *testing.T) {
	store := newMemStore()
	opts := block.Options{
		Decode: rampDecoder(100_000),
		Store:  store,
		Alloc:  &seqAlloc{},
	}

	m := startManager(t, testConfig(4, 0))

	blocks := make([]*block.Block, 16)
	for i := range blocks {
		blocks[i] = block.New("take.wav", 0, int64(i*4096), 4096, opts)
		if err := m.Submit(blocks[i]); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	for i, b := range blocks {
		if !b.IsAvailable() {
			t.Fatalf("block %d not available after Wait", i)
		}
	}
	status := m.Status()
	if status.Completed != len(blocks) || status.Failed != 0 || status.Pending != 0 || status.Computing != 0 {
		t.Fatalf("status = %+v", status)
	}
}

func TestManagerRetriesTransientFailure(t *testing.T) {
	store := newMemStore()
	store.failNext.Store(1)
	opts := block.Options{
		Decode: rampDecoder(10_000),
		Store:  store,
		Alloc:  &seqAlloc{},
	}

	m := startManager(t, testConfig(1, 2))

	b := block.New("take.wav", 0, 0, 4096, opts)
	if err := m.Submit(b); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if !b.IsAvailable() {
		t.Fatalf("block not available after retry")
	}
	status := m.Status()
	if status.Completed != 1 || status.Failed != 0 {
		t.Fatalf("status = %+v", status)
	}
}

func TestManagerGivesUpAfterRetries(t *testing.T) {
	store := newMemStore()
	store.failNext.Store(100)
	opts := block.Options{
		Decode: rampDecoder(10_000),
		Store:  store,
		Alloc:  &seqAlloc{},
	}

	m := startManager(t, testConfig(1, 2))

	b := block.New("take.wav", 0, 0, 4096, opts)
	if err := m.Submit(b); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if b.IsAvailable() {
		t.Fatalf("block available despite persistent store failure")
	}
	if b.IsComputing() {
		t.Fatalf("block stuck in computing after giving up")
	}
	status := m.Status()
	if status.Failed != 1 || status.Completed != 0 {
		t.Fatalf("status = %+v", status)
	}
}

func TestManagerTreatsAvailableBlockAsNoOp(t *testing.T) {
	store := newMemStore()
	opts := block.Options{
		Decode: rampDecoder(10_000),
		Store:  store,
		Alloc:  &seqAlloc{},
	}

	b := block.New("take.wav", 0, 0, 2048, opts)
	if err := b.WriteSummary(context.Background()); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	m := startManager(t, testConfig(1, 0))
	if err := m.Submit(b); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if status := m.Status(); status.Completed != 1 {
		t.Fatalf("status = %+v", status)
	}
}

func TestSubmitAfterStopFails(t *testing.T) {
	m := NewManager(testConfig(1, 0), nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop()

	b := block.New("take.wav", 0, 0, 1024, block.Options{Decode: rampDecoder(2048), Store: newMemStore(), Alloc: &seqAlloc{}})
	if err := m.Submit(b); err == nil {
		t.Fatalf("Submit after Stop succeeded")
	}
}

func TestStartTwiceFails(t *testing.T) {
	m := startManager(t, testConfig(1, 0))
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("second Start succeeded")
	}
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	opts := block.Options{
		Decode: func(_ string, _ int, _ int64, count int64) ([]float32, error) {
			close(started)
			<-release
			return make([]float32, count), nil
		},
		Store: newMemStore(),
		Alloc: &seqAlloc{},
	}

	m := startManager(t, testConfig(1, 0))
	b := block.New("take.wav", 0, 0, 1024, opts)
	if err := m.Submit(b); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}

	close(release)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	if err := m.Wait(waitCtx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if !b.IsAvailable() {
		t.Fatalf("block not available after release")
	}
}

func TestWaitWithNothingSubmitted(t *testing.T) {
	m := startManager(t, testConfig(1, 0))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait on idle manager: %v", err)
	}
}
