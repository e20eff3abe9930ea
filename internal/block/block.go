package block

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"wavecache/internal/decode"
	"wavecache/internal/logging"
	"wavecache/internal/summary"
)

// DecodeFunc pulls n samples of one channel from an audio file starting
// at sample index start.
type DecodeFunc func(path string, channel int, start, n int64) ([]float32, error)

// Store persists and loads summary records.
type Store interface {
	Write(path string, rec *summary.Record) error
	Read(path string) (*summary.Record, error)
}

// PathAllocator supplies a summary file path for a block that does not
// have one yet. The registry implements this.
type PathAllocator interface {
	Allocate(aliasedPath string, channel int, start, length int64) (string, error)
}

// FileStore is the default Store, reading and writing summary files
// directly.
type FileStore struct{}

func (FileStore) Write(path string, rec *summary.Record) error { return summary.WriteFile(path, rec) }
func (FileStore) Read(path string) (*summary.Record, error)    { return summary.ReadFile(path) }

// Options carries the block's collaborators. Zero-value fields fall back
// to the package defaults (decode.ReadRange, FileStore, no-op logger).
type Options struct {
	Decode DecodeFunc
	Store  Store
	Alloc  PathAllocator
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Decode == nil {
		o.Decode = decode.ReadRange
	}
	if o.Store == nil {
		o.Store = FileStore{}
	}
	o.Logger = logging.NewComponentLogger(o.Logger, "block")
	return o
}

// Block is one on-demand summary block. See the package comment for the
// locking discipline.
type Block struct {
	aliasChannel int
	aliasStart   int64
	aliasLen     int64

	decode DecodeFunc
	store  Store
	alloc  PathAllocator
	logger *slog.Logger

	// stateMu guards the available/computing pair, the cached record and
	// block stats, and the saved/closeLocked flags. Commit and abort run
	// entirely under it, which is what makes IsAvailable a write barrier.
	stateMu     sync.Mutex
	available   bool
	computing   bool
	rec         *summary.Record
	min         float32
	max         float32
	rms         float32
	saved       bool
	closeLocked bool

	// computingPeek mirrors computing for lock-free status probes.
	computingPeek atomic.Bool

	pathMu      sync.Mutex
	summaryPath string

	aliasMu     sync.Mutex
	aliasedPath string

	// readMu serializes the decoder, which is not safe for concurrent
	// invocation on the same source.
	readMu sync.Mutex

	refMu sync.Mutex
	refs  int

	// Display-only position within the owning clip and track. Never read
	// by compute or query logic.
	localStart atomic.Int64
	clipOffset atomic.Int64
}

// New creates a pending placeholder block covering length samples of the
// given channel starting at sample index start in the aliased file. The
// caller registers it with the scheduler for background computation.
func New(aliasedPath string, channel int, start, length int64, opts Options) *Block {
	opts = opts.withDefaults()
	return &Block{
		aliasedPath:  aliasedPath,
		aliasChannel: channel,
		aliasStart:   start,
		aliasLen:     length,
		decode:       opts.Decode,
		store:        opts.Store,
		alloc:        opts.Alloc,
		logger:       opts.Logger,
		refs:         1,
	}
}

// AliasedPath returns the current raw-source path.
func (b *Block) AliasedPath() string {
	b.aliasMu.Lock()
	defer b.aliasMu.Unlock()
	return b.aliasedPath
}

// SetAliasedPath renames the raw source. No-op after CloseLock.
func (b *Block) SetAliasedPath(path string) {
	if b.isCloseLocked() {
		return
	}
	b.aliasMu.Lock()
	b.aliasedPath = path
	b.aliasMu.Unlock()
}

// SummaryPath returns the summary file path, empty until allocated.
func (b *Block) SummaryPath() string {
	b.pathMu.Lock()
	defer b.pathMu.Unlock()
	return b.summaryPath
}

// SetSummaryPath renames the summary destination. Legal at any point in
// the lifecycle (save-as renames pending blocks routinely); no-op after
// CloseLock.
func (b *Block) SetSummaryPath(path string) {
	if b.isCloseLocked() {
		return
	}
	b.setSummaryPath(path)
}

func (b *Block) setSummaryPath(path string) {
	b.pathMu.Lock()
	b.summaryPath = path
	b.pathMu.Unlock()
}

// Channel returns the source channel this block reads.
func (b *Block) Channel() int { return b.aliasChannel }

// AliasRange returns the (start, length) sample window inside the source.
func (b *Block) AliasRange() (int64, int64) { return b.aliasStart, b.aliasLen }

// Len returns the number of samples the block covers.
func (b *Block) Len() int64 { return b.aliasLen }

// IsAvailable reports whether the summary has been computed and
// persisted. It acquires the state lock, so a caller racing a commit
// observes either the state before the write began or the committed
// state, never a partial pair.
func (b *Block) IsAvailable() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.available
}

// IsComputing is a lock-free peek for UI status. Not for correctness
// decisions; use IsAvailable for those.
func (b *Block) IsComputing() bool {
	return b.computingPeek.Load()
}

// computeToken is the capability returned by beginCompute; commit and
// abort require it, keeping the single-writer section honest.
type computeToken struct {
	b    *Block
	done bool
}

func (b *Block) beginCompute() (*computeToken, error) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.available {
		return nil, errAlreadyDone
	}
	if b.computing {
		return nil, ErrAlreadyComputing
	}
	b.computing = true
	b.computingPeek.Store(true)
	return &computeToken{b: b}, nil
}

func (b *Block) commit(tok *computeToken, rec *summary.Record) {
	if tok == nil || tok.b != b || tok.done {
		panic("block: commit without a live compute token")
	}
	tok.done = true
	b.stateMu.Lock()
	b.rec = rec
	b.min, b.max, b.rms = rec.Min, rec.Max, rec.RMS
	b.available = true
	b.computing = false
	b.computingPeek.Store(false)
	b.stateMu.Unlock()
}

func (b *Block) abort(tok *computeToken) {
	if tok == nil || tok.b != b || tok.done {
		panic("block: abort without a live compute token")
	}
	tok.done = true
	b.stateMu.Lock()
	b.computing = false
	b.computingPeek.Store(false)
	b.stateMu.Unlock()
}

// WriteSummary computes and persists the block's summary. It is the one
// entry point the scheduler drives, exactly once per dequeue. A call
// while another write is in flight fails fast with ErrAlreadyComputing;
// a call on an already-available block is a no-op. Decode and persist
// failures return the block to the pending-idle state.
func (b *Block) WriteSummary(ctx context.Context) error {
	tok, err := b.beginCompute()
	if err != nil {
		if errors.Is(err, errAlreadyDone) {
			return nil
		}
		return err
	}

	samples, err := b.decodeRange(0, b.aliasLen)
	if err != nil {
		b.abort(tok)
		return err
	}
	rec := summary.Compute(samples)

	if err := ctx.Err(); err != nil {
		b.abort(tok)
		return err
	}

	path := b.SummaryPath()
	if path == "" {
		if b.alloc == nil {
			b.abort(tok)
			return wrapErr(ErrPersist, "no summary path and no allocator", nil)
		}
		path, err = b.alloc.Allocate(b.AliasedPath(), b.aliasChannel, b.aliasStart, b.aliasLen)
		if err != nil {
			b.abort(tok)
			return wrapErr(ErrPersist, "allocate summary path", err)
		}
		b.setSummaryPath(path)
	}

	if err := b.store.Write(path, rec); err != nil {
		b.abort(tok)
		return wrapErr(ErrPersist, "write summary file", err)
	}

	b.commit(tok, rec)
	b.logger.Debug("summary committed",
		logging.String("summary_file", path),
		logging.Int64("samples", b.aliasLen),
	)
	return nil
}

// Recover re-persists an in-memory summary, for blocks resumed after an
// unclean shutdown where the file may not have survived. Idempotent; a
// pending block or one whose record lives only on disk is left alone.
func (b *Block) Recover() error {
	b.stateMu.Lock()
	rec := b.rec
	available := b.available
	b.stateMu.Unlock()

	if !available || rec == nil {
		return nil
	}
	path := b.SummaryPath()
	if path == "" {
		return wrapErr(ErrPersist, "recover: block has no summary path", nil)
	}
	if err := b.store.Write(path, rec); err != nil {
		return wrapErr(ErrPersist, "recover summary file", err)
	}
	return nil
}

// MarkSaved records that the block has been flushed to a project save.
func (b *Block) MarkSaved() {
	b.stateMu.Lock()
	b.saved = true
	b.stateMu.Unlock()
}

// CloseLock freezes path mutation when the owning project is closing,
// but only for blocks that have been saved before: a never-saved
// placeholder may still be renamed by an in-flight save. Not balanced by
// an unlock.
func (b *Block) CloseLock() {
	b.stateMu.Lock()
	if b.saved {
		b.closeLocked = true
	}
	b.stateMu.Unlock()
}

func (b *Block) isCloseLocked() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.closeLocked
}

// Retain adds a shared-ownership reference.
func (b *Block) Retain() {
	b.refMu.Lock()
	b.refs++
	b.refMu.Unlock()
}

// Release drops a reference and reports whether it was the last one.
// The caller owning the last reference is responsible for the block's
// destruction; an in-flight WriteSummary still runs to completion and
// commits into what is then an orphaned file, reclaimed by the registry
// sweep.
func (b *Block) Release() bool {
	b.refMu.Lock()
	defer b.refMu.Unlock()
	if b.refs > 0 {
		b.refs--
	}
	return b.refs == 0
}

// Refs returns the current reference count.
func (b *Block) Refs() int {
	b.refMu.Lock()
	defer b.refMu.Unlock()
	return b.refs
}

// SetStart records where the block begins inside its clip. Display only.
func (b *Block) SetStart(sample int64) { b.localStart.Store(sample) }

// Start returns the display position inside the clip.
func (b *Block) Start() int64 { return b.localStart.Load() }

// SetClipOffset records the clip's offset inside the track. Display only.
func (b *Block) SetClipOffset(samples int64) { b.clipOffset.Store(samples) }

// ClipOffset returns the display clip offset.
func (b *Block) ClipOffset() int64 { return b.clipOffset.Load() }

// GlobalStart returns the track-relative sample index of the block's
// first sample. Display only.
func (b *Block) GlobalStart() int64 { return b.clipOffset.Load() + b.localStart.Load() }

// GlobalEnd returns the track-relative sample index one past the block's
// last sample. Display only.
func (b *Block) GlobalEnd() int64 { return b.GlobalStart() + b.aliasLen }

// Copy clones the block. An available copy shares the computed summary
// and needs no recomputation; a pending copy is a fresh placeholder the
// caller must re-register with the scheduler. The copy never inherits an
// in-flight compute.
func (b *Block) Copy(newSummaryPath string) *Block {
	opts := Options{Decode: b.decode, Store: b.store, Alloc: b.alloc, Logger: b.logger}

	dup := New(b.AliasedPath(), b.aliasChannel, b.aliasStart, b.aliasLen, opts)

	b.stateMu.Lock()
	available := b.available
	rec := b.rec
	mn, mx, rms := b.min, b.max, b.rms
	b.stateMu.Unlock()

	switch {
	case newSummaryPath != "":
		dup.setSummaryPath(newSummaryPath)
	case available:
		dup.setSummaryPath(b.SummaryPath())
	}
	// A pending copy with no path of its own stays pathless; sharing the
	// source's path would let two placeholders persist into one file.
	// The allocator assigns it a fresh file on its first WriteSummary.

	if available {
		dup.stateMu.Lock()
		dup.available = true
		dup.rec = rec
		dup.min, dup.max, dup.rms = mn, mx, rms
		dup.stateMu.Unlock()
	}
	return dup
}

// decodeRange reads n raw samples starting at block-relative index
// start, serialized through the read-exclusion lock.
func (b *Block) decodeRange(start, n int64) ([]float32, error) {
	if start < 0 || n < 0 || start+n > b.aliasLen {
		return nil, wrapErr(ErrDecode, "range outside block", decode.ErrRangeOutOfBounds)
	}
	path := b.AliasedPath()

	b.readMu.Lock()
	defer b.readMu.Unlock()
	samples, err := b.decode(path, b.aliasChannel, b.aliasStart+start, n)
	if err != nil {
		return nil, wrapErr(ErrDecode, "read aliased samples", err)
	}
	return samples, nil
}
