package block

import (
	"fmt"
)

// Kind discriminates the two serialized shapes of a block.
type Kind string

const (
	// KindComplete marks a block whose summary is computed and persisted.
	KindComplete Kind = "complete"
	// KindPending marks a placeholder awaiting background computation.
	KindPending Kind = "pending"
)

// Record is the persisted form of a block. The shape is chosen by
// availability at serialization time: Complete records carry the summary
// file and block statistics, Pending records only the aliased window.
// A transient computing flag never persists; a block serialized
// mid-compute reloads as Pending.
type Record struct {
	Kind         Kind    `json:"kind"`
	AliasedPath  string  `json:"aliased_path"`
	AliasChannel int     `json:"alias_channel"`
	AliasStart   int64   `json:"alias_start"`
	AliasLen     int64   `json:"alias_len"`
	SummaryFile  string  `json:"summary_file,omitempty"`
	Min          float32 `json:"min,omitempty"`
	Max          float32 `json:"max,omitempty"`
	RMS          float32 `json:"rms,omitempty"`
	ClipOffset   int64   `json:"clip_offset,omitempty"`
	LocalStart   int64   `json:"local_start,omitempty"`
}

// Record captures the block for project serialization.
func (b *Block) Record() Record {
	rec := Record{
		Kind:         KindPending,
		AliasedPath:  b.AliasedPath(),
		AliasChannel: b.aliasChannel,
		AliasStart:   b.aliasStart,
		AliasLen:     b.aliasLen,
		ClipOffset:   b.clipOffset.Load(),
		LocalStart:   b.localStart.Load(),
	}

	b.stateMu.Lock()
	available := b.available
	lo, hi, rms := b.min, b.max, b.rms
	b.stateMu.Unlock()

	if available {
		rec.Kind = KindComplete
		rec.SummaryFile = b.SummaryPath()
		rec.Min, rec.Max, rec.RMS = lo, hi, rms
	}
	return rec
}

// FromRecord reconstructs a block from its persisted form. Complete
// blocks come back available with their statistics; the full summary
// tiers load lazily from the summary file on first use. Pending blocks
// come back idle, and the caller must resubmit them to the scheduler.
// Reconstruction performs no computation.
func FromRecord(rec Record, opts Options) (*Block, error) {
	switch rec.Kind {
	case KindComplete, KindPending:
	default:
		return nil, fmt.Errorf("block: unknown record kind %q", rec.Kind)
	}
	if rec.AliasedPath == "" {
		return nil, fmt.Errorf("block: record missing aliased path")
	}
	if rec.AliasLen < 0 || rec.AliasStart < 0 || rec.AliasChannel < 0 {
		return nil, fmt.Errorf("block: record has negative alias window")
	}

	b := New(rec.AliasedPath, rec.AliasChannel, rec.AliasStart, rec.AliasLen, opts)
	b.setSummaryPath(rec.SummaryFile)
	b.SetClipOffset(rec.ClipOffset)
	b.SetStart(rec.LocalStart)
	b.MarkSaved()

	if rec.Kind == KindComplete {
		if rec.SummaryFile == "" {
			return nil, fmt.Errorf("block: complete record missing summary file")
		}
		b.stateMu.Lock()
		b.available = true
		b.min, b.max, b.rms = rec.Min, rec.Max, rec.RMS
		b.stateMu.Unlock()
	}
	return b, nil
}
