package block

import (
	"errors"

	"wavecache/internal/decode"
	"wavecache/internal/summary"
)

// MinMax returns the extrema and RMS of the block-relative sample range
// [start, start+n). When the summary is available it is answered from
// the cached record; otherwise the raw samples are decoded and
// summarized. Both paths resolve the range at fine-frame granularity,
// aggregating every 256-sample frame that overlaps it, so the answer
// does not change when the block transitions to available.
func (b *Block) MinMax(start, n int64) (float32, float32, float32, error) {
	if rec, err := b.summaryRecord(); err == nil {
		return rec.MinMax(start, n)
	} else if !errors.Is(err, ErrNotAvailable) {
		return 0, 0, 0, err
	}

	if start < 0 || n < 0 || start+n > b.aliasLen {
		return 0, 0, 0, wrapErr(ErrDecode, "range outside block", decode.ErrRangeOutOfBounds)
	}
	if n == 0 {
		return 0, 0, 0, nil
	}

	// Widen to the frame boundaries the summary would aggregate over.
	lo := (start / summary.FineFrameSamples) * summary.FineFrameSamples
	hi := ((start+n-1)/summary.FineFrameSamples + 1) * summary.FineFrameSamples
	if hi > b.aliasLen {
		hi = b.aliasLen
	}
	samples, err := b.decodeRange(lo, hi-lo)
	if err != nil {
		return 0, 0, 0, err
	}
	mn, mx, rms := summary.MinMaxOf(samples)
	return mn, mx, rms, nil
}

// BlockMinMax returns the extrema and RMS of the entire block.
func (b *Block) BlockMinMax() (float32, float32, float32, error) {
	b.stateMu.Lock()
	if b.available {
		lo, hi, rms := b.min, b.max, b.rms
		b.stateMu.Unlock()
		return lo, hi, rms, nil
	}
	b.stateMu.Unlock()
	return b.MinMax(0, b.aliasLen)
}

// ReadFine fills dst with fine-tier frames (one per 256 samples)
// starting at frame index frameStart, using the summary when available
// and the fallback decode path otherwise.
func (b *Block) ReadFine(dst []summary.Frame, frameStart int64) error {
	if rec, err := b.summaryRecord(); err == nil {
		return rec.ReadFine(dst, frameStart)
	} else if !errors.Is(err, ErrNotAvailable) {
		return err
	}
	return b.computeFrames(dst, frameStart, summary.FineFrameSamples)
}

// ReadCoarse fills dst with coarse-tier frames (one per 65536 samples)
// starting at frame index frameStart.
func (b *Block) ReadCoarse(dst []summary.Frame, frameStart int64) error {
	if rec, err := b.summaryRecord(); err == nil {
		return rec.ReadCoarse(dst, frameStart)
	} else if !errors.Is(err, ErrNotAvailable) {
		return err
	}
	return b.computeFrames(dst, frameStart, summary.CoarseFrameSamples)
}

// ReadData decodes n raw samples at block-relative index start. Always
// served from the aliased source; independent of summary state.
func (b *Block) ReadData(start, n int64) ([]float32, error) {
	return b.decodeRange(start, n)
}

// SummaryStats returns the persisted block statistics without falling
// back to a decode. Callers that only want cached data (status displays,
// cheap previews) use this and handle ErrNotAvailable themselves.
func (b *Block) SummaryStats() (float32, float32, float32, error) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if !b.available {
		return 0, 0, 0, ErrNotAvailable
	}
	return b.min, b.max, b.rms, nil
}

// computeFrames is the fallback tier read: decode the samples covering
// the requested frames and summarize them directly. Frames are aligned
// to the block start, so the output matches what Compute would produce.
func (b *Block) computeFrames(dst []summary.Frame, frameStart, perFrame int64) error {
	sampleStart := frameStart * perFrame
	sampleEnd := sampleStart + int64(len(dst))*perFrame
	if sampleEnd > b.aliasLen {
		sampleEnd = b.aliasLen
	}
	if len(dst) == 0 {
		if frameStart < 0 {
			return wrapErr(ErrDecode, "frame range outside block", summary.ErrRangeOutOfBounds)
		}
		return nil
	}
	totalFrames := (b.aliasLen + perFrame - 1) / perFrame
	if frameStart < 0 || frameStart+int64(len(dst)) > totalFrames {
		return wrapErr(ErrDecode, "frame range outside block", summary.ErrRangeOutOfBounds)
	}

	samples, err := b.decodeRange(sampleStart, sampleEnd-sampleStart)
	if err != nil {
		return err
	}
	for i := range dst {
		lo := int64(i) * perFrame
		hi := lo + perFrame
		if hi > int64(len(samples)) {
			hi = int64(len(samples))
		}
		dst[i] = summary.FrameOf(samples[lo:hi])
	}
	return nil
}

// summaryRecord returns the full summary record for an available block,
// lazily loading it from the summary file when the block was
// reconstructed from a saved project. Pending blocks get ErrNotAvailable.
func (b *Block) summaryRecord() (*summary.Record, error) {
	b.stateMu.Lock()
	if !b.available {
		b.stateMu.Unlock()
		return nil, ErrNotAvailable
	}
	if b.rec != nil {
		rec := b.rec
		b.stateMu.Unlock()
		return rec, nil
	}
	b.stateMu.Unlock()

	// Load outside stateMu; the path lock and store IO must not nest
	// under the state lock. available is terminal, so the block cannot
	// regress while we read.
	path := b.SummaryPath()
	if path == "" {
		return nil, wrapErr(ErrPersist, "available block has no summary path", nil)
	}
	rec, err := b.store.Read(path)
	if err != nil {
		return nil, wrapErr(ErrPersist, "read summary file", err)
	}

	b.stateMu.Lock()
	if b.rec == nil {
		b.rec = rec
	}
	rec = b.rec
	b.stateMu.Unlock()
	return rec, nil
}
