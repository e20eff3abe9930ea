package summary

import (
	"errors"
	"fmt"
	"math"
)

const (
	// FineFrameSamples is the number of raw samples summarized by one
	// fine-tier frame.
	FineFrameSamples = 256
	// CoarseFrameSamples is the number of raw samples summarized by one
	// coarse-tier frame (256 fine frames).
	CoarseFrameSamples = 65536
)

var ErrRangeOutOfBounds = errors.New("summary: range out of bounds")

// Frame holds the extrema and RMS of one downsample window.
type Frame struct {
	Min float32
	Max float32
	RMS float32
}

// Record is the computed summary of one block of samples.
type Record struct {
	Len    int64 // number of raw samples summarized
	Min    float32
	Max    float32
	RMS    float32
	Fine   []Frame
	Coarse []Frame
}

// Compute builds a Record from raw samples in a single pass.
// Accumulation runs in float64 to keep the recombined tier statistics
// consistent with a direct computation over the same samples.
func Compute(samples []float32) *Record {
	rec := &Record{
		Len:    int64(len(samples)),
		Fine:   make([]Frame, frameCount(int64(len(samples)), FineFrameSamples)),
		Coarse: make([]Frame, frameCount(int64(len(samples)), CoarseFrameSamples)),
	}
	if len(samples) == 0 {
		return rec
	}

	for i := range rec.Fine {
		lo := i * FineFrameSamples
		hi := min(lo+FineFrameSamples, len(samples))
		rec.Fine[i] = computeFrame(samples[lo:hi])
	}
	for i := range rec.Coarse {
		lo := i * CoarseFrameSamples
		hi := min(lo+CoarseFrameSamples, len(samples))
		rec.Coarse[i] = computeFrame(samples[lo:hi])
	}

	block := computeFrame(samples)
	rec.Min, rec.Max, rec.RMS = block.Min, block.Max, block.RMS
	return rec
}

// FrameOf summarizes one window of samples into a Frame.
func FrameOf(samples []float32) Frame {
	return computeFrame(samples)
}

func computeFrame(samples []float32) Frame {
	frame := Frame{Min: float32(math.Inf(1)), Max: float32(math.Inf(-1))}
	var sumsq float64
	for _, s := range samples {
		if s < frame.Min {
			frame.Min = s
		}
		if s > frame.Max {
			frame.Max = s
		}
		sumsq += float64(s) * float64(s)
	}
	if len(samples) == 0 {
		return Frame{}
	}
	frame.RMS = float32(math.Sqrt(sumsq / float64(len(samples))))
	return frame
}

// MinMaxOf aggregates extrema and RMS over samples at fine-frame
// granularity, chunking from the start of the slice. The arithmetic is
// the same as Record.MinMax over the covering frames, so a caller that
// widens a sample range to fine-frame boundaries gets the answer the
// persisted record would give for that range.
func MinMaxOf(samples []float32) (float32, float32, float32) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	lo := float32(math.Inf(1))
	hi := float32(math.Inf(-1))
	var sumsq float64
	var total int64
	for off := 0; off < len(samples); off += FineFrameSamples {
		end := min(off+FineFrameSamples, len(samples))
		frame := computeFrame(samples[off:end])
		if frame.Min < lo {
			lo = frame.Min
		}
		if frame.Max > hi {
			hi = frame.Max
		}
		length := int64(end - off)
		sumsq += float64(frame.RMS) * float64(frame.RMS) * float64(length)
		total += length
	}
	return lo, hi, float32(math.Sqrt(sumsq / float64(total)))
}

// MinMax aggregates extrema and RMS over the sample range [start, start+n).
// The range resolves at fine-frame granularity: every frame overlapping
// the range contributes whole, and RMS is recombined from per-frame
// values weighted by true frame lengths.
func (r *Record) MinMax(start, n int64) (float32, float32, float32, error) {
	if err := r.checkRange(start, n); err != nil {
		return 0, 0, 0, err
	}
	if n == 0 {
		return 0, 0, 0, nil
	}

	first := start / FineFrameSamples
	last := (start + n - 1) / FineFrameSamples

	lo := float32(math.Inf(1))
	hi := float32(math.Inf(-1))
	var sumsq float64
	var total int64
	for i := first; i <= last; i++ {
		frame := r.Fine[i]
		if frame.Min < lo {
			lo = frame.Min
		}
		if frame.Max > hi {
			hi = frame.Max
		}
		length := r.fineFrameLen(i)
		sumsq += float64(frame.RMS) * float64(frame.RMS) * float64(length)
		total += length
	}
	rms := float32(math.Sqrt(sumsq / float64(total)))
	return lo, hi, rms, nil
}

// ReadFine copies fine-tier frames [frameStart, frameStart+len(dst)) into dst.
func (r *Record) ReadFine(dst []Frame, frameStart int64) error {
	return readFrames(dst, r.Fine, frameStart)
}

// ReadCoarse copies coarse-tier frames [frameStart, frameStart+len(dst)) into dst.
func (r *Record) ReadCoarse(dst []Frame, frameStart int64) error {
	return readFrames(dst, r.Coarse, frameStart)
}

func readFrames(dst, src []Frame, start int64) error {
	if start < 0 || start+int64(len(dst)) > int64(len(src)) {
		return fmt.Errorf("%w: frames [%d, %d) of %d", ErrRangeOutOfBounds, start, start+int64(len(dst)), len(src))
	}
	copy(dst, src[start:start+int64(len(dst))])
	return nil
}

// FineFrames returns the number of fine-tier frames.
func (r *Record) FineFrames() int64 { return int64(len(r.Fine)) }

// CoarseFrames returns the number of coarse-tier frames.
func (r *Record) CoarseFrames() int64 { return int64(len(r.Coarse)) }

func (r *Record) checkRange(start, n int64) error {
	if start < 0 || n < 0 || start+n > r.Len {
		return fmt.Errorf("%w: samples [%d, %d) of %d", ErrRangeOutOfBounds, start, start+n, r.Len)
	}
	return nil
}

func (r *Record) fineFrameLen(i int64) int64 {
	lo := i * FineFrameSamples
	hi := lo + FineFrameSamples
	if hi > r.Len {
		hi = r.Len
	}
	return hi - lo
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Fine = append([]Frame(nil), r.Fine...)
	out.Coarse = append([]Frame(nil), r.Coarse...)
	return &out
}

func frameCount(samples, per int64) int64 {
	if samples <= 0 {
		return 0
	}
	return (samples + per - 1) / per
}
