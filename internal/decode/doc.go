// Package decode pulls raw samples out of external audio files. Sources
// deliver interleaved float32 samples normalized to [-1, 1]; ReadRange
// extracts a single channel over a sample window, which is the shape the
// block cache consumes.
//
// The decoders are not safe for concurrent use on one file; callers
// serialize access (the block core does this with its read-exclusion
// lock).
package decode
