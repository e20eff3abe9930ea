// Package summary models precomputed waveform statistics for a block of
// audio samples: whole-block min/max/RMS plus two downsampled frame
// tiers (one frame per 256 samples and one per 65536 samples). The
// tiers let rendering code draw a waveform without touching the raw
// samples again.
//
// Records are persisted in a small fixed-layout binary file written via
// a temp-file-and-rename commit, so readers never observe a partially
// written summary.
package summary
