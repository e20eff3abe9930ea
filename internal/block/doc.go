// Package block implements the on-demand summary block: a reference to
// a window of samples in an external audio file whose waveform summary
// is computed lazily in the background.
//
// A fresh block is a placeholder. Every query works immediately through
// the fallback decode path; once WriteSummary has committed, the same
// queries are answered from the cached summary. Availability is
// write-once: a block never becomes unavailable again.
//
// Each protected field has its own lock (state pair, summary path,
// aliased path, refcount, read exclusion) and no lock is ever acquired
// while holding another, so there is no lock ordering to get wrong.
package block
