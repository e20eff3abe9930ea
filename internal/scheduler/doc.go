// Package scheduler dispatches pending blocks to a pool of background
// workers that compute and persist their summaries. Transient failures
// are retried with a short delay; a block already being computed by
// another goroutine is skipped, since that computation's commit will
// make it available.
package scheduler
