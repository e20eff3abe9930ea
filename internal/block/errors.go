package block

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyComputing reports a re-entrant WriteSummary attempt.
	ErrAlreadyComputing = errors.New("block: summary already being computed")
	// ErrNotAvailable reports a cached-only query against a pending block.
	ErrNotAvailable = errors.New("block: summary not available")
	// ErrDecode wraps failures reading raw samples from the aliased source.
	ErrDecode = errors.New("block: decode failure")
	// ErrPersist wraps failures writing or reading the persisted summary.
	ErrPersist = errors.New("block: persist failure")
)

// errAlreadyDone is the internal begin-compute outcome for a block whose
// summary is already available; WriteSummary maps it to a no-op success.
var errAlreadyDone = errors.New("block: summary already available")

// Retryable reports whether a WriteSummary failure is worth a retry.
// A busy signal is not a failure of the block itself.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrAlreadyComputing)
}

func wrapErr(marker error, operation string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
	return fmt.Errorf("%w: %s", marker, operation)
}
