package registry

import (
	"context"
	"errors"
	"fmt"

	"wavecache/internal/summary"
)

// ErrLowDiskSpace is returned when persisting a summary would drop the
// cache filesystem below the configured free space floor.
var ErrLowDiskSpace = errors.New("registry: insufficient free disk space")

// FreeSpace reports total and free bytes on the cache filesystem.
func (r *Registry) FreeSpace() (total uint64, free uint64, err error) {
	return r.statfs(r.cacheDir)
}

// checkFreeSpace refuses writes when free space is at or below the floor.
// A floor of zero disables the check.
func (r *Registry) checkFreeSpace() error {
	if r.freeSpaceFloor == 0 {
		return nil
	}
	_, free, err := r.statfs(r.cacheDir)
	if err != nil {
		return fmt.Errorf("registry: statfs cache dir: %w", err)
	}
	if free <= r.freeSpaceFloor {
		return fmt.Errorf("%w: %d bytes free, floor %d", ErrLowDiskSpace, free, r.freeSpaceFloor)
	}
	return nil
}

// SummaryStore persists summary records for registry-allocated paths,
// refusing writes when disk space is low and flipping the registry row
// to available once a write lands.
type SummaryStore struct {
	r *Registry
}

// NewSummaryStore returns a block summary store backed by this registry.
func (r *Registry) NewSummaryStore() *SummaryStore { return &SummaryStore{r: r} }

func (s *SummaryStore) Write(path string, rec *summary.Record) error {
	if err := s.r.checkFreeSpace(); err != nil {
		return err
	}
	if err := summary.WriteFile(path, rec); err != nil {
		return err
	}
	if err := s.r.MarkAvailable(context.Background(), path); err != nil {
		return err
	}
	return nil
}

func (s *SummaryStore) Read(path string) (*summary.Record, error) {
	return summary.ReadFile(path)
}
