// Package project serializes block sets to project documents and
// reconstructs them on load. Saving never waits for background
// computation; blocks still pending are written in their placeholder
// shape and resubmitted for computation after a load.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"wavecache/internal/block"
	"wavecache/internal/fileutil"
)

const documentVersion = 1

// Document is the on-disk shape of a saved project.
type Document struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Blocks  []block.Record `json:"blocks"`
}

// Save writes the blocks to a project document at path. Every block
// serializes in whatever state it is in right now, then is marked saved
// so later Release calls know its summary file is referenced on disk.
func Save(path string, blocks []*block.Block) error {
	doc := Document{
		Version: documentVersion,
		SavedAt: time.Now().UTC(),
		Blocks:  make([]block.Record, 0, len(blocks)),
	}
	for _, b := range blocks {
		doc.Blocks = append(doc.Blocks, b.Record())
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("project: marshal document: %w", err)
	}
	data = append(data, '\n')

	if err := fileutil.WriteAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("project: write %s: %w", path, err)
	}

	for _, b := range blocks {
		b.MarkSaved()
	}
	return nil
}

// Load reads a project document and reconstructs its blocks with the
// given collaborators. No summaries are computed or read during the
// load; complete blocks answer queries from their recorded statistics
// until their summary file is first needed.
func Load(path string, opts block.Options) ([]*block.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: read %s: %w", path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("project: parse %s: %w", path, err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("project: unsupported document version %d", doc.Version)
	}

	blocks := make([]*block.Block, 0, len(doc.Blocks))
	for i, rec := range doc.Blocks {
		b, err := block.FromRecord(rec, opts)
		if err != nil {
			return nil, fmt.Errorf("project: block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// Pending filters the blocks that still need background computation.
// Callers resubmit these to the scheduler after a load.
func Pending(blocks []*block.Block) []*block.Block {
	var pending []*block.Block
	for _, b := range blocks {
		if !b.IsAvailable() {
			pending = append(pending, b)
		}
	}
	return pending
}
