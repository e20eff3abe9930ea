package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wavecache/internal/config"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Registry manages summary file allocation and shared ownership
// persistence, backed by SQLite under the cache directory.
type Registry struct {
	db             *sql.DB
	cacheDir       string
	dbPath         string
	lock           *flock.Flock
	freeSpaceFloor uint64
	statfs         statfsFunc
}

const schema = `
CREATE TABLE IF NOT EXISTS summary_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name TEXT NOT NULL UNIQUE,
    aliased_path TEXT NOT NULL,
    alias_channel INTEGER NOT NULL,
    alias_start INTEGER NOT NULL,
    alias_len INTEGER NOT NULL,
    refcount INTEGER NOT NULL DEFAULT 1,
    available INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summary_files_refcount ON summary_files(refcount);
`

// Open connects to the registry database in cfg's cache directory,
// applies the schema, and takes the single-writer lock.
func Open(cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("registry: nil config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("registry: ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.CacheDir, "registry.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("registry: acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("registry: cache directory is in use by another process")
	}

	dbPath := filepath.Join(cfg.Paths.CacheDir, "registry.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("registry: open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("registry: apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}

	return &Registry{
		db:             db,
		cacheDir:       cfg.Paths.CacheDir,
		dbPath:         dbPath,
		lock:           lock,
		freeSpaceFloor: uint64(cfg.Compute.FreeSpaceFloorMiB) * 1024 * 1024,
		statfs:         realStatfs,
	}, nil
}

// Close releases the database connection and the directory lock.
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	var dbErr error
	if r.db != nil {
		dbErr = r.db.Close()
	}
	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	return dbErr
}

// CacheDir returns the directory summary files live under.
func (r *Registry) CacheDir() string { return r.cacheDir }

// Allocate reserves a unique summary file path for the given aliased
// window and registers it with an initial refcount of one. Files are
// sharded into two-hex-character subdirectories to keep directory
// listings manageable.
func (r *Registry) Allocate(aliasedPath string, channel int, start, length int64) (string, error) {
	name := uuid.NewString()
	fileName := filepath.Join(name[:2], name+".ods")

	dir := filepath.Join(r.cacheDir, name[:2])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("registry: create shard dir: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.Exec(
		`INSERT INTO summary_files (
            file_name, aliased_path, alias_channel, alias_start, alias_len,
            refcount, available, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		fileName,
		aliasedPath,
		channel,
		start,
		length,
		now,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("registry: insert summary file: %w", err)
	}
	return filepath.Join(r.cacheDir, fileName), nil
}

// Acquire increments the persistent refcount for a summary file,
// mirroring an in-memory Retain by another clip-level owner.
func (r *Registry) Acquire(ctx context.Context, path string) error {
	fileName, err := r.relName(path)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE summary_files SET refcount = refcount + 1, updated_at = ? WHERE file_name = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		fileName,
	)
	if err != nil {
		return fmt.Errorf("registry: acquire %s: %w", fileName, err)
	}
	return requireRow(res, fileName)
}

// Release decrements the persistent refcount and reports whether this
// was the last reference. The file itself is reclaimed by Sweep, not
// here, so an in-flight summary write can still complete into it.
func (r *Registry) Release(ctx context.Context, path string) (bool, error) {
	fileName, err := r.relName(path)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE summary_files SET refcount = refcount - 1, updated_at = ? WHERE file_name = ? AND refcount > 0`,
		time.Now().UTC().Format(time.RFC3339Nano),
		fileName,
	)
	if err != nil {
		return false, fmt.Errorf("registry: release %s: %w", fileName, err)
	}
	if err := requireRow(res, fileName); err != nil {
		return false, err
	}

	var refcount int
	row := r.db.QueryRowContext(ctx, `SELECT refcount FROM summary_files WHERE file_name = ?`, fileName)
	if err := row.Scan(&refcount); err != nil {
		return false, fmt.Errorf("registry: read refcount: %w", err)
	}
	return refcount <= 0, nil
}

// MarkAvailable records that the summary at path has been persisted.
func (r *Registry) MarkAvailable(ctx context.Context, path string) error {
	fileName, err := r.relName(path)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(
		ctx,
		`UPDATE summary_files SET available = 1, updated_at = ? WHERE file_name = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		fileName,
	)
	if err != nil {
		return fmt.Errorf("registry: mark available: %w", err)
	}
	return requireRow(res, fileName)
}

// Sweep removes rows whose refcount has reached zero and deletes their
// files, reclaiming orphans left by released blocks (including blocks
// whose write committed after the last owner let go). Returns the
// number of entries reclaimed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT file_name FROM summary_files WHERE refcount <= 0`)
	if err != nil {
		return 0, fmt.Errorf("registry: query orphans: %w", err)
	}
	var orphans []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("registry: scan orphan: %w", err)
		}
		orphans = append(orphans, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	reclaimed := 0
	for _, name := range orphans {
		full := filepath.Join(r.cacheDir, name)
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			return reclaimed, fmt.Errorf("registry: remove %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, `DELETE FROM summary_files WHERE file_name = ?`, name); err != nil {
			return reclaimed, fmt.Errorf("registry: delete row %s: %w", name, err)
		}
		reclaimed++
	}
	return reclaimed, nil
}

// Stats summarizes registry contents for diagnostics.
type Stats struct {
	Entries   int
	Available int
	Pending   int
	Orphaned  int
}

// Stats returns counts of tracked summary files by state.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN available = 1 THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN available = 0 AND refcount > 0 THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN refcount <= 0 THEN 1 ELSE 0 END), 0)
        FROM summary_files`)
	if err := row.Scan(&stats.Entries, &stats.Available, &stats.Pending, &stats.Orphaned); err != nil {
		return Stats{}, fmt.Errorf("registry: stats: %w", err)
	}
	return stats, nil
}

// Entry describes one tracked summary file.
type Entry struct {
	FileName     string
	AliasedPath  string
	AliasChannel int
	AliasStart   int64
	AliasLen     int64
	Refcount     int
	Available    bool
	UpdatedAt    time.Time
}

// List returns all tracked entries ordered by creation.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT file_name, aliased_path, alias_channel, alias_start, alias_len,
               refcount, available, updated_at
        FROM summary_files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			available  int
			updatedRaw string
		)
		if err := rows.Scan(
			&entry.FileName,
			&entry.AliasedPath,
			&entry.AliasChannel,
			&entry.AliasStart,
			&entry.AliasLen,
			&entry.Refcount,
			&available,
			&updatedRaw,
		); err != nil {
			return nil, fmt.Errorf("registry: scan entry: %w", err)
		}
		entry.Available = available != 0
		if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
			entry.UpdatedAt = t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *Registry) relName(path string) (string, error) {
	rel, err := filepath.Rel(r.cacheDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("registry: path %q is outside the cache directory", path)
	}
	return rel, nil
}

func requireRow(res sql.Result, fileName string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("registry: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("registry: unknown summary file %q", fileName)
	}
	return nil
}
