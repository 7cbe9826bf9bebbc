package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Snapshot errors.
var (
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrSnapshotExists    = errors.New("snapshot already exists")
	ErrSnapshotCorrupted = errors.New("snapshot integrity check failed")
	ErrInvalidSnapshotID = errors.New("invalid snapshot id")
)

// SnapshotInfo describes one copy of the local database.
type SnapshotInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
	Auto          bool           `json:"auto"`
}

// SnapshotManager copies the sqlite database aside before imports replace
// records, and restores those copies. Snapshots live next to the database
// in a snapshots directory, one .db file and one .meta.json file each.
type SnapshotManager struct {
	store    *SQLiteStore
	now      func() time.Time
	dir      string
	keepAuto int
}

// NewSnapshotManager prepares the snapshot directory for store. keepAuto
// bounds how many automatic snapshots are retained.
func NewSnapshotManager(store *SQLiteStore, keepAuto int) (*SnapshotManager, error) {
	if store.dbPath == ":memory:" {
		return nil, fmt.Errorf("%w: in-memory databases cannot be snapshotted", ErrInvalidSnapshotID)
	}
	dir := filepath.Join(filepath.Dir(store.dbPath), "snapshots")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}
	return &SnapshotManager{store: store, dir: dir, keepAuto: keepAuto, now: time.Now}, nil
}

// Dir returns the directory holding the snapshots.
func (m *SnapshotManager) Dir() string {
	return m.dir
}

// Create copies the database under id. An empty id is generated from the
// current time.
func (m *SnapshotManager) Create(ctx context.Context, id, description string) (*SnapshotInfo, error) {
	return m.create(ctx, id, description, false)
}

// Auto snapshots the database before reason and prunes automatic
// snapshots beyond the retention limit.
func (m *SnapshotManager) Auto(ctx context.Context, reason string) (*SnapshotInfo, error) {
	id := fmt.Sprintf("auto-%s-%s", reason, m.now().Format("20060102-150405.000"))
	info, err := m.create(ctx, id, "Automatic snapshot before "+reason, true)
	if err != nil {
		return nil, err
	}
	if err := m.prune(ctx); err != nil {
		slog.Warn("Failed to prune old snapshots", "error", err)
	}
	return info, nil
}

func (m *SnapshotManager) create(ctx context.Context, id, description string, auto bool) (*SnapshotInfo, error) {
	if id == "" {
		id = "snapshot-" + m.now().Format("20060102-150405")
	}
	if err := validateSnapshotID(id); err != nil {
		return nil, err
	}
	dbFile, metaFile := m.paths(id)
	if _, err := os.Stat(dbFile); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotExists, id)
	}

	version, err := m.store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := m.store.rowCounts(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.store.vacuumInto(ctx, dbFile); err != nil {
		return nil, fmt.Errorf("failed to copy database: %w", err)
	}
	stat, err := os.Stat(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	info := SnapshotInfo{
		ID:            id,
		CreatedAt:     m.now(),
		Description:   description,
		FileSize:      stat.Size(),
		RowCounts:     counts,
		SchemaVersion: version,
		Auto:          auto,
	}
	if err := writeJSONFile(metaFile, info); err != nil {
		if rmErr := os.Remove(dbFile); rmErr != nil {
			slog.Error("Failed to remove snapshot after metadata failure", "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save snapshot metadata: %w", err)
	}
	slog.Info("Created snapshot", "id", id, "bytes", info.FileSize)
	return &info, nil
}

// List returns every snapshot, newest first. Snapshots with unreadable
// metadata are skipped.
func (m *SnapshotManager) List(_ context.Context) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	var out []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := readSnapshotMeta(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			slog.Debug("Skipping unreadable snapshot metadata", "file", entry.Name(), "error", err)
			continue
		}
		out = append(out, *info)
	}
	slices.SortFunc(out, func(a, b SnapshotInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Get returns the metadata of one snapshot.
func (m *SnapshotManager) Get(_ context.Context, id string) (*SnapshotInfo, error) {
	if err := validateSnapshotID(id); err != nil {
		return nil, err
	}
	_, metaFile := m.paths(id)
	info, err := readSnapshotMeta(metaFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return info, err
}

// Restore replaces the database with snapshot id. It closes the store; the
// caller must reopen the database afterwards.
func (m *SnapshotManager) Restore(ctx context.Context, id string) error {
	if err := validateSnapshotID(id); err != nil {
		return err
	}
	dbFile, _ := m.paths(id)
	if _, err := os.Stat(dbFile); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("failed to access snapshot: %w", err)
	}
	if err := checkIntegrity(ctx, dbFile); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotCorrupted, err)
	}

	// Fold the WAL into the main file so the backup below is complete.
	if _, err := m.store.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	target := m.store.dbPath
	backup := target + ".restore-backup"
	if err := copyFile(target, backup); err != nil {
		return fmt.Errorf("failed to back up current database: %w", err)
	}
	if err := copyFile(dbFile, target); err != nil {
		if restoreErr := copyFile(backup, target); restoreErr != nil {
			slog.Error("Failed to put the previous database back", "error", restoreErr)
		}
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	for _, stale := range []string{backup, target + "-wal", target + "-shm"} {
		if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove file after restore", "file", stale, "error", err)
		}
	}
	slog.Info("Restored snapshot", "id", id)
	return nil
}

// Delete removes snapshot id.
func (m *SnapshotManager) Delete(_ context.Context, id string) error {
	if err := validateSnapshotID(id); err != nil {
		return err
	}
	dbFile, metaFile := m.paths(id)
	if err := os.Remove(dbFile); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	if err := os.Remove(metaFile); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to remove snapshot metadata", "error", err, "id", id)
	}
	return nil
}

func (m *SnapshotManager) prune(ctx context.Context) error {
	all, err := m.List(ctx)
	if err != nil {
		return err
	}
	kept := 0
	for _, s := range all {
		if !s.Auto {
			continue
		}
		kept++
		if kept > m.keepAuto {
			if err := m.Delete(ctx, s.ID); err != nil {
				slog.Debug("Failed to prune snapshot", "id", s.ID, "error", err)
			}
		}
	}
	return nil
}

func (m *SnapshotManager) paths(id string) (string, string) {
	return filepath.Join(m.dir, id+".db"), filepath.Join(m.dir, id+".meta.json")
}

func validateSnapshotID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\'";`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidSnapshotID, id)
	}
	return nil
}

// rowCounts counts the rows of each data table.
func (s *SQLiteStore) rowCounts(ctx context.Context) (map[string]int, error) {
	queries := map[string]string{
		"comparisons":     "SELECT COUNT(*) FROM comparisons",
		"support_threads": "SELECT COUNT(*) FROM support_threads",
		"import_runs":     "SELECT COUNT(*) FROM import_runs",
	}
	counts := make(map[string]int, len(queries))
	for table, query := range queries {
		var n int
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// vacuumInto writes a compacted, consistent copy of the database to dest.
func (s *SQLiteStore) vacuumInto(ctx context.Context, dest string) error {
	if !filepath.IsAbs(dest) {
		abs, err := filepath.Abs(dest)
		if err != nil {
			return err
		}
		dest = abs
	}
	if strings.ContainsAny(dest, `'";`) {
		return fmt.Errorf("invalid destination path %q", dest)
	}
	// #nosec G201 - dest is checked above
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest))
	return err
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return errors.New(result)
	}
	return nil
}

func copyFile(src, dst string) error {
	// #nosec G304 - paths come from the store and snapshot directory
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	// #nosec G304
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readSnapshotMeta(path string) (*SnapshotInfo, error) {
	// #nosec G304 - path is built from a validated id
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info SnapshotInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
