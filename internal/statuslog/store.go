package statuslog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/pkg/types"
	"github.com/google/uuid"
)

// Store reads and writes per-table status logs. It is a pure
// file-state abstraction: all durability comes from whole-file
// write-to-temp-then-rename, the only primitive the underlying
// filesystem guarantees atomic.
type Store struct{}

// NewStore creates a status log store.
func NewStore() *Store {
	return &Store{}
}

// LivePath returns the path of the table's authoritative status log.
func (s *Store) LivePath(table types.Table) string {
	return filepath.Join(table.MetadataDir, LiveName())
}

// StagedPath returns the path of the table's staged log for token.
func (s *Store) StagedPath(table types.Table, token string) string {
	return filepath.Join(table.MetadataDir, StagedName(token))
}

// BackupPath returns the path of the table's backup log for token.
func (s *Store) BackupPath(table types.Table, token string) string {
	return filepath.Join(table.MetadataDir, BackupName(token))
}

// Read returns the ordered entries of the table's live status log.
// An unreadable or corrupt file is a fatal error for the table.
func (s *Store) Read(table types.Table) ([]types.SegmentEntry, error) {
	return s.ReadPath(s.LivePath(table))
}

// ReadOrEmpty returns the live log entries, or an empty log when the
// file does not exist yet. Used only by first-load paths; all other
// readers go through Read so a missing log is not silently ignored.
func (s *Store) ReadOrEmpty(table types.Table) ([]types.SegmentEntry, error) {
	entries, err := s.ReadPath(s.LivePath(table))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []types.SegmentEntry{}, nil
		}
		return nil, err
	}
	return entries, nil
}

// ReadPath reads and decodes the status log at the given path.
func (s *Store) ReadPath(path string) ([]types.SegmentEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to read status log %s", path), err)
	}

	entries, err := Decode(data)
	if err != nil {
		return nil, cerrors.NewStatusLogError(cerrors.CodeCorruptionDetected,
			fmt.Sprintf("corrupt status log %s", path), err)
	}

	return entries, nil
}

// Write replaces the table's live status log in one atomic step.
func (s *Store) Write(table types.Table, entries []types.SegmentEntry) error {
	return s.WritePath(s.LivePath(table), entries)
}

// WriteStaged writes the table's staged log for the given commit
// attempt token. The staged file must be durably on disk before the
// commit protocol runs.
func (s *Store) WriteStaged(table types.Table, token string, entries []types.SegmentEntry) error {
	return s.WritePath(s.StagedPath(table, token), entries)
}

// WritePath encodes entries and atomically replaces the file at path:
// write to a temp file in the same directory, fsync, then rename.
// Concurrent readers see either the old content or the new, never a
// partial write.
func (s *Store) WritePath(path string, entries []types.SegmentEntry) error {
	data, err := Encode(entries)
	if err != nil {
		return cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to encode status log %s", path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to create metadata directory %s", dir), err)
	}

	tmp := path + ".tmp." + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to create temp status log %s", tmp), err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to write temp status log %s", tmp), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to sync temp status log %s", tmp), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to close temp status log %s", tmp), err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to replace status log %s", path), err)
	}

	return nil
}

// MarkEntryDeleted rewrites the single entry matching segmentID in the
// log at path to MARKED_FOR_DELETE and persists the whole log. Used
// during rollback to flag an in-flight segment as abandoned in the
// backup before the backup is restored over the live log.
func (s *Store) MarkEntryDeleted(path, segmentID string) error {
	entries, err := s.ReadPath(path)
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].SegmentID == segmentID {
			entries[i].Status = types.StatusMarkedForDelete
			found = true
			break
		}
	}
	if !found {
		return cerrors.NewStatusLogError(cerrors.CodeEntryNotFound,
			fmt.Sprintf("segment %s not found in %s", segmentID, path), nil)
	}

	return s.WritePath(path, entries)
}

// ListArtifacts returns the file names in the table's metadata
// directory for which pred returns true. A missing directory lists as
// empty: there is nothing to find.
func (s *Store) ListArtifacts(table types.Table, pred func(name string) bool) ([]string, error) {
	files, err := os.ReadDir(table.MetadataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerrors.NewStatusLogError(cerrors.CodeStagingIO,
			fmt.Sprintf("failed to list metadata directory %s", table.MetadataDir), err)
	}

	var names []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if pred(f.Name()) {
			names = append(names, f.Name())
		}
	}
	return names, nil
}
