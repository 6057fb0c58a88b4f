package statuslog

import (
	"os"
	"path/filepath"
	"testing"

	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/pkg/types"
)

func testTable(t *testing.T) types.Table {
	t.Helper()
	return types.Table{
		Database:    "sales",
		Name:        "fact_agg1",
		Role:        types.RoleDerived,
		BaseTable:   "fact",
		MetadataDir: t.TempDir(),
	}
}

func TestStore_WriteRead(t *testing.T) {
	store := NewStore()
	table := testTable(t)

	entries := []types.SegmentEntry{
		{SegmentID: "0", Status: types.StatusSuccess, LoadStart: 1},
		{SegmentID: "1", Status: types.StatusMarkedForDelete, LoadStart: 2},
	}
	if err := store.Write(table, entries); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read(table)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 2 || got[0].SegmentID != "0" || got[1].Status != types.StatusMarkedForDelete {
		t.Errorf("unexpected entries: %+v", got)
	}

	// No temp files left behind by the atomic write.
	files, err := os.ReadDir(table.MetadataDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(files) != 1 || files[0].Name() != LiveName() {
		t.Errorf("unexpected metadata dir contents: %v", files)
	}
}

func TestStore_ReadMissingIsError(t *testing.T) {
	store := NewStore()
	table := testTable(t)

	if _, err := store.Read(table); err == nil {
		t.Fatal("expected error reading missing live log")
	}

	entries, err := store.ReadOrEmpty(table)
	if err != nil {
		t.Fatalf("ReadOrEmpty failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestStore_ReadCorruptIsFatal(t *testing.T) {
	store := NewStore()
	table := testTable(t)

	if err := os.WriteFile(store.LivePath(table), []byte("not a status log"), 0644); err != nil {
		t.Fatalf("failed to plant corrupt log: %v", err)
	}

	_, err := store.Read(table)
	if err == nil {
		t.Fatal("expected error for corrupt log")
	}
	if cerrors.GetCode(err) != cerrors.CodeCorruptionDetected {
		t.Errorf("got code %q, want %q", cerrors.GetCode(err), cerrors.CodeCorruptionDetected)
	}
}

func TestStore_WriteStaged(t *testing.T) {
	store := NewStore()
	table := testTable(t)

	entries := []types.SegmentEntry{{SegmentID: "0", Status: types.StatusSuccess}}
	if err := store.WriteStaged(table, "u1", entries); err != nil {
		t.Fatalf("WriteStaged failed: %v", err)
	}

	got, err := store.ReadPath(store.StagedPath(table, "u1"))
	if err != nil {
		t.Fatalf("ReadPath failed: %v", err)
	}
	if len(got) != 1 || got[0].SegmentID != "0" {
		t.Errorf("unexpected staged entries: %+v", got)
	}

	// The live log is untouched by staging.
	if _, err := store.Read(table); err == nil {
		t.Error("staging must not create a live log")
	}
}

func TestStore_MarkEntryDeleted(t *testing.T) {
	store := NewStore()
	table := testTable(t)

	entries := []types.SegmentEntry{
		{SegmentID: "0", Status: types.StatusSuccess},
		{SegmentID: "1", Status: types.StatusInsertInProgress},
	}
	path := filepath.Join(table.MetadataDir, BackupName("u1"))
	if err := store.WritePath(path, entries); err != nil {
		t.Fatalf("WritePath failed: %v", err)
	}

	if err := store.MarkEntryDeleted(path, "1"); err != nil {
		t.Fatalf("MarkEntryDeleted failed: %v", err)
	}

	got, err := store.ReadPath(path)
	if err != nil {
		t.Fatalf("ReadPath failed: %v", err)
	}
	if got[0].Status != types.StatusSuccess {
		t.Errorf("segment 0 status changed: %s", got[0].Status)
	}
	if got[1].Status != types.StatusMarkedForDelete {
		t.Errorf("segment 1 status: got %s, want %s", got[1].Status, types.StatusMarkedForDelete)
	}
}

func TestStore_MarkEntryDeletedMissingSegment(t *testing.T) {
	store := NewStore()
	table := testTable(t)

	path := filepath.Join(table.MetadataDir, BackupName("u1"))
	if err := store.WritePath(path, []types.SegmentEntry{{SegmentID: "0", Status: types.StatusSuccess}}); err != nil {
		t.Fatalf("WritePath failed: %v", err)
	}

	err := store.MarkEntryDeleted(path, "99")
	if err == nil {
		t.Fatal("expected error for missing segment")
	}
	if cerrors.GetCode(err) != cerrors.CodeEntryNotFound {
		t.Errorf("got code %q, want %q", cerrors.GetCode(err), cerrors.CodeEntryNotFound)
	}
}

func TestStore_ListArtifacts(t *testing.T) {
	store := NewStore()
	table := testTable(t)

	entries := []types.SegmentEntry{{SegmentID: "0", Status: types.StatusSuccess}}
	if err := store.Write(table, entries); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.WriteStaged(table, "u1", entries); err != nil {
		t.Fatalf("WriteStaged failed: %v", err)
	}
	if err := store.WritePath(filepath.Join(table.MetadataDir, BackupName("u1")), entries); err != nil {
		t.Fatalf("WritePath failed: %v", err)
	}
	if err := store.WriteStaged(table, "u2", entries); err != nil {
		t.Fatalf("WriteStaged failed: %v", err)
	}

	names, err := store.ListArtifacts(table, func(name string) bool {
		return BelongsToAttempt(name, "u1")
	})
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %d artifacts, want 2: %v", len(names), names)
	}
	for _, name := range names {
		if name != StagedName("u1") && name != BackupName("u1") {
			t.Errorf("unexpected artifact %q", name)
		}
	}

	// Missing directory lists as empty.
	missing := types.Table{Database: "d", Name: "t", MetadataDir: filepath.Join(table.MetadataDir, "nope")}
	names, err = store.ListArtifacts(missing, func(string) bool { return true })
	if err != nil {
		t.Fatalf("ListArtifacts on missing dir failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("got %d artifacts for missing dir, want 0", len(names))
	}
}
