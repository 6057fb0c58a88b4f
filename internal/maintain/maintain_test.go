package maintain

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cairndb/cairn/internal/catalog"
	"github.com/cairndb/cairn/internal/commit"
	"github.com/cairndb/cairn/internal/guard"
	"github.com/cairndb/cairn/internal/statuslog"
	"github.com/cairndb/cairn/internal/storage"
	"github.com/cairndb/cairn/pkg/types"
)

// testEnv wires a real catalog, local object storage, and the commit
// coordinator into the orchestrators, all rooted in a temp directory.
type testEnv struct {
	cat           *catalog.SQLiteCatalog
	logs          *statuslog.Store
	store         *storage.LocalStorage
	coordinator   *commit.Coordinator
	collaborators []guard.Collaborator
	metaRoot      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	cat, err := catalog.NewCatalog(filepath.Join(root, "catalog.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	store, err := storage.NewLocalStorage(filepath.Join(root, "objects"))
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	logs := statuslog.NewStore()
	return &testEnv{
		cat:           cat,
		logs:          logs,
		store:         store,
		coordinator:   commit.NewCoordinator(logs),
		collaborators: []guard.Collaborator{guard.New(cat)},
		metaRoot:      filepath.Join(root, "meta"),
	}
}

func (e *testEnv) register(t *testing.T, table types.Table, columns []types.Column, depCols []string) types.Table {
	t.Helper()
	table.MetadataDir = filepath.Join(e.metaRoot, table.Database, table.Name)
	if err := e.cat.RegisterTable(context.Background(), table, columns, depCols); err != nil {
		t.Fatalf("failed to register %s: %v", table.QualifiedName(), err)
	}
	return table
}

// salesTables registers the standard fixture: base sales.fact with a
// region partition, fact_agg1 aggregating over region, and fact_agg2
// aggregating over amount only.
func (e *testEnv) salesTables(t *testing.T) (base, agg1, agg2 types.Table) {
	t.Helper()
	base = e.register(t, types.Table{
		Database: "sales", Name: "fact", Role: types.RoleBase,
	}, []types.Column{
		{Name: "region", Type: "string", IsPartition: true},
		{Name: "amount", Type: "int64"},
	}, nil)

	agg1 = e.register(t, types.Table{
		Database: "sales", Name: "fact_agg1", Role: types.RoleDerived, BaseTable: "fact",
	}, nil, []string{"region"})

	agg2 = e.register(t, types.Table{
		Database: "sales", Name: "fact_agg2", Role: types.RoleDerived, BaseTable: "fact",
	}, nil, []string{"amount"})

	return base, agg1, agg2
}

func (e *testEnv) loader() *LoadOrchestrator {
	return NewLoadOrchestrator(e.cat, e.logs, e.store, e.coordinator, e.collaborators, PassthroughPipeline{})
}

func (e *testEnv) readLive(t *testing.T, table types.Table) []types.SegmentEntry {
	t.Helper()
	entries, err := e.logs.Read(table)
	if err != nil {
		t.Fatalf("failed to read live log of %s: %v", table.QualifiedName(), err)
	}
	return entries
}

// assertClean fails if the table's metadata directory holds anything
// besides the live log.
func (e *testEnv) assertClean(t *testing.T, table types.Table) {
	t.Helper()
	names, err := e.logs.ListArtifacts(table, func(name string) bool {
		return name != statuslog.LiveName()
	})
	if err != nil {
		t.Fatalf("ListArtifacts failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("%s has leftover artifacts: %v", table.QualifiedName(), names)
	}
}

func statusOf(entries []types.SegmentEntry, segID string) (types.SegmentStatus, bool) {
	for _, e := range entries {
		if e.SegmentID == segID {
			return e.Status, true
		}
	}
	return "", false
}

// failingRollup aborts every rollup build.
type failingRollup struct{}

func (failingRollup) BuildRollup(ctx context.Context, derived types.Table, baseData []byte) ([]byte, int64, error) {
	return nil, 0, errors.New("rollup build exploded")
}

// failingMerger aborts every segment merge.
type failingMerger struct{}

func (failingMerger) MergeSegments(ctx context.Context, table types.Table, payloads [][]byte) ([]byte, int64, error) {
	return nil, 0, errors.New("merge exploded")
}
