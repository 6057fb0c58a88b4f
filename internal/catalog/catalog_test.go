package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/pkg/types"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := NewCatalog(dbPath)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() {
		cat.Close()
		os.Remove(dbPath)
	})
	return cat
}

func baseWithDependents(t *testing.T, cat *SQLiteCatalog) (types.Table, []types.Table) {
	t.Helper()
	ctx := context.Background()

	base := types.Table{
		Database:    "sales",
		Name:        "fact",
		Role:        types.RoleBase,
		MetadataDir: "/meta/sales/fact",
	}
	columns := []types.Column{
		{Name: "region", Type: "string", IsPartition: true},
		{Name: "amount", Type: "int64"},
		{Name: "quantity", Type: "int64"},
	}
	if err := cat.RegisterTable(ctx, base, columns, nil); err != nil {
		t.Fatalf("failed to register base table: %v", err)
	}

	agg1 := types.Table{
		Database:    "sales",
		Name:        "fact_agg1",
		Role:        types.RoleDerived,
		BaseTable:   "fact",
		MetadataDir: "/meta/sales/fact_agg1",
	}
	if err := cat.RegisterTable(ctx, agg1,
		[]types.Column{{Name: "region", Type: "string"}, {Name: "total", Type: "int64"}},
		[]string{"region", "amount"}); err != nil {
		t.Fatalf("failed to register fact_agg1: %v", err)
	}

	agg2 := types.Table{
		Database:    "sales",
		Name:        "fact_agg2",
		Role:        types.RoleDerived,
		BaseTable:   "fact",
		MetadataDir: "/meta/sales/fact_agg2",
	}
	if err := cat.RegisterTable(ctx, agg2,
		[]types.Column{{Name: "total_quantity", Type: "int64"}},
		[]string{"quantity"}); err != nil {
		t.Fatalf("failed to register fact_agg2: %v", err)
	}

	return base, []types.Table{agg1, agg2}
}

func TestCatalog_RegisterAndGetTable(t *testing.T) {
	cat := newTestCatalog(t)
	base, dependents := baseWithDependents(t, cat)
	ctx := context.Background()

	got, err := cat.GetTable(ctx, "sales", "fact")
	if err != nil {
		t.Fatalf("GetTable failed: %v", err)
	}
	if got != base {
		t.Errorf("base table mismatch: got %+v, want %+v", got, base)
	}

	got, err = cat.GetTable(ctx, "sales", "fact_agg1")
	if err != nil {
		t.Fatalf("GetTable failed: %v", err)
	}
	if got != dependents[0] {
		t.Errorf("derived table mismatch: got %+v, want %+v", got, dependents[0])
	}
}

func TestCatalog_GetTableNotFound(t *testing.T) {
	cat := newTestCatalog(t)

	_, err := cat.GetTable(context.Background(), "sales", "nope")
	if err == nil {
		t.Fatal("expected error for unknown table")
	}
	if cerrors.GetCode(err) != cerrors.CodeTableNotFound {
		t.Errorf("got code %q, want %q", cerrors.GetCode(err), cerrors.CodeTableNotFound)
	}
}

func TestCatalog_RegisterDuplicate(t *testing.T) {
	cat := newTestCatalog(t)
	baseWithDependents(t, cat)

	err := cat.RegisterTable(context.Background(), types.Table{
		Database:    "sales",
		Name:        "fact",
		Role:        types.RoleBase,
		MetadataDir: "/elsewhere",
	}, nil, nil)
	if err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestCatalog_RegisterValidation(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	// Derived table without a base.
	err := cat.RegisterTable(ctx, types.Table{
		Database: "sales", Name: "orphan", Role: types.RoleDerived, MetadataDir: "/m",
	}, nil, nil)
	if err == nil {
		t.Error("expected error for derived table without base")
	}

	// Base table naming a base.
	err = cat.RegisterTable(ctx, types.Table{
		Database: "sales", Name: "odd", Role: types.RoleBase, BaseTable: "fact", MetadataDir: "/m",
	}, nil, nil)
	if err == nil {
		t.Error("expected error for base table naming a base")
	}
}

func TestCatalog_ListDependents(t *testing.T) {
	cat := newTestCatalog(t)
	_, want := baseWithDependents(t, cat)

	dependents, err := cat.ListDependents(context.Background(), "sales", "fact")
	if err != nil {
		t.Fatalf("ListDependents failed: %v", err)
	}
	if len(dependents) != 2 {
		t.Fatalf("got %d dependents, want 2", len(dependents))
	}
	// Registration order is preserved.
	if dependents[0] != want[0] || dependents[1] != want[1] {
		t.Errorf("dependents out of order: %+v", dependents)
	}

	none, err := cat.ListDependents(context.Background(), "sales", "fact_agg1")
	if err != nil {
		t.Fatalf("ListDependents failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("derived table has %d dependents, want 0", len(none))
	}
}

// TestCatalog_ListDependentsRegistrationOrder registers dependents in
// anti-alphabetical order so any fallback to name ordering would show.
func TestCatalog_ListDependentsRegistrationOrder(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	base := types.Table{
		Database: "sales", Name: "fact", Role: types.RoleBase, MetadataDir: "/m/fact",
	}
	if err := cat.RegisterTable(ctx, base, nil, nil); err != nil {
		t.Fatalf("failed to register base table: %v", err)
	}

	names := []string{"fact_z", "fact_m", "fact_a"}
	for _, name := range names {
		dep := types.Table{
			Database: "sales", Name: name, Role: types.RoleDerived,
			BaseTable: "fact", MetadataDir: "/m/" + name,
		}
		if err := cat.RegisterTable(ctx, dep, nil, nil); err != nil {
			t.Fatalf("failed to register %s: %v", name, err)
		}
	}

	dependents, err := cat.ListDependents(ctx, "sales", "fact")
	if err != nil {
		t.Fatalf("ListDependents failed: %v", err)
	}
	if len(dependents) != len(names) {
		t.Fatalf("got %d dependents, want %d", len(dependents), len(names))
	}
	for i, name := range names {
		if dependents[i].Name != name {
			t.Errorf("dependent %d: got %s, want %s", i, dependents[i].Name, name)
		}
	}
}

func TestCatalog_Columns(t *testing.T) {
	cat := newTestCatalog(t)
	baseWithDependents(t, cat)
	ctx := context.Background()

	columns, err := cat.ColumnsOf(ctx, "sales", "fact")
	if err != nil {
		t.Fatalf("ColumnsOf failed: %v", err)
	}
	if len(columns) != 3 || columns[0].Name != "region" || !columns[0].IsPartition {
		t.Errorf("unexpected columns: %+v", columns)
	}

	partitionCols, err := cat.PartitionColumnsOf(ctx, "sales", "fact")
	if err != nil {
		t.Fatalf("PartitionColumnsOf failed: %v", err)
	}
	if len(partitionCols) != 1 || partitionCols[0] != "region" {
		t.Errorf("unexpected partition columns: %v", partitionCols)
	}

	depCols, err := cat.DependencyColumns(ctx, "sales", "fact_agg1")
	if err != nil {
		t.Fatalf("DependencyColumns failed: %v", err)
	}
	if len(depCols) != 2 || depCols[0] != "amount" || depCols[1] != "region" {
		t.Errorf("unexpected dependency columns: %v", depCols)
	}
}

func TestCatalog_RenameTable(t *testing.T) {
	cat := newTestCatalog(t)
	baseWithDependents(t, cat)
	ctx := context.Background()

	if err := cat.RenameTable(ctx, "sales", "fact", "fact_v2"); err != nil {
		t.Fatalf("RenameTable failed: %v", err)
	}

	if _, err := cat.GetTable(ctx, "sales", "fact"); err == nil {
		t.Error("old name still resolves")
	}
	if _, err := cat.GetTable(ctx, "sales", "fact_v2"); err != nil {
		t.Errorf("new name does not resolve: %v", err)
	}

	// Dependency edges follow the rename.
	dependents, err := cat.ListDependents(ctx, "sales", "fact_v2")
	if err != nil {
		t.Fatalf("ListDependents failed: %v", err)
	}
	if len(dependents) != 2 {
		t.Errorf("got %d dependents after rename, want 2", len(dependents))
	}

	if err := cat.RenameTable(ctx, "sales", "missing", "other"); err == nil {
		t.Error("expected error renaming unknown table")
	}
}
