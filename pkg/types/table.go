package types

// TableRole distinguishes base tables from the derived rollup tables
// maintained from them.
type TableRole string

const (
	// RoleBase marks a table that receives data loads directly.
	RoleBase TableRole = "base"

	// RoleDerived marks a rollup table maintained from a base table.
	RoleDerived TableRole = "derived"
)

// Table identifies one table and locates its status log artifacts.
type Table struct {
	// Database is the owning database name.
	Database string `json:"database"`

	// Name is the table name, unique within the database.
	Name string `json:"name"`

	// Role is base or derived.
	Role TableRole `json:"role"`

	// BaseTable names the base table a derived table depends on.
	// Empty for base tables.
	BaseTable string `json:"base_table,omitempty"`

	// MetadataDir is the directory holding this table's status log
	// and its staged/backup copies.
	MetadataDir string `json:"metadata_dir"`
}

// QualifiedName returns database.name.
func (t Table) QualifiedName() string {
	return t.Database + "." + t.Name
}

// IsDerived reports whether the table is a derived rollup table.
func (t Table) IsDerived() bool {
	return t.Role == RoleDerived
}

// Column describes one column of a table's schema.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	IsPartition bool   `json:"is_partition,omitempty"`
}
