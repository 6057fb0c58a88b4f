// Package catalog provides the table catalog for tracking base and
// derived tables and their dependency metadata.
package catalog

// Schema contains the SQL schema definitions for the table catalog
// (catalog.db). The catalog is a SQLite database that serves as the
// source of truth for table roles, base-to-derived dependencies, and
// the column metadata the DDL guards inspect.

// CreateTablesTableSQL creates the core tables table.
const CreateTablesTableSQL = `
CREATE TABLE IF NOT EXISTS tables (
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('base', 'derived')),
    base_table TEXT,
    metadata_dir TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (database_name, table_name)
)`

// CreateColumnsTableSQL creates the per-table column metadata table.
const CreateColumnsTableSQL = `
CREATE TABLE IF NOT EXISTS table_columns (
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    column_name TEXT NOT NULL,
    column_type TEXT NOT NULL,
    is_partition INTEGER NOT NULL DEFAULT 0,
    ordinal INTEGER NOT NULL,
    PRIMARY KEY (database_name, table_name, column_name),
    FOREIGN KEY (database_name, table_name) REFERENCES tables(database_name, table_name)
)`

// CreateDependencyColumnsTableSQL creates the mapping of derived
// tables to the base table columns they aggregate over. The guards use
// this to reject schema changes that would orphan a derived table.
const CreateDependencyColumnsTableSQL = `
CREATE TABLE IF NOT EXISTS dependency_columns (
    database_name TEXT NOT NULL,
    derived_table TEXT NOT NULL,
    base_column TEXT NOT NULL,
    PRIMARY KEY (database_name, derived_table, base_column),
    FOREIGN KEY (database_name, derived_table) REFERENCES tables(database_name, table_name)
)`

// CreateCatalogIndexesSQL creates indexes for dependency lookups.
var CreateCatalogIndexesSQL = []string{
	// Index for finding the dependents of a base table
	`CREATE INDEX IF NOT EXISTS idx_tables_base ON tables(database_name, base_table)
		WHERE base_table IS NOT NULL`,

	// Index for column lookups during guard checks
	`CREATE INDEX IF NOT EXISTS idx_columns_table ON table_columns(database_name, table_name, ordinal)`,
}

// AllSchemaSQL returns every schema statement in creation order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateTablesTableSQL,
		CreateColumnsTableSQL,
		CreateDependencyColumnsTableSQL,
	}
	return append(stmts, CreateCatalogIndexesSQL...)
}
