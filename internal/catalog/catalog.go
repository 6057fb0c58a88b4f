package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

// Catalog manages table metadata in catalog.db.
type Catalog interface {
	// RegisterTable adds a table with its column schema. For derived
	// tables, depColumns lists the base table columns the rollup
	// aggregates over.
	RegisterTable(ctx context.Context, table types.Table, columns []types.Column, depColumns []string) error

	// GetTable retrieves a single table by database and name.
	GetTable(ctx context.Context, database, name string) (types.Table, error)

	// ListDependents returns the derived tables of a base table, in
	// registration order. The order is load-bearing: the commit
	// protocol activates staged logs in this order.
	ListDependents(ctx context.Context, database, baseTable string) ([]types.Table, error)

	// ColumnsOf returns a table's column schema in ordinal order.
	ColumnsOf(ctx context.Context, database, name string) ([]types.Column, error)

	// PartitionColumnsOf returns the table's partition column names.
	PartitionColumnsOf(ctx context.Context, database, name string) ([]string, error)

	// DependencyColumns returns the base table columns a derived table
	// aggregates over.
	DependencyColumns(ctx context.Context, database, derivedTable string) ([]string, error)

	// RenameTable renames a table. Callers must run the rename guard
	// first; the catalog itself does not enforce dependency rules.
	RenameTable(ctx context.Context, database, oldName, newName string) error

	// Close closes the catalog database connections.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)
}

// NewCatalog creates a new SQLite-based catalog.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	catalog := &SQLiteCatalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := catalog.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RegisterTable adds a table with its column schema.
func (c *SQLiteCatalog) RegisterTable(ctx context.Context, table types.Table, columns []types.Column, depColumns []string) error {
	if table.Database == "" || table.Name == "" {
		return cerrors.NewValidationError(cerrors.CodeInvalidTable,
			"table requires database and name")
	}
	if table.IsDerived() && table.BaseTable == "" {
		return cerrors.NewValidationError(cerrors.CodeInvalidTable,
			fmt.Sprintf("derived table %s must name a base table", table.QualifiedName()))
	}
	if !table.IsDerived() && table.BaseTable != "" {
		return cerrors.NewValidationError(cerrors.CodeInvalidTable,
			fmt.Sprintf("base table %s must not name a base table", table.QualifiedName()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.NewCatalogError(cerrors.CodeUnexpected, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var baseTable interface{}
	if table.BaseTable != "" {
		baseTable = table.BaseTable
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tables (database_name, table_name, role, base_table, metadata_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		table.Database, table.Name, string(table.Role), baseTable, table.MetadataDir,
		time.Now().Unix())
	if err != nil {
		return cerrors.NewCatalogError(cerrors.CodeTableExists,
			fmt.Sprintf("failed to register table %s", table.QualifiedName()), err)
	}

	for i, col := range columns {
		isPartition := 0
		if col.IsPartition {
			isPartition = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO table_columns (database_name, table_name, column_name, column_type, is_partition, ordinal)
			VALUES (?, ?, ?, ?, ?, ?)`,
			table.Database, table.Name, col.Name, col.Type, isPartition, i)
		if err != nil {
			return cerrors.NewCatalogError(cerrors.CodeUnexpected,
				fmt.Sprintf("failed to register column %s.%s", table.QualifiedName(), col.Name), err)
		}
	}

	for _, col := range depColumns {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dependency_columns (database_name, derived_table, base_column)
			VALUES (?, ?, ?)`,
			table.Database, table.Name, col)
		if err != nil {
			return cerrors.NewCatalogError(cerrors.CodeUnexpected,
				fmt.Sprintf("failed to register dependency column %s for %s", col, table.QualifiedName()), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerrors.NewCatalogError(cerrors.CodeUnexpected, "failed to commit registration", err)
	}

	return nil
}

// GetTable retrieves a single table by database and name.
func (c *SQLiteCatalog) GetTable(ctx context.Context, database, name string) (types.Table, error) {
	row := c.readDB.QueryRowContext(ctx, `
		SELECT database_name, table_name, role, base_table, metadata_dir
		FROM tables WHERE database_name = ? AND table_name = ?`,
		database, name)

	var table types.Table
	var role string
	var baseTable sql.NullString
	err := row.Scan(&table.Database, &table.Name, &role, &baseTable, &table.MetadataDir)
	if err == sql.ErrNoRows {
		return types.Table{}, cerrors.NewCatalogError(cerrors.CodeTableNotFound,
			fmt.Sprintf("table %s.%s not found", database, name), nil)
	}
	if err != nil {
		return types.Table{}, cerrors.NewCatalogError(cerrors.CodeUnexpected,
			fmt.Sprintf("failed to read table %s.%s", database, name), err)
	}

	table.Role = types.TableRole(role)
	if baseTable.Valid {
		table.BaseTable = baseTable.String
	}
	return table, nil
}

// ListDependents returns the derived tables of a base table.
func (c *SQLiteCatalog) ListDependents(ctx context.Context, database, baseTable string) ([]types.Table, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT database_name, table_name, role, base_table, metadata_dir
		FROM tables
		WHERE database_name = ? AND base_table = ?
		ORDER BY rowid`,
		database, baseTable)
	if err != nil {
		return nil, cerrors.NewCatalogError(cerrors.CodeUnexpected,
			fmt.Sprintf("failed to list dependents of %s.%s", database, baseTable), err)
	}
	defer rows.Close()

	var dependents []types.Table
	for rows.Next() {
		var table types.Table
		var role string
		var base sql.NullString
		if err := rows.Scan(&table.Database, &table.Name, &role, &base, &table.MetadataDir); err != nil {
			return nil, cerrors.NewCatalogError(cerrors.CodeUnexpected, "failed to scan dependent row", err)
		}
		table.Role = types.TableRole(role)
		if base.Valid {
			table.BaseTable = base.String
		}
		dependents = append(dependents, table)
	}
	return dependents, rows.Err()
}

// ColumnsOf returns a table's column schema in ordinal order.
func (c *SQLiteCatalog) ColumnsOf(ctx context.Context, database, name string) ([]types.Column, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT column_name, column_type, is_partition
		FROM table_columns
		WHERE database_name = ? AND table_name = ?
		ORDER BY ordinal`,
		database, name)
	if err != nil {
		return nil, cerrors.NewCatalogError(cerrors.CodeUnexpected,
			fmt.Sprintf("failed to read columns of %s.%s", database, name), err)
	}
	defer rows.Close()

	var columns []types.Column
	for rows.Next() {
		var col types.Column
		var isPartition int
		if err := rows.Scan(&col.Name, &col.Type, &isPartition); err != nil {
			return nil, cerrors.NewCatalogError(cerrors.CodeUnexpected, "failed to scan column row", err)
		}
		col.IsPartition = isPartition != 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// PartitionColumnsOf returns the table's partition column names.
func (c *SQLiteCatalog) PartitionColumnsOf(ctx context.Context, database, name string) ([]string, error) {
	columns, err := c.ColumnsOf(ctx, database, name)
	if err != nil {
		return nil, err
	}
	var partitionCols []string
	for _, col := range columns {
		if col.IsPartition {
			partitionCols = append(partitionCols, col.Name)
		}
	}
	return partitionCols, nil
}

// DependencyColumns returns the base columns a derived table uses.
func (c *SQLiteCatalog) DependencyColumns(ctx context.Context, database, derivedTable string) ([]string, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT base_column FROM dependency_columns
		WHERE database_name = ? AND derived_table = ?
		ORDER BY base_column`,
		database, derivedTable)
	if err != nil {
		return nil, cerrors.NewCatalogError(cerrors.CodeUnexpected,
			fmt.Sprintf("failed to read dependency columns of %s.%s", database, derivedTable), err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, cerrors.NewCatalogError(cerrors.CodeUnexpected, "failed to scan dependency column", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// RenameTable renames a table and updates dependency references.
func (c *SQLiteCatalog) RenameTable(ctx context.Context, database, oldName, newName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.NewCatalogError(cerrors.CodeUnexpected, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tables SET table_name = ? WHERE database_name = ? AND table_name = ?`,
		newName, database, oldName)
	if err != nil {
		return cerrors.NewCatalogError(cerrors.CodeUnexpected,
			fmt.Sprintf("failed to rename table %s.%s", database, oldName), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerrors.NewCatalogError(cerrors.CodeTableNotFound,
			fmt.Sprintf("table %s.%s not found", database, oldName), nil)
	}

	for _, stmt := range []string{
		`UPDATE tables SET base_table = ? WHERE database_name = ? AND base_table = ?`,
		`UPDATE table_columns SET table_name = ? WHERE database_name = ? AND table_name = ?`,
		`UPDATE dependency_columns SET derived_table = ? WHERE database_name = ? AND derived_table = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, newName, database, oldName); err != nil {
			return cerrors.NewCatalogError(cerrors.CodeUnexpected,
				fmt.Sprintf("failed to update references to %s.%s", database, oldName), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerrors.NewCatalogError(cerrors.CodeUnexpected, "failed to commit rename", err)
	}
	return nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	var firstErr error
	if err := c.readDB.Close(); err != nil {
		firstErr = err
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
