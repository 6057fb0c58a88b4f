// Package guard implements the precondition checks that protect
// derived-table consistency. Each guard inspects catalog metadata and
// either accepts an operation or rejects it with a reason before any
// state is touched. Guards are invoked directly by the orchestrators
// at fixed extension points; there is no event bus.
package guard

import (
	"context"
	"fmt"

	"github.com/cairndb/cairn/internal/catalog"
	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/pkg/types"
)

// OperationKind names a proposed table operation.
type OperationKind string

const (
	OpLoad          OperationKind = "load"
	OpCompaction    OperationKind = "compaction"
	OpPartitionDrop OperationKind = "partition_drop"
	OpRenameTable   OperationKind = "rename_table"
	OpAlterColumn   OperationKind = "alter_column"
	OpDropColumn    OperationKind = "drop_column"
	OpUpdate        OperationKind = "update"
	OpDelete        OperationKind = "delete"
	OpDeleteSegment OperationKind = "delete_segment"
)

// Operation describes a proposed change for the guards to inspect.
type Operation struct {
	Kind  OperationKind
	Table types.Table

	// Columns lists the columns affected by alter/drop operations.
	Columns []string

	// PartitionValue is the partition affected by a partition drop.
	PartitionValue string

	// Internal is set when the maintenance pipeline itself performs
	// the operation. Direct writes to derived tables are only allowed
	// through the pipeline.
	Internal bool
}

// Collaborator is the extension point the orchestrators invoke around
// every operation. OnBeforeOperation may reject the operation;
// OnAfterOperation observes its outcome.
type Collaborator interface {
	OnBeforeOperation(ctx context.Context, op Operation) error
	OnAfterOperation(ctx context.Context, op Operation) error
}

// Guards is the standard set of derived-table consistency checks.
type Guards struct {
	catalog catalog.Catalog
}

// New creates the standard guard set over the given catalog.
func New(cat catalog.Catalog) *Guards {
	return &Guards{catalog: cat}
}

// OnBeforeOperation rejects operations that would violate
// derived-table consistency. It mutates nothing.
func (g *Guards) OnBeforeOperation(ctx context.Context, op Operation) error {
	switch op.Kind {
	case OpLoad:
		return g.checkLoad(op)
	case OpRenameTable:
		return g.checkRename(ctx, op)
	case OpAlterColumn, OpDropColumn:
		return g.checkColumnChange(ctx, op)
	case OpUpdate, OpDelete, OpDeleteSegment:
		return g.checkDirectMutation(ctx, op)
	case OpCompaction, OpPartitionDrop:
		if op.Table.IsDerived() && !op.Internal {
			return reject(op, fmt.Sprintf(
				"cannot run %s directly on derived table %s; it is maintained from %s",
				op.Kind, op.Table.QualifiedName(), op.Table.BaseTable))
		}
		return nil
	default:
		return nil
	}
}

// OnAfterOperation is a no-op for guards; they are pure preconditions.
func (g *Guards) OnAfterOperation(ctx context.Context, op Operation) error {
	return nil
}

// checkLoad rejects direct loads into derived tables. Derived tables
// receive data only through the internal maintenance pipeline.
func (g *Guards) checkLoad(op Operation) error {
	if op.Table.IsDerived() && !op.Internal {
		return reject(op, fmt.Sprintf(
			"cannot load data directly into derived table %s; load its base table %s instead",
			op.Table.QualifiedName(), op.Table.BaseTable))
	}
	return nil
}

// checkRename rejects renaming a derived table or a base table with
// dependents: either would break the recorded dependency edges.
func (g *Guards) checkRename(ctx context.Context, op Operation) error {
	if op.Table.IsDerived() {
		return reject(op, fmt.Sprintf(
			"cannot rename derived table %s", op.Table.QualifiedName()))
	}

	dependents, err := g.catalog.ListDependents(ctx, op.Table.Database, op.Table.Name)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return reject(op, fmt.Sprintf(
			"cannot rename base table %s: %d derived tables depend on it",
			op.Table.QualifiedName(), len(dependents)))
	}
	return nil
}

// checkColumnChange rejects altering or dropping a base table column
// (including partition columns) that a derived table aggregates over.
func (g *Guards) checkColumnChange(ctx context.Context, op Operation) error {
	if op.Table.IsDerived() {
		return reject(op, fmt.Sprintf(
			"cannot %s on derived table %s", op.Kind, op.Table.QualifiedName()))
	}

	dependents, err := g.catalog.ListDependents(ctx, op.Table.Database, op.Table.Name)
	if err != nil {
		return err
	}

	for _, dep := range dependents {
		depCols, err := g.catalog.DependencyColumns(ctx, dep.Database, dep.Name)
		if err != nil {
			return err
		}
		for _, affected := range op.Columns {
			for _, used := range depCols {
				if affected == used {
					return reject(op, fmt.Sprintf(
						"cannot %s column %s of %s: derived table %s depends on it",
						op.Kind, affected, op.Table.QualifiedName(), dep.QualifiedName()))
				}
			}
		}
	}
	return nil
}

// checkDirectMutation rejects update/delete/segment-deletion against a
// derived table or a base table with dependents; those paths would
// bypass the commit protocol and desynchronize the status logs.
func (g *Guards) checkDirectMutation(ctx context.Context, op Operation) error {
	if op.Internal {
		return nil
	}

	if op.Table.IsDerived() {
		return reject(op, fmt.Sprintf(
			"cannot run %s directly on derived table %s", op.Kind, op.Table.QualifiedName()))
	}

	dependents, err := g.catalog.ListDependents(ctx, op.Table.Database, op.Table.Name)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return reject(op, fmt.Sprintf(
			"cannot run %s directly on %s: %d derived tables depend on it",
			op.Kind, op.Table.QualifiedName(), len(dependents)))
	}
	return nil
}

func reject(op Operation, reason string) error {
	return cerrors.NewValidationError(cerrors.CodePreconditionRejected, reason).
		WithDetails(map[string]interface{}{
			"operation": string(op.Kind),
			"table":     op.Table.QualifiedName(),
		})
}
