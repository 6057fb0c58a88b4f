package maintain

import (
	"context"
	"log"

	"github.com/cairndb/cairn/internal/catalog"
	"github.com/cairndb/cairn/internal/commit"
	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/internal/guard"
	"github.com/cairndb/cairn/internal/statuslog"
	"github.com/cairndb/cairn/pkg/types"
	"github.com/google/uuid"
)

// PartitionDropOrchestrator drops one partition from a base table and
// from every derived table that aggregates over a partition column.
// Dependents that do not carry the partition column are still part of
// the commit attempt, but with no staged log: their activation is
// vacuously successful.
type PartitionDropOrchestrator struct {
	catalog       catalog.Catalog
	logs          *statuslog.Store
	coordinator   *commit.Coordinator
	collaborators []guard.Collaborator
}

// NewPartitionDropOrchestrator creates a partition drop orchestrator.
func NewPartitionDropOrchestrator(
	cat catalog.Catalog,
	logs *statuslog.Store,
	coordinator *commit.Coordinator,
	collaborators []guard.Collaborator,
) *PartitionDropOrchestrator {
	return &PartitionDropOrchestrator{
		catalog:       cat,
		logs:          logs,
		coordinator:   coordinator,
		collaborators: collaborators,
	}
}

// DropPartition marks every segment of the given partition
// MARKED_FOR_DELETE in the base table and, atomically, in every
// affected derived table. Segment data objects are reclaimed later by
// offline reconciliation; the drop itself only rewrites status logs.
func (o *PartitionDropOrchestrator) DropPartition(ctx context.Context, base types.Table, partitionValue string) error {
	if partitionValue == "" {
		return cerrors.NewValidationError(cerrors.CodeInvalidTable,
			"partition drop requires a partition value")
	}

	op := guard.Operation{
		Kind:           guard.OpPartitionDrop,
		Table:          base,
		PartitionValue: partitionValue,
		Internal:       true,
	}
	if err := o.runBefore(ctx, op); err != nil {
		return err
	}

	entries, err := o.logs.Read(base)
	if err != nil {
		return err
	}

	dropped := make(map[string]bool)
	rewritten := make([]types.SegmentEntry, len(entries))
	copy(rewritten, entries)
	for i := range rewritten {
		if rewritten[i].PartitionValue == partitionValue && rewritten[i].Status.Visible() {
			rewritten[i].Status = types.StatusMarkedForDelete
			dropped[rewritten[i].SegmentID] = true
		}
	}
	if len(dropped) == 0 {
		log.Printf("maintain: no committed segments in partition %q of %s",
			partitionValue, base.QualifiedName())
		return nil
	}

	partitionCols, err := o.catalog.PartitionColumnsOf(ctx, base.Database, base.Name)
	if err != nil {
		return err
	}

	dependents, err := o.catalog.ListDependents(ctx, base.Database, base.Name)
	if err != nil {
		return err
	}

	token := uuid.NewString()
	defer commit.Sweep(o.logs, dependents, token)

	writes := make([]commit.PendingWrite, 0, len(dependents))
	for _, dep := range dependents {
		write := commit.PendingWrite{
			Table:      dep,
			StagedPath: o.logs.StagedPath(dep, token),
		}

		affected, err := o.dependentCarriesPartition(ctx, dep, partitionCols)
		if err != nil {
			return err
		}
		if affected {
			depEntries, err := readLiveForStaging(o.logs, dep)
			if err != nil {
				return err
			}
			for i := range depEntries {
				if dropped[depEntries[i].SegmentID] && depEntries[i].Status.Visible() {
					depEntries[i].Status = types.StatusMarkedForDelete
				}
			}
			if err := o.logs.WriteStaged(dep, token, depEntries); err != nil {
				return err
			}
		}
		// Unaffected dependents stage nothing: their activation is
		// vacuous and their live log is never touched.

		writes = append(writes, write)
	}

	// Base commits first; derived logs follow atomically.
	if err := o.logs.Write(base, rewritten); err != nil {
		return err
	}

	if _, err := o.coordinator.Commit(ctx, commit.OperationContext{Token: token}, writes); err != nil {
		if restoreErr := o.logs.Write(base, entries); restoreErr != nil {
			log.Printf("maintain: could not restore %s after failed partition drop commit: %v",
				base.QualifiedName(), restoreErr)
		}
		return err
	}

	o.runAfter(ctx, op)
	log.Printf("maintain: dropped partition %q of %s (%d segments, %d derived tables)",
		partitionValue, base.QualifiedName(), len(dropped), len(dependents))
	return nil
}

// dependentCarriesPartition reports whether the derived table
// aggregates over any of the base table's partition columns.
func (o *PartitionDropOrchestrator) dependentCarriesPartition(ctx context.Context, dep types.Table, partitionCols []string) (bool, error) {
	depCols, err := o.catalog.DependencyColumns(ctx, dep.Database, dep.Name)
	if err != nil {
		return false, err
	}
	for _, pc := range partitionCols {
		for _, dc := range depCols {
			if pc == dc {
				return true, nil
			}
		}
	}
	return false, nil
}

func (o *PartitionDropOrchestrator) runBefore(ctx context.Context, op guard.Operation) error {
	for _, c := range o.collaborators {
		if err := c.OnBeforeOperation(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (o *PartitionDropOrchestrator) runAfter(ctx context.Context, op guard.Operation) {
	for _, c := range o.collaborators {
		if err := c.OnAfterOperation(ctx, op); err != nil {
			log.Printf("maintain: after-operation collaborator failed for %s: %v",
				op.Table.QualifiedName(), err)
		}
	}
}
