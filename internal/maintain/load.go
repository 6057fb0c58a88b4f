package maintain

import (
	"context"
	"log"
	"time"

	"github.com/cairndb/cairn/internal/catalog"
	"github.com/cairndb/cairn/internal/commit"
	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/internal/guard"
	"github.com/cairndb/cairn/internal/statuslog"
	"github.com/cairndb/cairn/internal/storage"
	"github.com/cairndb/cairn/pkg/types"
	"github.com/google/uuid"
)

// LoadOrchestrator loads a segment into a base table and propagates
// matching segments to every derived table in one commit attempt.
type LoadOrchestrator struct {
	catalog       catalog.Catalog
	logs          *statuslog.Store
	store         storage.ObjectStorage
	coordinator   *commit.Coordinator
	collaborators []guard.Collaborator
	rollup        RollupBuilder
}

// NewLoadOrchestrator creates a load orchestrator.
func NewLoadOrchestrator(
	cat catalog.Catalog,
	logs *statuslog.Store,
	store storage.ObjectStorage,
	coordinator *commit.Coordinator,
	collaborators []guard.Collaborator,
	rollup RollupBuilder,
) *LoadOrchestrator {
	return &LoadOrchestrator{
		catalog:       cat,
		logs:          logs,
		store:         store,
		coordinator:   coordinator,
		collaborators: collaborators,
		rollup:        rollup,
	}
}

// Load writes one segment into the base table and commits the matching
// derived-table segments atomically. Returns the new segment id.
//
// The base table's own status entry is durably SUCCESS before any
// derived log is activated: a derived log never shows a segment
// committed unless the base operation that produced it is committed.
// If the derived commit then fails, the base segment is demoted to
// MARKED_FOR_DELETE and the failure is fatal to the caller.
func (o *LoadOrchestrator) Load(ctx context.Context, base types.Table, req LoadRequest) (string, error) {
	if len(req.Data) == 0 {
		return "", cerrors.NewValidationError(cerrors.CodeEmptyLoad,
			"load request carries no data")
	}

	op := guard.Operation{Kind: guard.OpLoad, Table: base, PartitionValue: req.PartitionValue}
	if err := o.runBefore(ctx, op); err != nil {
		return "", err
	}

	entries, err := o.logs.ReadOrEmpty(base)
	if err != nil {
		return "", err
	}

	segID := nextSegmentID(entries)
	now := time.Now().UnixMilli()
	status := types.StatusInsertInProgress
	if req.Overwrite {
		status = types.StatusInsertOverwriteInProgress
	}

	dataPath := storage.SegmentObjectPath(base.Database, base.Name, segID)
	if err := o.store.Put(ctx, dataPath, req.Data); err != nil {
		return "", cerrors.NewStorageError(cerrors.CodeUploadFailed,
			"failed to upload segment data for "+base.QualifiedName(), err)
	}

	baseEntry := types.SegmentEntry{
		SegmentID:      segID,
		Status:         status,
		LoadStart:      now,
		DataPath:       dataPath,
		PartitionValue: req.PartitionValue,
		RowCount:       req.RowCount,
		SizeBytes:      int64(len(req.Data)),
	}
	entries = append(entries, baseEntry)
	if err := o.logs.Write(base, entries); err != nil {
		return "", err
	}

	dependents, err := o.catalog.ListDependents(ctx, base.Database, base.Name)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	defer commit.Sweep(o.logs, dependents, token)

	writes, err := o.stageDependents(ctx, base, dependents, segID, req, token, now)
	if err != nil {
		// Nothing activated yet; demote the base segment and surface
		// the staging failure.
		o.markBaseSegment(base, segID, types.StatusFailure)
		return "", err
	}

	// The base operation is committed before any derived log swaps.
	if err := o.markBaseSegment(base, segID, types.StatusSuccess); err != nil {
		return "", err
	}

	if _, err := o.coordinator.Commit(ctx, commit.OperationContext{Token: token, Overwrite: req.Overwrite}, writes); err != nil {
		o.markBaseSegment(base, segID, types.StatusMarkedForDelete)
		return "", err
	}

	o.runAfter(ctx, op)
	log.Printf("maintain: loaded segment %s into %s and %d derived tables",
		segID, base.QualifiedName(), len(dependents))
	return segID, nil
}

// stageDependents builds and durably stages one status log per derived
// table under the shared token. Any failure here aborts the attempt
// before a single rename happens.
func (o *LoadOrchestrator) stageDependents(
	ctx context.Context,
	base types.Table,
	dependents []types.Table,
	segID string,
	req LoadRequest,
	token string,
	now int64,
) ([]commit.PendingWrite, error) {
	writes := make([]commit.PendingWrite, 0, len(dependents))

	for _, dep := range dependents {
		data, rowCount, err := o.rollup.BuildRollup(ctx, dep, req.Data)
		if err != nil {
			return nil, cerrors.NewInternalError(
				"rollup build failed for "+dep.QualifiedName(), err)
		}

		depPath := storage.SegmentObjectPath(dep.Database, dep.Name, segID)
		if err := o.store.Put(ctx, depPath, data); err != nil {
			return nil, cerrors.NewStorageError(cerrors.CodeUploadFailed,
				"failed to upload segment data for "+dep.QualifiedName(), err)
		}

		depEntries, err := readLiveForStaging(o.logs, dep)
		if err != nil {
			return nil, err
		}
		depEntries = append(depEntries, types.SegmentEntry{
			SegmentID:      segID,
			Status:         types.StatusSuccess,
			LoadStart:      now,
			LoadEnd:        time.Now().UnixMilli(),
			DataPath:       depPath,
			PartitionValue: req.PartitionValue,
			RowCount:       rowCount,
			SizeBytes:      int64(len(data)),
		})

		if err := o.logs.WriteStaged(dep, token, depEntries); err != nil {
			return nil, err
		}

		writes = append(writes, commit.PendingWrite{
			Table:               dep,
			StagedPath:          o.logs.StagedPath(dep, token),
			InProgressSegmentID: segID,
		})
	}

	return writes, nil
}

// markBaseSegment rewrites the status of one segment in the base
// table's live log.
func (o *LoadOrchestrator) markBaseSegment(base types.Table, segID string, status types.SegmentStatus) error {
	entries, err := o.logs.Read(base)
	if err != nil {
		log.Printf("maintain: could not reread %s to mark segment %s %s: %v",
			base.QualifiedName(), segID, status, err)
		return err
	}
	for i := range entries {
		if entries[i].SegmentID == segID {
			entries[i].Status = status
			if status == types.StatusSuccess {
				entries[i].LoadEnd = time.Now().UnixMilli()
			}
			break
		}
	}
	if err := o.logs.Write(base, entries); err != nil {
		log.Printf("maintain: could not mark segment %s %s in %s: %v",
			segID, status, base.QualifiedName(), err)
		return err
	}
	return nil
}

func (o *LoadOrchestrator) runBefore(ctx context.Context, op guard.Operation) error {
	for _, c := range o.collaborators {
		if err := c.OnBeforeOperation(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (o *LoadOrchestrator) runAfter(ctx context.Context, op guard.Operation) {
	for _, c := range o.collaborators {
		if err := c.OnAfterOperation(ctx, op); err != nil {
			log.Printf("maintain: after-operation collaborator failed for %s: %v",
				op.Table.QualifiedName(), err)
		}
	}
}
