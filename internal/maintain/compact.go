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

// CompactionOrchestrator merges a base table's committed segments into
// one and applies the matching merge to every derived table in one
// commit attempt.
type CompactionOrchestrator struct {
	catalog       catalog.Catalog
	logs          *statuslog.Store
	store         storage.ObjectStorage
	coordinator   *commit.Coordinator
	collaborators []guard.Collaborator
	merger        SegmentMerger

	// minSegments is the minimum number of committed segments before
	// a compaction is attempted.
	minSegments int
}

// NewCompactionOrchestrator creates a compaction orchestrator.
func NewCompactionOrchestrator(
	cat catalog.Catalog,
	logs *statuslog.Store,
	store storage.ObjectStorage,
	coordinator *commit.Coordinator,
	collaborators []guard.Collaborator,
	merger SegmentMerger,
	minSegments int,
) *CompactionOrchestrator {
	if minSegments < 2 {
		minSegments = 2
	}
	return &CompactionOrchestrator{
		catalog:       cat,
		logs:          logs,
		store:         store,
		coordinator:   coordinator,
		collaborators: collaborators,
		merger:        merger,
		minSegments:   minSegments,
	}
}

// Compact merges the base table's SUCCESS segments into a new segment
// and commits the matching derived-table merges atomically. Returns
// the merged segment id, or "" when there is nothing to compact.
func (o *CompactionOrchestrator) Compact(ctx context.Context, base types.Table) (string, error) {
	op := guard.Operation{Kind: guard.OpCompaction, Table: base, Internal: true}
	if err := o.runBefore(ctx, op); err != nil {
		return "", err
	}

	entries, err := o.logs.Read(base)
	if err != nil {
		return "", err
	}

	var sources []types.SegmentEntry
	for _, e := range entries {
		if e.Status == types.StatusSuccess {
			sources = append(sources, e)
		}
	}
	if len(sources) < o.minSegments {
		log.Printf("maintain: %s has %d committed segments, below compaction threshold %d",
			base.QualifiedName(), len(sources), o.minSegments)
		return "", nil
	}

	sourceIDs := make(map[string]bool, len(sources))
	payloads := make([][]byte, 0, len(sources))
	for _, src := range sources {
		data, err := o.store.Get(ctx, src.DataPath)
		if err != nil {
			return "", cerrors.NewStorageError(cerrors.CodeDownloadFailed,
				"failed to download segment "+src.SegmentID+" of "+base.QualifiedName(), err)
		}
		payloads = append(payloads, data)
		sourceIDs[src.SegmentID] = true
	}

	merged, rowCount, err := o.merger.MergeSegments(ctx, base, payloads)
	if err != nil {
		return "", cerrors.NewInternalError(
			"segment merge failed for "+base.QualifiedName(), err)
	}

	newID := nextSegmentID(entries)
	now := time.Now().UnixMilli()
	mergedPath := storage.SegmentObjectPath(base.Database, base.Name, newID)
	if err := o.store.Put(ctx, mergedPath, merged); err != nil {
		return "", cerrors.NewStorageError(cerrors.CodeUploadFailed,
			"failed to upload merged segment for "+base.QualifiedName(), err)
	}

	// Pre-attempt copy of the base log, for deterministic restore if
	// the derived commit fails.
	before := make([]types.SegmentEntry, len(entries))
	copy(before, entries)

	rewritten := applyMerge(entries, sourceIDs, types.SegmentEntry{
		SegmentID: newID,
		Status:    types.StatusSuccess,
		LoadStart: now,
		LoadEnd:   now,
		DataPath:  mergedPath,
		RowCount:  rowCount,
		SizeBytes: int64(len(merged)),
	})

	dependents, err := o.catalog.ListDependents(ctx, base.Database, base.Name)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	defer commit.Sweep(o.logs, dependents, token)

	writes, err := o.stageDependents(ctx, dependents, sourceIDs, newID, now, token)
	if err != nil {
		return "", err
	}

	// Base commits first; derived logs follow atomically.
	if err := o.logs.Write(base, rewritten); err != nil {
		return "", err
	}

	if _, err := o.coordinator.Commit(ctx, commit.OperationContext{Token: token}, writes); err != nil {
		// Put the base log back the way it was; the merged data
		// object is swept up by offline reconciliation.
		if restoreErr := o.logs.Write(base, before); restoreErr != nil {
			log.Printf("maintain: could not restore %s after failed compaction commit: %v",
				base.QualifiedName(), restoreErr)
		}
		return "", err
	}

	o.runAfter(ctx, op)
	log.Printf("maintain: compacted %d segments of %s into segment %s",
		len(sources), base.QualifiedName(), newID)
	return newID, nil
}

// stageDependents merges each derived table's copies of the source
// segments and stages the rewritten log under the shared token.
func (o *CompactionOrchestrator) stageDependents(
	ctx context.Context,
	dependents []types.Table,
	sourceIDs map[string]bool,
	newID string,
	now int64,
	token string,
) ([]commit.PendingWrite, error) {
	writes := make([]commit.PendingWrite, 0, len(dependents))

	for _, dep := range dependents {
		depEntries, err := readLiveForStaging(o.logs, dep)
		if err != nil {
			return nil, err
		}

		payloads := make([][]byte, 0, len(sourceIDs))
		for _, e := range depEntries {
			if sourceIDs[e.SegmentID] && e.Status == types.StatusSuccess {
				data, err := o.store.Get(ctx, e.DataPath)
				if err != nil {
					return nil, cerrors.NewStorageError(cerrors.CodeDownloadFailed,
						"failed to download segment "+e.SegmentID+" of "+dep.QualifiedName(), err)
				}
				payloads = append(payloads, data)
			}
		}

		merged, rowCount, err := o.merger.MergeSegments(ctx, dep, payloads)
		if err != nil {
			return nil, cerrors.NewInternalError(
				"segment merge failed for "+dep.QualifiedName(), err)
		}

		mergedPath := storage.SegmentObjectPath(dep.Database, dep.Name, newID)
		if err := o.store.Put(ctx, mergedPath, merged); err != nil {
			return nil, cerrors.NewStorageError(cerrors.CodeUploadFailed,
				"failed to upload merged segment for "+dep.QualifiedName(), err)
		}

		staged := applyMerge(depEntries, sourceIDs, types.SegmentEntry{
			SegmentID: newID,
			Status:    types.StatusSuccess,
			LoadStart: now,
			LoadEnd:   now,
			DataPath:  mergedPath,
			RowCount:  rowCount,
			SizeBytes: int64(len(merged)),
		})

		if err := o.logs.WriteStaged(dep, token, staged); err != nil {
			return nil, err
		}

		writes = append(writes, commit.PendingWrite{
			Table:               dep,
			StagedPath:          o.logs.StagedPath(dep, token),
			InProgressSegmentID: newID,
		})
	}

	return writes, nil
}

// applyMerge marks the source entries COMPACTED into newEntry's id and
// appends newEntry.
func applyMerge(entries []types.SegmentEntry, sourceIDs map[string]bool, newEntry types.SegmentEntry) []types.SegmentEntry {
	out := make([]types.SegmentEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if sourceIDs[out[i].SegmentID] && out[i].Status == types.StatusSuccess {
			out[i].Status = types.StatusCompacted
			out[i].MergedInto = newEntry.SegmentID
		}
	}
	return append(out, newEntry)
}

func (o *CompactionOrchestrator) runBefore(ctx context.Context, op guard.Operation) error {
	for _, c := range o.collaborators {
		if err := c.OnBeforeOperation(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (o *CompactionOrchestrator) runAfter(ctx context.Context, op guard.Operation) {
	for _, c := range o.collaborators {
		if err := c.OnAfterOperation(ctx, op); err != nil {
			log.Printf("maintain: after-operation collaborator failed for %s: %v",
				op.Table.QualifiedName(), err)
		}
	}
}
