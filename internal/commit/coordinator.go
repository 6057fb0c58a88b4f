package commit

import (
	"context"
	"log"
	"os"

	cerrors "github.com/cairndb/cairn/internal/errors"
	"github.com/cairndb/cairn/internal/statuslog"
	"github.com/cairndb/cairn/pkg/types"
)

// Coordinator activates a set of staged status logs atomically. The
// only atomic primitive available is whole-file rename, so activation
// is backup-then-swap: rename live aside, rename staged over live.
// The pre-attempt content is never deleted before the replacement is
// confirmed in place.
//
// The coordinator assumes the surrounding orchestrator serializes
// operations per table; it takes no locks of its own.
type Coordinator struct {
	logs *statuslog.Store
}

// NewCoordinator creates a commit coordinator over the given store.
func NewCoordinator(logs *statuslog.Store) *Coordinator {
	return &Coordinator{logs: logs}
}

// activation records one table's activation outcome. swapped is false
// for vacuous activations: the table was not eligible for this attempt
// (live or staged missing) and no rename happened, so rollback has
// nothing to restore for it.
type activation struct {
	write   PendingWrite
	swapped bool
}

// Commit attempts to activate every pending write in order. On the
// first activation failure it stops, rolls back the already-activated
// prefix in activation order, and returns a single fatal error. The
// cleanup sweep is the caller's responsibility and must run on both
// outcomes.
func (c *Coordinator) Commit(ctx context.Context, opCtx OperationContext, writes []PendingWrite) (Result, error) {
	if opCtx.Token == "" {
		return Result{FailedAt: -1}, cerrors.New(cerrors.ErrCategoryCommit,
			cerrors.CodeActivationFailed, "commit attempt requires a non-empty token")
	}
	if err := ctx.Err(); err != nil {
		return Result{FailedAt: -1}, err
	}

	activated := make([]activation, 0, len(writes))
	failedAt := -1

	for i, w := range writes {
		act, err := c.activate(w, opCtx.Token)
		if err != nil {
			log.Printf("commit: activation failed for %s (token %s): %v",
				w.Table.QualifiedName(), opCtx.Token, err)
			failedAt = i
			break
		}
		activated = append(activated, act)
	}

	result := Result{
		Committed: failedAt == -1,
		FailedAt:  failedAt,
		Activated: tablesOf(activated),
	}

	if result.Committed {
		return result, nil
	}

	c.rollback(opCtx, activated)

	return result, cerrors.New(cerrors.ErrCategoryCommit, cerrors.CodeActivationFailed,
		"failed to update table status for derived tables")
}

// activate swaps the staged log in for one table. Both renames must
// succeed. When live or staged is missing the table is not eligible
// for this attempt and activation is vacuously successful: the
// orchestrator only stages a file for tables it expects to update.
func (c *Coordinator) activate(w PendingWrite, token string) (activation, error) {
	live := c.logs.LivePath(w.Table)
	staged := w.StagedPath
	if staged == "" {
		staged = c.logs.StagedPath(w.Table, token)
	}

	if !fileExists(live) || !fileExists(staged) {
		return activation{write: w, swapped: false}, nil
	}

	backup := c.logs.BackupPath(w.Table, token)
	if err := os.Rename(live, backup); err != nil {
		return activation{}, cerrors.NewCommitError(cerrors.CodeActivationFailed,
			"failed to back up live status log for "+w.Table.QualifiedName(), err)
	}

	if err := os.Rename(staged, live); err != nil {
		// The live log is currently parked at the backup name. Put it
		// back so this table ends the attempt untouched.
		if restoreErr := os.Rename(backup, live); restoreErr != nil {
			log.Printf("commit: failed to restore %s after aborted swap: %v",
				w.Table.QualifiedName(), restoreErr)
		}
		return activation{}, cerrors.NewCommitError(cerrors.CodeActivationFailed,
			"failed to activate staged status log for "+w.Table.QualifiedName(), err)
	}

	return activation{write: w, swapped: true}, nil
}

// rollback restores the pre-attempt log for every activated table, in
// the order they were activated. Before each restore, the operation's
// in-progress segment is marked MARKED_FOR_DELETE in the backup when
// the backup carries it.
// Rollback is best-effort: a failed restore leaves the table in the
// activated state and is only logged; the protocol has no further
// recovery path.
func (c *Coordinator) rollback(opCtx OperationContext, activated []activation) {
	for _, act := range activated {
		if !act.swapped {
			continue
		}

		table := act.write.Table
		backup := c.logs.BackupPath(table, opCtx.Token)
		live := c.logs.LivePath(table)

		if seg := act.write.InProgressSegmentID; seg != "" {
			// The pre-attempt log only carries the segment when the
			// operation recorded it there before staging; a backup
			// without it needs no demotion.
			err := c.logs.MarkEntryDeleted(backup, seg)
			if err != nil && cerrors.GetCode(err) != cerrors.CodeEntryNotFound {
				log.Printf("commit: rollback could not mark segment %s deleted in %s: %v",
					seg, backup, err)
			}
		}

		if err := os.Rename(backup, live); err != nil {
			rbErr := cerrors.NewCommitError(cerrors.CodeRollbackIO,
				"failed to restore backup status log for "+table.QualifiedName(), err)
			log.Printf("commit: %v; table requires manual repair", rbErr)
			continue
		}

		log.Printf("commit: rolled back %s (token %s)", table.QualifiedName(), opCtx.Token)
	}
}

func tablesOf(activated []activation) []types.Table {
	tables := make([]types.Table, 0, len(activated))
	for _, act := range activated {
		tables = append(tables, act.write.Table)
	}
	return tables
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
