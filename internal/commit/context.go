// Package commit implements the cross-table commit protocol for
// derived-table status logs: sequential backup-then-swap activation of
// staged logs, prefix rollback on failure, and the idempotent cleanup
// sweep that removes staged and backup artifacts afterwards.
package commit

import "github.com/cairndb/cairn/pkg/types"

// OperationContext carries the shared state of one logical
// parent-table operation through the commit call. It replaces any
// loosely-typed property passing between collaborators: every field
// the protocol needs is named here.
type OperationContext struct {
	// Token is the attempt token binding together all staged and
	// backup artifacts of this operation. Must be non-empty.
	Token string

	// Overwrite is set when the operation replaces existing segments
	// rather than appending (insert-overwrite loads).
	Overwrite bool
}

// PendingWrite names one derived table's staged status log for a
// commit attempt. The staged file is produced by the write pipeline
// and must be durably on disk before Commit runs.
type PendingWrite struct {
	// Table is the derived table whose log is being replaced.
	Table types.Table

	// StagedPath is the absolute path of the staged status log.
	StagedPath string

	// InProgressSegmentID is the segment the operation is writing.
	// During rollback this segment is marked MARKED_FOR_DELETE in the
	// backup so readers never trust a half-written segment after the
	// backup is restored.
	InProgressSegmentID string
}

// Result reports the outcome of a commit attempt.
type Result struct {
	// Committed is true when every table activated.
	Committed bool

	// FailedAt is the zero-based index of the table whose activation
	// failed, or -1 when Committed.
	FailedAt int

	// Activated lists the tables that were activated, in activation
	// order. On failure this is exactly the prefix before FailedAt.
	Activated []types.Table
}
