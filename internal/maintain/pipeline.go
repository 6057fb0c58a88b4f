// Package maintain implements the orchestrators that keep derived
// tables consistent with their base table across loads, compactions,
// and partition drops. Each orchestrator stages one status log per
// dependent table under a shared attempt token, then hands the staged
// set to the commit coordinator; the cleanup sweep runs on both
// outcomes.
package maintain

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/cairndb/cairn/internal/statuslog"
	"github.com/cairndb/cairn/pkg/types"
)

// LoadRequest describes one load into a base table. The payload is
// opaque to the maintenance pipeline; deciding what the bytes mean is
// the write pipeline's concern.
type LoadRequest struct {
	// PartitionValue is the partition the load targets, when the base
	// table is partitioned.
	PartitionValue string

	// Data is the encoded segment payload for the base table.
	Data []byte

	// RowCount is the number of logical rows in the payload.
	RowCount int64

	// Overwrite replaces existing segments instead of appending.
	Overwrite bool
}

// RollupBuilder produces a derived table's segment payload from the
// base table's payload. Query planning and row selection live behind
// this interface; the orchestrators treat it as a black box.
type RollupBuilder interface {
	BuildRollup(ctx context.Context, derived types.Table, baseData []byte) (data []byte, rowCount int64, err error)
}

// SegmentMerger combines several segment payloads into one during
// compaction.
type SegmentMerger interface {
	MergeSegments(ctx context.Context, table types.Table, payloads [][]byte) (data []byte, rowCount int64, err error)
}

// PassthroughPipeline is the trivial RollupBuilder and SegmentMerger:
// rollups copy the base payload and merges concatenate. Used by the
// CLI and tests; real deployments plug in their own pipeline.
type PassthroughPipeline struct{}

func (PassthroughPipeline) BuildRollup(ctx context.Context, derived types.Table, baseData []byte) ([]byte, int64, error) {
	cp := make([]byte, len(baseData))
	copy(cp, baseData)
	return cp, 0, nil
}

func (PassthroughPipeline) MergeSegments(ctx context.Context, table types.Table, payloads [][]byte) ([]byte, int64, error) {
	return bytes.Join(payloads, nil), 0, nil
}

// readLiveForStaging returns a dependent's live log entries ahead of
// staging, materializing an empty live file first when the table has
// never committed. Activation swaps the live file aside; a dependent
// staged without one would be skipped as vacuous and the staged log
// lost to the sweep.
func readLiveForStaging(logs *statuslog.Store, dep types.Table) ([]types.SegmentEntry, error) {
	entries, err := logs.ReadOrEmpty(dep)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(logs.LivePath(dep)); errors.Is(err, fs.ErrNotExist) {
		if err := logs.Write(dep, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// nextSegmentID returns the next numeric segment identifier for a log.
// Segment ids are monotonically increasing decimal strings; ids that
// do not parse are ignored.
func nextSegmentID(entries []types.SegmentEntry) string {
	next := 0
	for _, e := range entries {
		if n, err := strconv.Atoi(e.SegmentID); err == nil && n >= next {
			next = n + 1
		}
	}
	return strconv.Itoa(next)
}
