package types

// SegmentStatus is the lifecycle state of one segment in a status log.
type SegmentStatus string

const (
	StatusInsertInProgress          SegmentStatus = "INSERT_IN_PROGRESS"
	StatusInsertOverwriteInProgress SegmentStatus = "INSERT_OVERWRITE_IN_PROGRESS"
	StatusSuccess                   SegmentStatus = "SUCCESS"
	StatusPartialSuccess            SegmentStatus = "PARTIAL_SUCCESS"
	StatusMarkedForDelete           SegmentStatus = "MARKED_FOR_DELETE"
	StatusCompacted                 SegmentStatus = "COMPACTED"
	StatusFailure                   SegmentStatus = "FAILURE"
)

// Valid reports whether s is one of the defined statuses.
func (s SegmentStatus) Valid() bool {
	switch s {
	case StatusInsertInProgress, StatusInsertOverwriteInProgress,
		StatusSuccess, StatusPartialSuccess,
		StatusMarkedForDelete, StatusCompacted, StatusFailure:
		return true
	}
	return false
}

// Visible reports whether readers should consider the segment's data.
func (s SegmentStatus) Visible() bool {
	return s == StatusSuccess || s == StatusPartialSuccess
}

// SegmentEntry is one record in a table's status log. The log is an
// ordered sequence of entries; the whole file is the unit of persistence.
type SegmentEntry struct {
	// SegmentID identifies the logical data segment.
	SegmentID string `json:"segment_id"`

	// Status is the segment's lifecycle state.
	Status SegmentStatus `json:"status"`

	// LoadStart and LoadEnd are unix millisecond timestamps. LoadEnd is
	// zero while the load is in progress.
	LoadStart int64 `json:"load_start"`
	LoadEnd   int64 `json:"load_end,omitempty"`

	// DataPath is the object storage path of the segment's data file.
	DataPath string `json:"data_path,omitempty"`

	// PartitionValue is the partition the segment belongs to, when the
	// table is partitioned.
	PartitionValue string `json:"partition_value,omitempty"`

	// MergedInto names the segment this one was compacted into.
	MergedInto string `json:"merged_into,omitempty"`

	RowCount  int64 `json:"row_count,omitempty"`
	SizeBytes int64 `json:"size_bytes,omitempty"`
}
