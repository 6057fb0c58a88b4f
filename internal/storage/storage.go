// Package storage provides object storage abstractions for segment
// data files. Status logs stay on the local filesystem (the commit
// protocol depends on atomic rename); only segment payloads live here.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and local filesystem for testing.
type ObjectStorage interface {
	// Put writes an object, replacing any existing content.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads an object's full content.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is a no-op.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	// Used by offline reconciliation to detect orphaned segment data.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// SegmentObjectPath returns the canonical object path for a segment's
// data file.
func SegmentObjectPath(database, table, segmentID string) string {
	return fmt.Sprintf("%s/%s/segments/%s", database, table, segmentID)
}
