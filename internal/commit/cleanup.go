package commit

import (
	"log"
	"os"
	"path/filepath"

	"github.com/cairndb/cairn/internal/statuslog"
	"github.com/cairndb/cairn/pkg/types"
)

// Sweep removes the staged and backup artifacts of one commit attempt
// for every table the attempt touched. It runs after every attempt,
// successful or failed, and is idempotent: re-running once the
// artifacts are gone is a no-op. Artifacts of other attempt tokens are
// never matched, so concurrent attempts with different tokens cannot
// delete each other's files.
//
// Deletion is best-effort per file; a file that cannot be removed is
// logged and left for the next sweep.
func Sweep(logs *statuslog.Store, tables []types.Table, token string) {
	if token == "" {
		return
	}

	for _, table := range tables {
		names, err := logs.ListArtifacts(table, func(name string) bool {
			return statuslog.BelongsToAttempt(name, token)
		})
		if err != nil {
			log.Printf("commit: sweep could not list artifacts for %s: %v",
				table.QualifiedName(), err)
			continue
		}

		for _, name := range names {
			path := filepath.Join(table.MetadataDir, name)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Printf("commit: sweep could not remove %s: %v", path, err)
			}
		}
	}
}
