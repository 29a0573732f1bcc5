package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// tempPrefix names every temporary script; CleanupOrphaned only touches
// files that carry it.
const tempPrefix = "gistrun-"

// OrphanAge is how old a leftover temporary script must be before
// CleanupOrphaned removes it.
const OrphanAge = time.Hour

// CleanupOrphaned removes temporary scripts older than olderThan from the
// runner's temp dir. Most are left by a process killed before its deferred
// removal ran, but age is the only test: the artifact of a concurrent
// invocation whose script has run longer than olderThan is removed too. On
// Unix that run is unaffected, since the interpreter already holds the file
// open and the owning runner ignores ErrNotExist when it cleans up. On
// Windows the open file cannot be removed and is skipped. Files owned by
// other users are skipped.
func (r *Runner) CleanupOrphaned(olderThan time.Duration) (int, error) {
	dir := r.tempDir
	if dir == "" {
		dir = os.TempDir()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-olderThan)
	var cleaned int
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), tempPrefix) || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, os.ErrPermission) {
				log.Warn().Err(err).Str("path", path).Msg("failed to remove orphaned script")
			}
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		log.Debug().Int("count", cleaned).Str("dir", dir).Msg("removed orphaned scripts")
	}
	return cleaned, nil
}
