// ABOUTME: Coarse rollback deleting all migration-created hierarchy rows
// ABOUTME: Children-first deletes keyed off the pre-migration snapshot

package migrate

import (
	"context"
	"fmt"
	"time"
)

// Rollback deletes every hierarchy row created since the snapshot was
// taken. Books and legacy chapters are untouched: migration never
// mutates them beyond aggregate columns, which the hierarchy no longer
// backs once deleted.
//
// Rollback is coarse: it removes ALL hierarchy rows, not just this
// run's, so it is only safe when the snapshotted migration is the sole
// writer of the hierarchy tables. It is best-effort: each level is
// deleted independently and failures are collected, not fatal.
func (e *Engine) Rollback(ctx context.Context) (*RollbackResult, error) {
	e.mu.Lock()
	snap := e.snapshot
	e.mu.Unlock()

	if snap == nil {
		return nil, ErrNoSnapshot
	}

	start := time.Now()
	result := &RollbackResult{}

	e.log.Info().
		Time("snapshot_taken", snap.TakenAt).
		Int("book_count", snap.BookCount).
		Msg("Starting rollback")

	// Children first so a partial rollback never leaves a parent
	// pointing at deleted children
	steps := []struct {
		name    string
		deleted *int64
		fn      func(context.Context) (int64, error)
	}{
		{"search_index", &result.DeletedSearchEntries, e.store.DeleteAllSearchEntries},
		{"hierarchy_paths", &result.DeletedPaths, e.store.DeleteAllHierarchyPaths},
		{"scenes", &result.DeletedScenes, e.store.DeleteAllScenes},
		{"chapters", &result.DeletedChapters, e.store.DeleteAllChapters},
		{"parts", &result.DeletedParts, e.store.DeleteAllParts},
		{"stories", &result.DeletedStories, e.store.DeleteAllStories},
	}

	for _, step := range steps {
		n, err := step.fn(ctx)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", step.name, err))
			continue
		}
		*step.deleted = n
	}

	result.Success = len(result.Errors) == 0
	result.DataRestored = result.Success
	result.Duration = time.Since(start)

	totalDeleted := result.DeletedSearchEntries + result.DeletedPaths +
		result.DeletedScenes + result.DeletedChapters +
		result.DeletedParts + result.DeletedStories

	if result.Success {
		// The snapshot is consumed; a second rollback needs a new run
		e.mu.Lock()
		e.snapshot = nil
		e.mu.Unlock()
	}

	e.log.LogRollback(totalDeleted, result.Duration, nil)
	if e.metrics != nil {
		e.metrics.RecordRollback(result.Success, totalDeleted)
	}

	return result, nil
}
