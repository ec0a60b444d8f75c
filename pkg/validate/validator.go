// ABOUTME: Pre- and post-migration integrity validation passes
// ABOUTME: Pure reads against the store, never mutates state

package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/nainya/storyforge/pkg/store"
)

// Validator runs read-only integrity passes against the store
type Validator struct {
	store *store.Store
}

// NewValidator creates a validator bound to a store
func NewValidator(s *store.Store) *Validator {
	return &Validator{store: s}
}

// PreMigration detects problems that make the flat corpus unsuitable
// for migration: missing references, duplicates, and invalid values.
func (v *Validator) PreMigration(ctx context.Context) (*ValidationResult, error) {
	start := time.Now()
	result := &ValidationResult{Phase: PhasePre}

	missingAuthors, err := v.store.BooksMissingAuthor(ctx)
	if err != nil {
		return nil, fmt.Errorf("pre-migration validation: %w", err)
	}
	for _, id := range missingAuthors {
		result.Counters.MissingReferences++
		result.addWarning(fmt.Sprintf("book %s has no author reference", id))
	}

	orphans, err := v.store.OrphanedLegacyChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("pre-migration validation: %w", err)
	}
	for _, id := range orphans {
		result.Counters.MissingReferences++
		result.addError(fmt.Sprintf("chapter %s references a nonexistent book", id))
	}

	dups, err := v.store.DuplicateChapterNumbers(ctx)
	if err != nil {
		return nil, fmt.Errorf("pre-migration validation: %w", err)
	}
	for _, d := range dups {
		result.Counters.DuplicateEntries++
		result.addError(fmt.Sprintf("book %s has %d chapters numbered %d", d.BookID, d.Count, d.ChapterNumber))
	}

	negative, err := v.store.NegativeWordCountChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("pre-migration validation: %w", err)
	}
	for _, id := range negative {
		result.Counters.WordCountMismatches++
		result.addError(fmt.Sprintf("chapter %s has a negative word count", id))
	}

	emptyBooks, err := v.store.BooksWithEmptyTitle(ctx)
	if err != nil {
		return nil, fmt.Errorf("pre-migration validation: %w", err)
	}
	for _, id := range emptyBooks {
		result.addError(fmt.Sprintf("book %s has an empty title", id))
	}

	emptyChapters, err := v.store.LegacyChaptersWithEmptyTitle(ctx)
	if err != nil {
		return nil, fmt.Errorf("pre-migration validation: %w", err)
	}
	for _, id := range emptyChapters {
		result.addWarning(fmt.Sprintf("chapter %s has an empty title", id))
	}

	return result.finish(start), nil
}

// PostMigration detects structural problems in the written hierarchy:
// orphans at every level, the legacy-to-migrated count check, and a
// bottom-up word count reconciliation.
func (v *Validator) PostMigration(ctx context.Context) (*ValidationResult, error) {
	start := time.Now()
	result := &ValidationResult{Phase: PhasePost}

	orphanScans := []struct {
		name string
		scan func(context.Context) ([]string, error)
	}{
		{"scene", v.store.OrphanedScenes},
		{"chapter", v.store.OrphanedChapters},
		{"part", v.store.OrphanedParts},
		{"story", v.store.OrphanedStories},
	}

	for _, s := range orphanScans {
		ids, err := s.scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("post-migration validation: %w", err)
		}
		for _, id := range ids {
			result.Counters.MissingReferences++
			result.addError(fmt.Sprintf("orphaned %s: %s", s.name, id))
		}
	}

	legacyCount, err := v.store.CountLegacyChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("post-migration validation: %w", err)
	}
	migratedCount, err := v.store.CountChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("post-migration validation: %w", err)
	}
	if legacyCount != migratedCount {
		result.addError(fmt.Sprintf("chapter count mismatch: %d legacy, %d migrated", legacyCount, migratedCount))
	}

	mismatchScans := []func(context.Context) ([]store.AggregateMismatch, error){
		v.store.ChapterWordMismatches,
		v.store.PartWordMismatches,
		v.store.StoryWordMismatches,
		v.store.BookWordMismatches,
	}

	for _, scan := range mismatchScans {
		mismatches, err := scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("post-migration validation: %w", err)
		}
		for _, m := range mismatches {
			result.Counters.WordCountMismatches++
			result.addError(fmt.Sprintf("%s %s word count is %d, children sum to %d",
				m.Level, m.ID, m.Stored, m.Computed))
		}
	}

	return result.finish(start), nil
}
