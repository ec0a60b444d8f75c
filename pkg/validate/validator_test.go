// ABOUTME: Tests for pre- and post-migration validation passes
// ABOUTME: Verifies typed counters and error/warning classification

package validate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nainya/storyforge/pkg/store"
)

func setupTestValidator(t *testing.T) (*Validator, *store.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "validate_test.db")
	s, err := store.Open(store.Options{Path: path})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return NewValidator(s), s
}

func TestPreMigrationCleanData(t *testing.T) {
	v, s := setupTestValidator(t)
	ctx := context.Background()

	s.CreateBook(ctx, &store.Book{ID: "b1", AuthorID: "a1", Title: "Clean"})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{
		ID: "c1", BookID: "b1", ChapterNumber: 1, Title: "One", WordCount: 100,
	})

	result, err := v.PreMigration(ctx)
	if err != nil {
		t.Fatalf("PreMigration: %v", err)
	}

	if !result.IsValid {
		t.Errorf("Expected valid result, errors: %v", result.Errors)
	}

	if result.Phase != PhasePre {
		t.Errorf("Expected phase 'pre', got %s", result.Phase)
	}

	if len(result.Warnings) != 0 {
		t.Errorf("Unexpected warnings: %v", result.Warnings)
	}
}

func TestPreMigrationFindings(t *testing.T) {
	v, s := setupTestValidator(t)
	ctx := context.Background()

	// Missing author is a warning, the rest are errors
	s.CreateBook(ctx, &store.Book{ID: "b1", AuthorID: "", Title: "No Author"})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{
		ID: "c1", BookID: "ghost", ChapterNumber: 1, Title: "Orphan", WordCount: 10,
	})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{
		ID: "c2", BookID: "b1", ChapterNumber: 2, Title: "Dup", WordCount: 10,
	})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{
		ID: "c3", BookID: "b1", ChapterNumber: 2, Title: "Dup again", WordCount: 10,
	})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{
		ID: "c4", BookID: "b1", ChapterNumber: 3, Title: "Negative", WordCount: -1,
	})

	result, err := v.PreMigration(ctx)
	if err != nil {
		t.Fatalf("PreMigration: %v", err)
	}

	if result.IsValid {
		t.Error("Expected invalid result")
	}

	// c1 orphan (error) + b1 missing author (warning)
	if result.Counters.MissingReferences != 2 {
		t.Errorf("Expected 2 missing references, got %d", result.Counters.MissingReferences)
	}

	if result.Counters.DuplicateEntries != 1 {
		t.Errorf("Expected 1 duplicate entry, got %d", result.Counters.DuplicateEntries)
	}

	if result.Counters.WordCountMismatches != 1 {
		t.Errorf("Expected 1 word count finding, got %d", result.Counters.WordCountMismatches)
	}

	if len(result.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %v", result.Warnings)
	}

	// Orphan + duplicate + negative word count
	if len(result.Errors) != 3 {
		t.Errorf("Expected 3 errors, got %v", result.Errors)
	}
}

func TestPostMigrationCleanHierarchy(t *testing.T) {
	v, s := setupTestValidator(t)
	ctx := context.Background()

	s.CreateBook(ctx, &store.Book{ID: "b1", AuthorID: "a1", Title: "B", WordCount: 100, ChapterCount: 1})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{
		ID: "lc1", BookID: "b1", ChapterNumber: 1, Title: "One", WordCount: 100,
	})
	s.CreateStory(ctx, &store.Story{ID: "st1", BookID: "b1", Title: "S", WordCount: 100, PartCount: 1})
	s.CreatePart(ctx, &store.Part{ID: "p1", StoryID: "st1", Title: "P", PartNumber: 1, WordCount: 100, ChapterCount: 1})
	s.CreateChapter(ctx, &store.Chapter{
		ID: "c1", PartID: "p1", BookID: "b1", ChapterNumber: 1,
		GlobalChapterNumber: 1, Title: "One", WordCount: 100, SceneCount: 1, OrderIndex: 1,
	})
	s.CreateScene(ctx, &store.Scene{ID: "sc1", ChapterID: "c1", SceneNumber: 1, Title: "One", WordCount: 100})

	result, err := v.PostMigration(ctx)
	if err != nil {
		t.Fatalf("PostMigration: %v", err)
	}

	if !result.IsValid {
		t.Errorf("Expected valid hierarchy, errors: %v", result.Errors)
	}

	if result.Counters.WordCountMismatches != 0 {
		t.Errorf("Expected 0 mismatches, got %d", result.Counters.WordCountMismatches)
	}
}

func TestPostMigrationOrphans(t *testing.T) {
	v, s := setupTestValidator(t)
	ctx := context.Background()

	// A scene pointing at a chapter that does not exist
	s.CreateScene(ctx, &store.Scene{ID: "sc1", ChapterID: "ghost", SceneNumber: 1, Title: "Lost"})

	result, err := v.PostMigration(ctx)
	if err != nil {
		t.Fatalf("PostMigration: %v", err)
	}

	if result.IsValid {
		t.Error("Expected invalid result for orphaned scene")
	}

	if result.Counters.MissingReferences != 1 {
		t.Errorf("Expected 1 missing reference, got %d", result.Counters.MissingReferences)
	}
}

func TestPostMigrationCountMismatch(t *testing.T) {
	v, s := setupTestValidator(t)
	ctx := context.Background()

	// Two legacy chapters but no migrated chapters
	s.CreateBook(ctx, &store.Book{ID: "b1", AuthorID: "a1", Title: "B"})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{ID: "lc1", BookID: "b1", ChapterNumber: 1, Title: "One"})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{ID: "lc2", BookID: "b1", ChapterNumber: 2, Title: "Two"})

	result, err := v.PostMigration(ctx)
	if err != nil {
		t.Fatalf("PostMigration: %v", err)
	}

	if result.IsValid {
		t.Error("Expected count mismatch to be an error")
	}
}

func TestPostMigrationWordCountMismatch(t *testing.T) {
	v, s := setupTestValidator(t)
	ctx := context.Background()

	s.CreateBook(ctx, &store.Book{ID: "b1", AuthorID: "a1", Title: "B", WordCount: 50})
	s.CreateLegacyChapter(ctx, &store.LegacyChapter{ID: "lc1", BookID: "b1", ChapterNumber: 1, Title: "One", WordCount: 100})
	s.CreateStory(ctx, &store.Story{ID: "st1", BookID: "b1", Title: "S", WordCount: 50})
	s.CreatePart(ctx, &store.Part{ID: "p1", StoryID: "st1", Title: "P", PartNumber: 1, WordCount: 100})
	s.CreateChapter(ctx, &store.Chapter{
		ID: "c1", PartID: "p1", BookID: "b1", ChapterNumber: 1,
		GlobalChapterNumber: 1, Title: "One", WordCount: 100, OrderIndex: 1,
	})
	s.CreateScene(ctx, &store.Scene{ID: "sc1", ChapterID: "c1", SceneNumber: 1, Title: "One", WordCount: 100})

	result, err := v.PostMigration(ctx)
	if err != nil {
		t.Fatalf("PostMigration: %v", err)
	}

	// Part disagrees with story (100 vs 50) and book disagrees with
	// story sum (50 stored vs 50 computed is fine, story 50 vs part 100 is not)
	if result.Counters.WordCountMismatches == 0 {
		t.Error("Expected word count mismatches")
	}

	if result.IsValid {
		t.Errorf("Expected invalid result, errors: %v", result.Errors)
	}
}
