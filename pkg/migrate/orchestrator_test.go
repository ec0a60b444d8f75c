// ABOUTME: End-to-end tests for the hierarchy migration orchestrator
// ABOUTME: Exercise cardinality, ordering, idempotency, retries, dry runs

package migrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/nainya/storyforge/pkg/batch"
	"github.com/nainya/storyforge/pkg/progress"
	"github.com/nainya/storyforge/pkg/store"
)

func setupEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	s, err := store.Open(store.Options{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		UseTransactions: true,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return NewEngine(s), s
}

// seedCorpus creates books books with chapters flat chapters each, 10
// words per chapter
func seedCorpus(t *testing.T, s *store.Store, books, chapters int) {
	t.Helper()
	ctx := context.Background()

	for b := 0; b < books; b++ {
		book := &store.Book{
			ID:       fmt.Sprintf("book-%d", b),
			AuthorID: fmt.Sprintf("author-%d", b),
			Title:    fmt.Sprintf("Book %d", b),
		}
		if err := s.CreateBook(ctx, book); err != nil {
			t.Fatalf("Failed to create book: %v", err)
		}

		for c := 1; c <= chapters; c++ {
			ch := &store.LegacyChapter{
				ID:            fmt.Sprintf("book-%d-ch-%d", b, c),
				BookID:        book.ID,
				ChapterNumber: c,
				Title:         fmt.Sprintf("Chapter %d", c),
				Content:       []byte("one two three four five six seven eight nine ten"),
				WordCount:     10,
				Published:     c%2 == 1,
			}
			if err := s.CreateLegacyChapter(ctx, ch); err != nil {
				t.Fatalf("Failed to create legacy chapter: %v", err)
			}
		}
	}
}

func TestMigrateCardinality(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 2, 2)

	result, err := engine.MigrateToHierarchy(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("Expected success, got errors: %v", result.Errors)
	}
	if result.MigratedBooks != 2 {
		t.Errorf("Expected 2 migrated books, got %d", result.MigratedBooks)
	}
	if result.MigratedChapters != 4 {
		t.Errorf("Expected 4 migrated chapters, got %d", result.MigratedChapters)
	}
	if result.CreatedStories != 2 || result.CreatedParts != 2 {
		t.Errorf("Expected 2 stories and 2 parts, got %d/%d",
			result.CreatedStories, result.CreatedParts)
	}
	if result.CreatedScenes != 4 {
		t.Errorf("Expected 4 scenes, got %d", result.CreatedScenes)
	}
	if result.PostValidation == nil || !result.PostValidation.IsValid {
		t.Errorf("Expected valid post-migration state, got %+v", result.PostValidation)
	}

	// One story and part per book, one scene and path and search entry
	// per chapter
	checks := []struct {
		name  string
		count func(context.Context) (int, error)
		want  int
	}{
		{"stories", s.CountStories, 2},
		{"parts", s.CountParts, 2},
		{"chapters", s.CountChapters, 4},
		{"scenes", s.CountScenes, 4},
		{"paths", s.CountHierarchyPaths, 4},
		{"search entries", s.CountSearchEntries, 4},
	}
	for _, check := range checks {
		n, err := check.count(ctx)
		if err != nil {
			t.Fatalf("Failed to count %s: %v", check.name, err)
		}
		if n != check.want {
			t.Errorf("Expected %d %s, got %d", check.want, check.name, n)
		}
	}
}

func TestMigrateWordCountConservation(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 1, 3)

	if _, err := engine.MigrateToHierarchy(ctx, DefaultOptions()); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	book, err := s.GetBook(ctx, "book-0")
	if err != nil {
		t.Fatalf("Failed to get book: %v", err)
	}
	if book.WordCount != 30 {
		t.Errorf("Expected book word count 30, got %d", book.WordCount)
	}
	if book.ChapterCount != 3 {
		t.Errorf("Expected book chapter count 3, got %d", book.ChapterCount)
	}

	stories, err := s.ListStories(ctx, "book-0")
	if err != nil {
		t.Fatalf("Failed to list stories: %v", err)
	}
	if len(stories) != 1 {
		t.Fatalf("Expected 1 story, got %d", len(stories))
	}
	if stories[0].WordCount != 30 {
		t.Errorf("Expected story word count 30, got %d", stories[0].WordCount)
	}

	parts, err := s.ListParts(ctx, stories[0].ID)
	if err != nil {
		t.Fatalf("Failed to list parts: %v", err)
	}
	if len(parts) != 1 || parts[0].WordCount != 30 || parts[0].ChapterCount != 3 {
		t.Errorf("Expected one part with 30 words and 3 chapters, got %+v", parts)
	}
}

func TestMigrateOrderPreserved(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()

	book := &store.Book{ID: "book-1", AuthorID: "author-1", Title: "Out of Order"}
	if err := s.CreateBook(ctx, book); err != nil {
		t.Fatalf("Failed to create book: %v", err)
	}

	// Inserted out of order; migration must follow chapter number
	for _, n := range []int{3, 1, 2} {
		ch := &store.LegacyChapter{
			ID:            fmt.Sprintf("ch-%d", n),
			BookID:        book.ID,
			ChapterNumber: n,
			Title:         fmt.Sprintf("Chapter %d", n),
			Content:       []byte("some words here"),
			WordCount:     3,
		}
		if err := s.CreateLegacyChapter(ctx, ch); err != nil {
			t.Fatalf("Failed to create legacy chapter: %v", err)
		}
	}

	if _, err := engine.MigrateToHierarchy(ctx, DefaultOptions()); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	chapters, err := s.ListChaptersByBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("Failed to list chapters: %v", err)
	}
	if len(chapters) != 3 {
		t.Fatalf("Expected 3 chapters, got %d", len(chapters))
	}
	for i, ch := range chapters {
		if ch.ChapterNumber != i+1 {
			t.Errorf("Position %d: expected chapter number %d, got %d", i, i+1, ch.ChapterNumber)
		}
		if ch.OrderIndex != i+1 {
			t.Errorf("Position %d: expected order index %d, got %d", i, i+1, ch.OrderIndex)
		}
	}
}

func TestMigrateHierarchyPaths(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 1, 1)

	if _, err := engine.MigrateToHierarchy(ctx, DefaultOptions()); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	chapters, err := s.ListChaptersByBook(ctx, "book-0")
	if err != nil || len(chapters) != 1 {
		t.Fatalf("Expected 1 chapter, got %d (err %v)", len(chapters), err)
	}

	hp, err := s.GetHierarchyPath(ctx, chapters[0].ID)
	if err != nil {
		t.Fatalf("Failed to get hierarchy path: %v", err)
	}

	want := fmt.Sprintf("%s/%s/%s/%s", hp.BookID, hp.StoryID, hp.PartID, hp.ChapterID)
	if hp.Path != want {
		t.Errorf("Expected path %q, got %q", want, hp.Path)
	}
	if hp.BookID != "book-0" || hp.PartID != chapters[0].PartID {
		t.Errorf("Path ancestry does not match chapter: %+v", hp)
	}
}

func TestMigrateEmptyCorpus(t *testing.T) {
	engine, _ := setupEngine(t)

	result, err := engine.MigrateToHierarchy(context.Background(), DefaultOptions())
	if err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success on empty corpus, got errors: %v", result.Errors)
	}
	if result.MigratedBooks != 0 || result.BatchesProcessed != 0 {
		t.Errorf("Expected no work, got %d books in %d batches",
			result.MigratedBooks, result.BatchesProcessed)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 3, 2)

	if _, err := engine.MigrateToHierarchy(ctx, DefaultOptions()); err != nil {
		t.Fatalf("First migration failed: %v", err)
	}

	result, err := engine.MigrateToHierarchy(ctx, DefaultOptions())
	if err != nil {
		t.Fatalf("Second migration failed: %v", err)
	}

	if result.SkippedBooks != 3 {
		t.Errorf("Expected 3 skipped books, got %d", result.SkippedBooks)
	}
	if result.MigratedBooks != 0 {
		t.Errorf("Expected 0 migrated books on re-run, got %d", result.MigratedBooks)
	}

	stories, err := s.CountStories(ctx)
	if err != nil {
		t.Fatalf("Failed to count stories: %v", err)
	}
	if stories != 3 {
		t.Errorf("Expected story count unchanged at 3, got %d", stories)
	}
}

func TestMigrateDryRun(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 2, 2)

	opts := DefaultOptions()
	opts.DryRun = true

	result, err := engine.MigrateToHierarchy(ctx, opts)
	if err != nil {
		t.Fatalf("Dry run failed: %v", err)
	}

	if result.MigratedBooks != 2 || result.MigratedChapters != 4 {
		t.Errorf("Dry run should count planned work, got %d books / %d chapters",
			result.MigratedBooks, result.MigratedChapters)
	}

	stories, err := s.CountStories(ctx)
	if err != nil {
		t.Fatalf("Failed to count stories: %v", err)
	}
	if stories != 0 {
		t.Errorf("Dry run must not write rows, found %d stories", stories)
	}

	if engine.Snapshot() != nil {
		t.Error("Dry run must not capture a snapshot")
	}
	if result.PostValidation != nil {
		t.Error("Dry run must skip post-validation")
	}
}

func TestMigrateBlockedByPreValidation(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()

	// Orphaned legacy chapter: its book does not exist
	ch := &store.LegacyChapter{
		ID:            "orphan-ch",
		BookID:        "no-such-book",
		ChapterNumber: 1,
		Title:         "Orphan",
		WordCount:     5,
	}
	if err := s.CreateLegacyChapter(ctx, ch); err != nil {
		t.Fatalf("Failed to create legacy chapter: %v", err)
	}

	result, err := engine.MigrateToHierarchy(ctx, DefaultOptions())
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("Expected ErrValidationFailed, got %v", err)
	}
	if result == nil || len(result.Errors) == 0 {
		t.Fatal("Expected pre-validation errors in result")
	}
	if result.Success {
		t.Error("Blocked migration must not report success")
	}
}

func TestMigrateRetriesExhausted(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 3, 1)

	// Force a deterministic failure for book-0 only: a conflicting
	// chapter row behind a unique index, with no story so the skip
	// guard stays out of the way
	if _, err := s.DB().Exec(
		`CREATE UNIQUE INDEX idx_test_chapter_conflict ON chapters(book_id, chapter_number)`); err != nil {
		t.Fatalf("Failed to create test index: %v", err)
	}
	conflict := &store.Chapter{
		ID:            "conflict",
		PartID:        "stale-part",
		BookID:        "book-0",
		ChapterNumber: 1,
		Title:         "Stale",
	}
	if err := s.CreateChapter(ctx, conflict); err != nil {
		t.Fatalf("Failed to create conflicting chapter: %v", err)
	}

	opts := DefaultOptions()
	opts.BatchSize = 1
	opts.RollbackOnError = false
	opts.ValidateAfter = false
	opts.RetryFailedBatches = true
	opts.MaxRetries = 2

	result, err := engine.MigrateToHierarchy(ctx, opts)
	if err != nil {
		t.Fatalf("Migration returned error: %v", err)
	}

	if result.Success {
		t.Error("Expected failure with a poisoned batch")
	}
	if result.BatchesRetried != 2 {
		t.Errorf("Expected 2 retries, got %d", result.BatchesRetried)
	}
	if len(result.BatchErrors) != 1 {
		t.Fatalf("Expected 1 batch error, got %d", len(result.BatchErrors))
	}
	if result.MigratedBooks != 2 {
		t.Errorf("Expected the 2 healthy books migrated, got %d", result.MigratedBooks)
	}
}

func TestMigrateRollbackOnError(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 2, 1)

	if _, err := s.DB().Exec(
		`CREATE UNIQUE INDEX idx_test_chapter_conflict ON chapters(book_id, chapter_number)`); err != nil {
		t.Fatalf("Failed to create test index: %v", err)
	}
	conflict := &store.Chapter{
		ID:            "conflict",
		PartID:        "stale-part",
		BookID:        "book-0",
		ChapterNumber: 1,
		Title:         "Stale",
	}
	if err := s.CreateChapter(ctx, conflict); err != nil {
		t.Fatalf("Failed to create conflicting chapter: %v", err)
	}

	opts := DefaultOptions()
	opts.BatchSize = 1
	opts.RetryFailedBatches = false

	result, err := engine.MigrateToHierarchy(ctx, opts)
	if err != nil {
		t.Fatalf("Migration returned error: %v", err)
	}

	if !result.RolledBack {
		t.Fatalf("Expected rollback, got result %+v", result)
	}

	// Rollback wipes all hierarchy rows, conflicting row included
	for name, count := range map[string]func(context.Context) (int, error){
		"stories":  s.CountStories,
		"chapters": s.CountChapters,
		"scenes":   s.CountScenes,
	} {
		n, err := count(ctx)
		if err != nil {
			t.Fatalf("Failed to count %s: %v", name, err)
		}
		if n != 0 {
			t.Errorf("Expected 0 %s after rollback, got %d", name, n)
		}
	}
}

func TestMigrateAdaptiveBatchSize(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()
	seedCorpus(t, s, 5, 1)

	engine.SetSizer(batch.FixedSizer{Size: 2})

	opts := DefaultOptions()
	opts.Adaptive = AdaptiveOptions{
		Enabled:          true,
		InitialBatchSize: 1,
		MinBatchSize:     1,
		MaxBatchSize:     4,
	}

	result, err := engine.MigrateToHierarchy(ctx, opts)
	if err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	if result.MigratedBooks != 5 {
		t.Errorf("Expected 5 migrated books, got %d", result.MigratedBooks)
	}
	// Sample batch of 1, then 4 books in chunks of 2
	if result.BatchesProcessed != 3 {
		t.Errorf("Expected 3 batches, got %d", result.BatchesProcessed)
	}
}

func TestMigrateProgressCallback(t *testing.T) {
	engine, s := setupEngine(t)
	seedCorpus(t, s, 4, 1)

	var snapshots []progress.Snapshot
	opts := DefaultOptions()
	opts.BatchSize = 2
	opts.ProgressFunc = func(snap progress.Snapshot) {
		snapshots = append(snapshots, snap)
	}

	if _, err := engine.MigrateToHierarchy(context.Background(), opts); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	if len(snapshots) < 2 {
		t.Fatalf("Expected at least 2 progress snapshots, got %d", len(snapshots))
	}

	last := snapshots[len(snapshots)-1]
	if last.State != progress.StateComplete {
		t.Errorf("Expected final state %q, got %q", progress.StateComplete, last.State)
	}

	var prev float64
	for i, snap := range snapshots[:len(snapshots)-1] {
		if snap.Percentage < prev {
			t.Errorf("Snapshot %d: percentage went backwards (%f < %f)", i, snap.Percentage, prev)
		}
		prev = snap.Percentage
	}
}

func TestMigratePlainTextContent(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()

	book := &store.Book{ID: "book-1", AuthorID: "a", Title: "Plain"}
	if err := s.CreateBook(ctx, book); err != nil {
		t.Fatalf("Failed to create book: %v", err)
	}
	ch := &store.LegacyChapter{
		ID:            "ch-1",
		BookID:        book.ID,
		ChapterNumber: 1,
		Title:         "Chapter 1",
		Content:       []byte("just some plain prose"),
	}
	if err := s.CreateLegacyChapter(ctx, ch); err != nil {
		t.Fatalf("Failed to create legacy chapter: %v", err)
	}

	if _, err := engine.MigrateToHierarchy(ctx, DefaultOptions()); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	chapters, err := s.ListChaptersByBook(ctx, book.ID)
	if err != nil || len(chapters) != 1 {
		t.Fatalf("Expected 1 chapter, got %d (err %v)", len(chapters), err)
	}

	// Word count was zero on the legacy row, so it is computed from
	// the extracted text
	if chapters[0].WordCount != 4 {
		t.Errorf("Expected computed word count 4, got %d", chapters[0].WordCount)
	}

	scenes, err := s.ListScenes(ctx, chapters[0].ID)
	if err != nil || len(scenes) != 1 {
		t.Fatalf("Expected 1 scene, got %d (err %v)", len(scenes), err)
	}
	if scenes[0].Content != "just some plain prose" {
		t.Errorf("Expected plain text carried into scene, got %q", scenes[0].Content)
	}
	if scenes[0].SceneType != "narrative" || scenes[0].Mood != "neutral" {
		t.Errorf("Expected default scene type and mood, got %q/%q",
			scenes[0].SceneType, scenes[0].Mood)
	}
}

func TestMigrateRichTextContent(t *testing.T) {
	engine, s := setupEngine(t)
	ctx := context.Background()

	book := &store.Book{ID: "book-1", AuthorID: "a", Title: "Rich"}
	if err := s.CreateBook(ctx, book); err != nil {
		t.Fatalf("Failed to create book: %v", err)
	}

	content := []byte(`{"type":"container","tag":"doc","children":[` +
		`{"type":"container","tag":"p","children":[{"type":"text","text":"First paragraph."}]},` +
		`{"type":"container","tag":"p","children":[{"type":"text","text":"Second paragraph."}]}]}`)

	ch := &store.LegacyChapter{
		ID:            "ch-1",
		BookID:        book.ID,
		ChapterNumber: 1,
		Title:         "Chapter 1",
		Content:       content,
	}
	if err := s.CreateLegacyChapter(ctx, ch); err != nil {
		t.Fatalf("Failed to create legacy chapter: %v", err)
	}

	if _, err := engine.MigrateToHierarchy(ctx, DefaultOptions()); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	chapters, err := s.ListChaptersByBook(ctx, book.ID)
	if err != nil || len(chapters) != 1 {
		t.Fatalf("Expected 1 chapter, got %d (err %v)", len(chapters), err)
	}

	scenes, err := s.ListScenes(ctx, chapters[0].ID)
	if err != nil || len(scenes) != 1 {
		t.Fatalf("Expected 1 scene, got %d (err %v)", len(scenes), err)
	}
	if scenes[0].Content != "First paragraph.\nSecond paragraph." {
		t.Errorf("Unexpected extracted text: %q", scenes[0].Content)
	}
	if chapters[0].Summary == "" {
		t.Error("Expected a summary derived from content")
	}
}

func TestSnapshotSaveLoad(t *testing.T) {
	engine, s := setupEngine(t)
	seedCorpus(t, s, 2, 1)

	if _, err := engine.MigrateToHierarchy(context.Background(), DefaultOptions()); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	snap := engine.Snapshot()
	if snap == nil {
		t.Fatal("Expected a snapshot after migration")
	}
	if snap.BookCount != 2 || len(snap.BookIDs) != 2 {
		t.Errorf("Expected 2 books in snapshot, got %+v", snap)
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := snap.Save(path); err != nil {
		t.Fatalf("Failed to save snapshot: %v", err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if loaded.BookCount != snap.BookCount || loaded.LegacyChapterCount != snap.LegacyChapterCount {
		t.Errorf("Loaded snapshot differs: %+v vs %+v", loaded, snap)
	}
	if !loaded.TakenAt.Equal(snap.TakenAt) {
		t.Errorf("Loaded TakenAt %v differs from %v", loaded.TakenAt, snap.TakenAt)
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	var opts Options
	opts = opts.WithDefaults()

	if opts.BatchSize != DefaultBatchSize {
		t.Errorf("Expected default batch size %d, got %d", DefaultBatchSize, opts.BatchSize)
	}

	adaptive := Options{Adaptive: AdaptiveOptions{Enabled: true}}.WithDefaults()
	if adaptive.Adaptive.InitialBatchSize != DefaultBatchSize {
		t.Errorf("Expected initial batch size to inherit %d, got %d",
			DefaultBatchSize, adaptive.Adaptive.InitialBatchSize)
	}
	if adaptive.Adaptive.MinBatchSize != 1 {
		t.Errorf("Expected min batch size 1, got %d", adaptive.Adaptive.MinBatchSize)
	}
	if adaptive.Adaptive.TargetDuration != time.Second {
		t.Errorf("Expected default target duration 1s, got %v", adaptive.Adaptive.TargetDuration)
	}
}
