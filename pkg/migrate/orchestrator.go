// ABOUTME: Migration orchestrator driving the flat-to-hierarchy transformation
// ABOUTME: Coordinates validation, snapshot, batching, retries, and aggregation

package migrate

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/storyforge/internal/logger"
	"github.com/nainya/storyforge/internal/metrics"
	"github.com/nainya/storyforge/pkg/batch"
	"github.com/nainya/storyforge/pkg/progress"
	"github.com/nainya/storyforge/pkg/richtext"
	"github.com/nainya/storyforge/pkg/store"
	"github.com/nainya/storyforge/pkg/validate"
)

// Stage names reported through the progress tracker
const (
	StagePreValidation  = "pre-validation"
	StageMigration      = "migration"
	StagePostValidation = "post-validation"
)

// Engine is the top-level migration coordinator. It owns the progress
// tracker and at most one active rollback snapshot.
type Engine struct {
	store     *store.Store
	validator *validate.Validator
	tracker   *progress.Tracker
	log       *logger.Logger
	metrics   *metrics.Metrics
	sizer     batch.Sizer

	mu       sync.Mutex
	snapshot *Snapshot
}

// NewEngine creates an engine bound to a store
func NewEngine(s *store.Store) *Engine {
	return &Engine{
		store:     s,
		validator: validate.NewValidator(s),
		tracker:   progress.NewTracker(),
		log:       logger.GetGlobalLogger().Component("migration"),
	}
}

// SetMetrics attaches a metrics set; nil disables instrumentation
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetSizer overrides the adaptive sizing strategy. The default is a
// DurationTargetSizer built from the run options.
func (e *Engine) SetSizer(s batch.Sizer) {
	e.sizer = s
}

// Snapshot returns the active rollback snapshot, nil when none exists
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// RestoreSnapshot installs a snapshot loaded by the host (for rollback
// across process restarts)
func (e *Engine) RestoreSnapshot(snap *Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = snap
}

// Tracker exposes the progress tracker for read access
func (e *Engine) Tracker() *progress.Tracker {
	return e.tracker
}

// MigrateToHierarchy restructures every book's flat chapters into the
// Story → Part → Chapter → Scene hierarchy. Books and legacy chapters
// are only read; all hierarchy rows are newly created.
func (e *Engine) MigrateToHierarchy(ctx context.Context, opts Options) (*MigrationResult, error) {
	opts = opts.WithDefaults()
	start := time.Now()
	result := &MigrationResult{}

	e.tracker.Reset()
	e.tracker.Start()

	e.log.Info().
		Int("batch_size", opts.BatchSize).
		Bool("dry_run", opts.DryRun).
		Int("concurrent_batches", opts.ConcurrentBatches).
		Msg("Starting hierarchy migration")

	// Validation gate
	if opts.ValidateBefore {
		e.tracker.Update(StagePreValidation, 0, 0, 0)

		pre, err := e.validator.PreMigration(ctx)
		if err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		result.PreValidation = pre
		e.observeValidation(pre)

		if !pre.IsValid {
			if opts.RollbackOnError {
				// Strict mode: abort before any row is written
				result.Errors = append(result.Errors, pre.Errors...)
				result.Duration = time.Since(start)
				e.tracker.Complete()
				e.log.Warn().Int("errors", len(pre.Errors)).Msg("Migration blocked by pre-validation")
				return result, ErrValidationFailed
			}
			e.log.Warn().Int("errors", len(pre.Errors)).Msg("Pre-validation failed, continuing without strict gate")
		}
	}

	books, err := e.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	legacyCount, err := e.store.CountLegacyChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if !opts.DryRun {
		e.captureSnapshot(books, legacyCount, opts)
	}

	// Migrate in book chunks
	counters := &runCounters{}
	batchSize := opts.BatchSize

	if opts.Adaptive.Enabled && len(books) > 0 {
		batchSize = e.sampleBatchSize(ctx, books, opts, counters, result)
	}

	if e.metrics != nil {
		e.metrics.BatchSizeCurrent.Set(float64(batchSize))
	}

	remaining := books[counters.books+counters.skipped:]

	processor := &batch.Processor[*store.Book]{
		ChunkSize:       batchSize,
		Concurrency:     opts.ConcurrentBatches,
		ContinueOnError: !opts.RollbackOnError,
		OnChunkDone: func(p batch.Progress) {
			e.trackBatch(p, opts, len(books))
		},
	}

	var retried int
	var retryMu sync.Mutex

	prog, failures := processor.Run(ctx, remaining, func(ctx context.Context, chunk []*store.Book, index int) error {
		err := e.migrateChunkWithRetry(ctx, chunk, opts, counters, func() {
			retryMu.Lock()
			retried++
			retryMu.Unlock()
		})

		if opts.CleanupInterval > 0 && (index+1)%opts.CleanupInterval == 0 {
			runtime.GC()
		}

		return err
	})

	counters.fill(result)
	result.BatchesProcessed += prog.CompletedChunks
	result.BatchesRetried += retried

	for _, f := range failures {
		be := &BatchError{BatchIndex: f.Index, Err: f.Err}
		result.BatchErrors = append(result.BatchErrors, be)
		result.Errors = append(result.Errors, be.Error())
		if e.metrics != nil {
			e.metrics.BatchesFailed.Inc()
		}
	}

	if len(result.BatchErrors) > 0 && opts.RollbackOnError && !opts.DryRun {
		e.log.Error().Int("failed_batches", len(failures)).Msg("Batch failures exhausted retries, rolling back")

		rb, rbErr := e.Rollback(ctx)
		result.RolledBack = rbErr == nil && rb != nil && rb.Success
		if rbErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rollback failed: %v", rbErr))
		} else if rb != nil && !rb.Success {
			result.Errors = append(result.Errors, rb.Errors...)
		}

		result.Duration = time.Since(start)
		e.tracker.Complete()
		return result, nil
	}

	// Post-validation reports integrity problems but never triggers
	// rollback by itself. Skipped on dry runs: nothing was written.
	if opts.ValidateAfter && !opts.DryRun {
		e.tracker.Update(StagePostValidation, 0, 0, 99)

		post, err := e.validator.PostMigration(ctx)
		if err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		result.PostValidation = post
		e.observeValidation(post)

		if !post.IsValid {
			result.Errors = append(result.Errors, post.Errors...)
		}
	}

	result.Success = len(result.BatchErrors) == 0
	result.Duration = time.Since(start)
	e.tracker.Complete()

	if opts.ProgressFunc != nil {
		opts.ProgressFunc(e.tracker.Snapshot())
	}

	e.log.Info().
		Bool("success", result.Success).
		Int("books", result.MigratedBooks).
		Int("chapters", result.MigratedChapters).
		Int("batches", result.BatchesProcessed).
		Dur("duration_ms", result.Duration).
		Msg("Hierarchy migration finished")

	if e.metrics != nil {
		e.metrics.MigrationsTotal.WithLabelValues(successLabel(result.Success)).Inc()
		e.metrics.MigrationDuration.Observe(result.Duration.Seconds())
	}

	return result, nil
}

// sampleBatchSize migrates the first chunk at the initial size, then
// asks the sizer for the size to use on the rest of the run
func (e *Engine) sampleBatchSize(ctx context.Context, books []*store.Book, opts Options, counters *runCounters, result *MigrationResult) int {
	sample := opts.Adaptive.InitialBatchSize
	if sample > len(books) {
		sample = len(books)
	}

	sampleStart := time.Now()
	err := e.migrateChunkWithRetry(ctx, books[:sample], opts, counters, func() { result.BatchesRetried++ })
	elapsed := time.Since(sampleStart)
	result.BatchesProcessed++

	if err != nil {
		// The sample chunk counts as batch 0; its failure is handled
		// by the main loop's failure path
		result.BatchErrors = append(result.BatchErrors, &BatchError{BatchIndex: 0, Err: err})
		result.Errors = append(result.Errors, err.Error())
	}

	sizer := e.sizer
	if sizer == nil {
		sizer = batch.DurationTargetSizer{Target: opts.Adaptive.TargetDuration}
	}

	bounds := batch.Bounds{Min: opts.Adaptive.MinBatchSize, Max: opts.Adaptive.MaxBatchSize}
	size := sizer.SuggestSize([]time.Duration{elapsed}, sample, bounds)

	e.log.Debug().
		Int("sample_size", sample).
		Dur("sample_ms", elapsed).
		Int("next_size", size).
		Msg("Adaptive batch size estimated")

	return size
}

// migrateChunkWithRetry re-attempts a chunk up to MaxRetries times.
// Book subtree writes are transactional, and already-migrated books
// are skipped, so re-running a chunk is idempotent.
func (e *Engine) migrateChunkWithRetry(ctx context.Context, chunk []*store.Book, opts Options, counters *runCounters, onRetry func()) error {
	attempts := 1
	if opts.RetryFailedBatches {
		attempts = opts.MaxRetries + 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			onRetry()
			if e.metrics != nil {
				e.metrics.BatchRetriesTotal.Inc()
			}
		}

		err = e.migrateChunk(ctx, chunk, opts, counters)
		if err == nil {
			return nil
		}

		e.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Batch attempt failed")
	}

	return err
}

func (e *Engine) migrateChunk(ctx context.Context, chunk []*store.Book, opts Options, counters *runCounters) error {
	chunkStart := time.Now()

	for _, book := range chunk {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.migrateBook(ctx, book, opts, counters); err != nil {
			return fmt.Errorf("book %s: %w", book.ID, err)
		}
	}

	if e.metrics != nil {
		e.metrics.BatchDuration.Observe(time.Since(chunkStart).Seconds())
		e.metrics.BatchesProcessed.Inc()
	}

	return nil
}

// migrateBook expands one book's flat chapters into its hierarchy
// subtree. The whole subtree is written through one transaction, so a
// failure leaves no partial hierarchy for the retry path to trip over.
func (e *Engine) migrateBook(ctx context.Context, book *store.Book, opts Options, counters *runCounters) error {
	// Idempotency guard: a book that already has a story was migrated
	// by a previous run
	existing, err := e.store.GetStoryByBook(ctx, book.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		counters.addSkipped()
		e.log.Debug().Str("book", book.ID).Msg("Book already migrated, skipping")
		return nil
	}

	chapters, err := e.store.ListLegacyChapters(ctx, book.ID)
	if err != nil {
		return err
	}

	if opts.DryRun {
		counters.addBook(len(chapters))
		return nil
	}

	storyID := uuid.NewString()
	partID := uuid.NewString()
	bookWords := 0

	err = e.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateStory(&store.Story{
			ID:       storyID,
			BookID:   book.ID,
			Title:    book.Title,
			Synopsis: "",
		}); err != nil {
			return err
		}

		if err := tx.CreatePart(&store.Part{
			ID:         partID,
			StoryID:    storyID,
			Title:      "Part 1",
			PartNumber: 1,
		}); err != nil {
			return err
		}

		for i, legacy := range chapters {
			converted := convertChapter(legacy, book.ID, storyID, partID, i)
			bookWords += converted.chapter.WordCount

			if err := tx.CreateChapter(converted.chapter); err != nil {
				return err
			}
			if err := tx.CreateScene(converted.scene); err != nil {
				return err
			}
			if err := tx.CreateHierarchyPath(converted.path); err != nil {
				return err
			}
			if err := tx.CreateSearchIndexEntry(converted.search); err != nil {
				return err
			}
		}

		// Aggregate word counts bottom-up once all of the book's
		// chapters are written
		if err := tx.UpdatePartAggregates(partID, bookWords, len(chapters)); err != nil {
			return err
		}
		if err := tx.UpdateStoryAggregates(storyID, bookWords, 1); err != nil {
			return err
		}
		return tx.UpdateBookAggregates(book.ID, bookWords, len(chapters))
	})
	if err != nil {
		return err
	}

	counters.addBook(len(chapters))

	if e.metrics != nil {
		e.metrics.RowsCreated.Add(float64(2 + 4*len(chapters)))
	}

	return nil
}

// converted holds the rows produced from one legacy chapter
type converted struct {
	chapter *store.Chapter
	scene   *store.Scene
	path    *store.HierarchyPath
	search  *store.SearchIndexEntry
}

// convertChapter maps a legacy chapter onto its hierarchy rows. The
// chapter number is carried as both local and global number; order
// index preserves the source sequence.
func convertChapter(legacy *store.LegacyChapter, bookID, storyID, partID string, position int) *converted {
	chapterID := uuid.NewString()

	text, summary := extractContent(legacy)

	wordCount := legacy.WordCount
	if wordCount == 0 && text != "" {
		wordCount = richtext.CountWords(text)
	}

	chapter := &store.Chapter{
		ID:                  chapterID,
		PartID:              partID,
		BookID:              bookID,
		ChapterNumber:       legacy.ChapterNumber,
		GlobalChapterNumber: legacy.ChapterNumber,
		Title:               legacy.Title,
		Summary:             summary,
		Content:             legacy.Content,
		WordCount:           wordCount,
		SceneCount:          1,
		OrderIndex:          position + 1,
		Published:           legacy.Published,
	}

	scene := &store.Scene{
		ID:          uuid.NewString(),
		ChapterID:   chapterID,
		SceneNumber: 1,
		Title:       legacy.Title,
		Content:     text,
		WordCount:   wordCount,
		SceneType:   "narrative",
		Mood:        "neutral",
		Completed:   legacy.Published,
	}

	path := &store.HierarchyPath{
		ID:        uuid.NewString(),
		ChapterID: chapterID,
		PartID:    partID,
		StoryID:   storyID,
		BookID:    bookID,
		Path:      fmt.Sprintf("%s/%s/%s/%s", bookID, storyID, partID, chapterID),
	}

	search := &store.SearchIndexEntry{
		ID:         uuid.NewString(),
		EntityType: "chapter",
		EntityID:   chapterID,
		BookID:     bookID,
		Title:      legacy.Title,
		Body:       text,
	}

	return &converted{chapter: chapter, scene: scene, path: path, search: search}
}

// extractContent derives plain text and a short summary from the
// legacy rich-text content. Content that is not a JSON document tree
// is treated as plain text.
func extractContent(legacy *store.LegacyChapter) (text, summary string) {
	if len(legacy.Content) == 0 {
		return "", ""
	}

	node, err := richtext.Parse(legacy.Content)
	if err != nil {
		text = string(legacy.Content)
		node = richtext.NewText(text)
	} else {
		text = richtext.ExtractText(node)
	}

	return text, richtext.Summarize(node, DefaultSummaryLength)
}

func (e *Engine) captureSnapshot(books []*store.Book, legacyCount int, opts Options) {
	ids := make([]string, len(books))
	for i, b := range books {
		ids[i] = b.ID
	}

	e.mu.Lock()
	e.snapshot = &Snapshot{
		TakenAt:            time.Now(),
		BookIDs:            ids,
		BookCount:          len(books),
		LegacyChapterCount: legacyCount,
		Options:            opts,
	}
	e.mu.Unlock()
}

func (e *Engine) trackBatch(p batch.Progress, opts Options, totalBooks int) {
	e.tracker.Update(StageMigration, totalBooks, p.ItemsProcessed, p.Percentage)

	if e.metrics != nil {
		e.metrics.ProgressPercent.Set(p.Percentage)
	}

	if opts.ProgressFunc != nil {
		opts.ProgressFunc(e.tracker.Snapshot())
	}
}

func (e *Engine) observeValidation(r *validate.ValidationResult) {
	e.log.LogValidation(r.Phase, r.IsValid, len(r.Errors), len(r.Warnings), r.Duration)
	if e.metrics != nil {
		e.metrics.RecordValidation(r.Phase, r.IsValid, len(r.Errors), len(r.Warnings))
	}
}

func successLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// runCounters accumulates row counts across possibly-concurrent batches
type runCounters struct {
	mu       sync.Mutex
	books    int
	skipped  int
	chapters int
}

func (c *runCounters) addBook(chapters int) {
	c.mu.Lock()
	c.books++
	c.chapters += chapters
	c.mu.Unlock()
}

func (c *runCounters) addSkipped() {
	c.mu.Lock()
	c.skipped++
	c.mu.Unlock()
}

func (c *runCounters) fill(r *MigrationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r.MigratedBooks = c.books
	r.SkippedBooks = c.skipped
	r.MigratedChapters = c.chapters

	// One default story and part per migrated book, one scene per
	// migrated chapter
	r.CreatedStories = c.books
	r.CreatedParts = c.books
	r.CreatedScenes = c.chapters
}
