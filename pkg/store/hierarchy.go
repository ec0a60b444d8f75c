// ABOUTME: Hierarchy row operations, the migration's output side
// ABOUTME: Story, part, chapter, scene, path, and search index writes

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateStory inserts a story row
func (s *Store) CreateStory(ctx context.Context, st *Story) error {
	return (&Tx{ctx: ctx, q: s.db}).CreateStory(st)
}

// GetStoryByBook returns a book's first story by order index, or nil
// when the book has none
func (s *Store) GetStoryByBook(ctx context.Context, bookID string) (*Story, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, book_id, title, synopsis, order_index, word_count, part_count, created_at
		 FROM stories WHERE book_id = ? ORDER BY order_index LIMIT 1`, bookID)

	st, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return st, err
}

// ListStories returns a book's stories ordered by order index
func (s *Store) ListStories(ctx context.Context, bookID string) ([]*Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, title, synopsis, order_index, word_count, part_count, created_at
		 FROM stories WHERE book_id = ? ORDER BY order_index`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, st)
	}

	return stories, rows.Err()
}

// UpdateStoryAggregates updates a story's word and part counts
func (s *Store) UpdateStoryAggregates(ctx context.Context, id string, wordCount, partCount int) error {
	return (&Tx{ctx: ctx, q: s.db}).UpdateStoryAggregates(id, wordCount, partCount)
}

// CreatePart inserts a part row
func (s *Store) CreatePart(ctx context.Context, p *Part) error {
	return (&Tx{ctx: ctx, q: s.db}).CreatePart(p)
}

// ListParts returns a story's parts ordered by part number
func (s *Store) ListParts(ctx context.Context, storyID string) ([]*Part, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, story_id, title, part_number, word_count, chapter_count, created_at
		 FROM parts WHERE story_id = ? ORDER BY part_number`, storyID)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer rows.Close()

	var parts []*Part
	for rows.Next() {
		var p Part
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.StoryID, &p.Title, &p.PartNumber,
			&p.WordCount, &p.ChapterCount, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(createdAt, 0)
		parts = append(parts, &p)
	}

	return parts, rows.Err()
}

// UpdatePartAggregates updates a part's word and chapter counts
func (s *Store) UpdatePartAggregates(ctx context.Context, id string, wordCount, chapterCount int) error {
	return (&Tx{ctx: ctx, q: s.db}).UpdatePartAggregates(id, wordCount, chapterCount)
}

// InsertChapterBundle writes one migrated chapter together with its
// scene, hierarchy path, and search index entries. The bundle is
// atomic when the store was opened with UseTransactions.
func (s *Store) InsertChapterBundle(ctx context.Context, ch *Chapter, sc *Scene, hp *HierarchyPath, entries []*SearchIndexEntry) error {
	return s.withTx(ctx, func(q queryer) error {
		if err := insertChapter(ctx, q, ch); err != nil {
			return err
		}
		if err := insertScene(ctx, q, sc); err != nil {
			return err
		}
		if err := insertHierarchyPath(ctx, q, hp); err != nil {
			return err
		}
		for _, e := range entries {
			if err := insertSearchEntry(ctx, q, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateChapter inserts a chapter row
func (s *Store) CreateChapter(ctx context.Context, ch *Chapter) error {
	return insertChapter(ctx, s.db, ch)
}

// CreateScene inserts a scene row
func (s *Store) CreateScene(ctx context.Context, sc *Scene) error {
	return insertScene(ctx, s.db, sc)
}

// CreateHierarchyPath inserts a hierarchy path row
func (s *Store) CreateHierarchyPath(ctx context.Context, hp *HierarchyPath) error {
	return insertHierarchyPath(ctx, s.db, hp)
}

// CreateSearchIndexEntry inserts a search index row
func (s *Store) CreateSearchIndexEntry(ctx context.Context, e *SearchIndexEntry) error {
	return insertSearchEntry(ctx, s.db, e)
}

// ListChaptersByBook returns a book's migrated chapters ordered by
// order index
func (s *Store) ListChaptersByBook(ctx context.Context, bookID string) ([]*Chapter, error) {
	return s.listChapters(ctx,
		`SELECT id, part_id, book_id, chapter_number, global_chapter_number, title, summary,
		        content, word_count, scene_count, order_index, published, created_at
		 FROM chapters WHERE book_id = ? ORDER BY order_index`, bookID)
}

// ListChaptersByPart returns a part's chapters ordered by order index
func (s *Store) ListChaptersByPart(ctx context.Context, partID string) ([]*Chapter, error) {
	return s.listChapters(ctx,
		`SELECT id, part_id, book_id, chapter_number, global_chapter_number, title, summary,
		        content, word_count, scene_count, order_index, published, created_at
		 FROM chapters WHERE part_id = ? ORDER BY order_index`, partID)
}

// ListScenes returns a chapter's scenes ordered by scene number
func (s *Store) ListScenes(ctx context.Context, chapterID string) ([]*Scene, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chapter_id, scene_number, title, content, word_count, scene_type, mood, completed, created_at
		 FROM scenes WHERE chapter_id = ? ORDER BY scene_number`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		var sc Scene
		var completed int
		var createdAt int64
		if err := rows.Scan(&sc.ID, &sc.ChapterID, &sc.SceneNumber, &sc.Title, &sc.Content,
			&sc.WordCount, &sc.SceneType, &sc.Mood, &completed, &createdAt); err != nil {
			return nil, err
		}
		sc.Completed = completed != 0
		sc.CreatedAt = time.Unix(createdAt, 0)
		scenes = append(scenes, &sc)
	}

	return scenes, rows.Err()
}

// GetHierarchyPath returns the path row for a chapter
func (s *Store) GetHierarchyPath(ctx context.Context, chapterID string) (*HierarchyPath, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chapter_id, part_id, story_id, book_id, path, created_at
		 FROM hierarchy_paths WHERE chapter_id = ?`, chapterID)

	var hp HierarchyPath
	var createdAt int64
	err := row.Scan(&hp.ID, &hp.ChapterID, &hp.PartID, &hp.StoryID, &hp.BookID, &hp.Path, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hierarchy path not found for chapter %s", chapterID)
	}
	if err != nil {
		return nil, err
	}

	hp.CreatedAt = time.Unix(createdAt, 0)
	return &hp, nil
}

// Hierarchy row counts

func (s *Store) CountStories(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM stories`)
}

func (s *Store) CountParts(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM parts`)
}

func (s *Store) CountChapters(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM chapters`)
}

func (s *Store) CountScenes(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM scenes`)
}

func (s *Store) CountHierarchyPaths(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM hierarchy_paths`)
}

func (s *Store) CountSearchEntries(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM search_index`)
}

// Bulk deletes used by rollback, children first. Each returns the
// number of rows removed.

func (s *Store) DeleteAllSearchEntries(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, "search_index")
}

func (s *Store) DeleteAllHierarchyPaths(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, "hierarchy_paths")
}

func (s *Store) DeleteAllScenes(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, "scenes")
}

func (s *Store) DeleteAllChapters(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, "chapters")
}

func (s *Store) DeleteAllParts(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, "parts")
}

func (s *Store) DeleteAllStories(ctx context.Context) (int64, error) {
	return s.deleteAll(ctx, "stories")
}

func (s *Store) deleteAll(ctx context.Context, table string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

func (s *Store) listChapters(ctx context.Context, query string, args ...any) ([]*Chapter, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		var ch Chapter
		var published int
		var createdAt int64
		if err := rows.Scan(&ch.ID, &ch.PartID, &ch.BookID, &ch.ChapterNumber, &ch.GlobalChapterNumber,
			&ch.Title, &ch.Summary, &ch.Content, &ch.WordCount, &ch.SceneCount,
			&ch.OrderIndex, &published, &createdAt); err != nil {
			return nil, err
		}
		ch.Published = published != 0
		ch.CreatedAt = time.Unix(createdAt, 0)
		chapters = append(chapters, &ch)
	}

	return chapters, rows.Err()
}

func scanStory(r rowScanner) (*Story, error) {
	var st Story
	var createdAt int64

	err := r.Scan(&st.ID, &st.BookID, &st.Title, &st.Synopsis, &st.OrderIndex,
		&st.WordCount, &st.PartCount, &createdAt)
	if err != nil {
		return nil, err
	}

	st.CreatedAt = time.Unix(createdAt, 0)
	return &st, nil
}

func insertChapter(ctx context.Context, q queryer, ch *Chapter) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO chapters (id, part_id, book_id, chapter_number, global_chapter_number, title,
		                       summary, content, word_count, scene_count, order_index, published, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.PartID, ch.BookID, ch.ChapterNumber, ch.GlobalChapterNumber, ch.Title,
		ch.Summary, ch.Content, ch.WordCount, ch.SceneCount, ch.OrderIndex,
		boolToInt(ch.Published), ch.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create chapter %s: %w", ch.ID, err)
	}
	return nil
}

func insertScene(ctx context.Context, q queryer, sc *Scene) error {
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO scenes (id, chapter_id, scene_number, title, content, word_count, scene_type, mood, completed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.ChapterID, sc.SceneNumber, sc.Title, sc.Content, sc.WordCount,
		sc.SceneType, sc.Mood, boolToInt(sc.Completed), sc.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create scene %s: %w", sc.ID, err)
	}
	return nil
}

func insertHierarchyPath(ctx context.Context, q queryer, hp *HierarchyPath) error {
	if hp.CreatedAt.IsZero() {
		hp.CreatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO hierarchy_paths (id, chapter_id, part_id, story_id, book_id, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		hp.ID, hp.ChapterID, hp.PartID, hp.StoryID, hp.BookID, hp.Path, hp.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create hierarchy path %s: %w", hp.ID, err)
	}
	return nil
}

func insertSearchEntry(ctx context.Context, q queryer, e *SearchIndexEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO search_index (id, entity_type, entity_id, book_id, title, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntityType, e.EntityID, e.BookID, e.Title, e.Body, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create search entry %s: %w", e.ID, err)
	}
	return nil
}
