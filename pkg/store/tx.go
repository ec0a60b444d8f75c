// ABOUTME: Per-book write transaction surface for the migration engine
// ABOUTME: Groups one book's hierarchy writes into a single atomic unit

package store

import (
	"context"
	"fmt"
	"time"
)

// Tx exposes the hierarchy write operations against one transaction.
// All writes succeed or fail together when the store was opened with
// UseTransactions; otherwise they run directly against the pool.
type Tx struct {
	ctx context.Context
	q   queryer
}

// InTx runs fn against a single transaction when UseTransactions is
// set. A book's whole subtree is written through one Tx so a failed
// write leaves no partial hierarchy behind.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	return s.withTx(ctx, func(q queryer) error {
		return fn(&Tx{ctx: ctx, q: q})
	})
}

// CreateStory inserts a story row within the transaction
func (t *Tx) CreateStory(st *Story) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}

	_, err := t.q.ExecContext(t.ctx,
		`INSERT INTO stories (id, book_id, title, synopsis, order_index, word_count, part_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.BookID, st.Title, st.Synopsis, st.OrderIndex,
		st.WordCount, st.PartCount, st.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create story %s: %w", st.ID, err)
	}
	return nil
}

// CreatePart inserts a part row within the transaction
func (t *Tx) CreatePart(p *Part) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err := t.q.ExecContext(t.ctx,
		`INSERT INTO parts (id, story_id, title, part_number, word_count, chapter_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.StoryID, p.Title, p.PartNumber, p.WordCount, p.ChapterCount, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create part %s: %w", p.ID, err)
	}
	return nil
}

// CreateChapter inserts a chapter row within the transaction
func (t *Tx) CreateChapter(ch *Chapter) error {
	return insertChapter(t.ctx, t.q, ch)
}

// CreateScene inserts a scene row within the transaction
func (t *Tx) CreateScene(sc *Scene) error {
	return insertScene(t.ctx, t.q, sc)
}

// CreateHierarchyPath inserts a path row within the transaction
func (t *Tx) CreateHierarchyPath(hp *HierarchyPath) error {
	return insertHierarchyPath(t.ctx, t.q, hp)
}

// CreateSearchIndexEntry inserts a search row within the transaction
func (t *Tx) CreateSearchIndexEntry(e *SearchIndexEntry) error {
	return insertSearchEntry(t.ctx, t.q, e)
}

// UpdatePartAggregates updates part counts within the transaction
func (t *Tx) UpdatePartAggregates(id string, wordCount, chapterCount int) error {
	_, err := t.q.ExecContext(t.ctx,
		`UPDATE parts SET word_count = ?, chapter_count = ? WHERE id = ?`,
		wordCount, chapterCount, id)
	if err != nil {
		return fmt.Errorf("update part aggregates %s: %w", id, err)
	}
	return nil
}

// UpdateStoryAggregates updates story counts within the transaction
func (t *Tx) UpdateStoryAggregates(id string, wordCount, partCount int) error {
	_, err := t.q.ExecContext(t.ctx,
		`UPDATE stories SET word_count = ?, part_count = ? WHERE id = ?`,
		wordCount, partCount, id)
	if err != nil {
		return fmt.Errorf("update story aggregates %s: %w", id, err)
	}
	return nil
}

// UpdateBookAggregates updates book counts within the transaction
func (t *Tx) UpdateBookAggregates(id string, wordCount, chapterCount int) error {
	_, err := t.q.ExecContext(t.ctx,
		`UPDATE books SET word_count = ?, chapter_count = ?, updated_at = ? WHERE id = ?`,
		wordCount, chapterCount, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update book aggregates %s: %w", id, err)
	}
	return nil
}
