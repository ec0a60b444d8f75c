// ABOUTME: Read-only integrity queries backing the validator
// ABOUTME: Orphan scans, duplicate detection, and aggregate reconciliation

package store

import (
	"context"
	"fmt"
)

// AggregateMismatch reports a parent row whose stored word count
// disagrees with the sum over its children
type AggregateMismatch struct {
	Level    string // chapter, part, story, book
	ID       string
	Stored   int
	Computed int
}

// BooksMissingAuthor returns IDs of books with no author reference
func (s *Store) BooksMissingAuthor(ctx context.Context) ([]string, error) {
	return s.idList(ctx, `SELECT id FROM books WHERE author_id = ''`)
}

// BooksWithEmptyTitle returns IDs of books with an empty title
func (s *Store) BooksWithEmptyTitle(ctx context.Context) ([]string, error) {
	return s.idList(ctx, `SELECT id FROM books WHERE TRIM(title) = ''`)
}

// LegacyChaptersWithEmptyTitle returns IDs of legacy chapters with an
// empty title
func (s *Store) LegacyChaptersWithEmptyTitle(ctx context.Context) ([]string, error) {
	return s.idList(ctx, `SELECT id FROM legacy_chapters WHERE TRIM(title) = ''`)
}

// OrphanedLegacyChapters returns IDs of legacy chapters referencing a
// nonexistent book
func (s *Store) OrphanedLegacyChapters(ctx context.Context) ([]string, error) {
	return s.idList(ctx,
		`SELECT lc.id FROM legacy_chapters lc
		 LEFT JOIN books b ON b.id = lc.book_id
		 WHERE b.id IS NULL`)
}

// NegativeWordCountChapters returns IDs of legacy chapters with a
// negative word count
func (s *Store) NegativeWordCountChapters(ctx context.Context) ([]string, error) {
	return s.idList(ctx, `SELECT id FROM legacy_chapters WHERE word_count < 0`)
}

// DuplicateChapterNumbers returns (bookID, chapterNumber) pairs that
// occur more than once among legacy chapters
func (s *Store) DuplicateChapterNumbers(ctx context.Context) ([]DuplicateChapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id, chapter_number, COUNT(*) FROM legacy_chapters
		 GROUP BY book_id, chapter_number HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, fmt.Errorf("scan duplicates: %w", err)
	}
	defer rows.Close()

	var dups []DuplicateChapter
	for rows.Next() {
		var d DuplicateChapter
		if err := rows.Scan(&d.BookID, &d.ChapterNumber, &d.Count); err != nil {
			return nil, err
		}
		dups = append(dups, d)
	}

	return dups, rows.Err()
}

// OrphanedScenes returns IDs of scenes without a valid chapter parent
func (s *Store) OrphanedScenes(ctx context.Context) ([]string, error) {
	return s.idList(ctx,
		`SELECT sc.id FROM scenes sc
		 LEFT JOIN chapters c ON c.id = sc.chapter_id
		 WHERE c.id IS NULL`)
}

// OrphanedChapters returns IDs of chapters without a valid part parent
func (s *Store) OrphanedChapters(ctx context.Context) ([]string, error) {
	return s.idList(ctx,
		`SELECT c.id FROM chapters c
		 LEFT JOIN parts p ON p.id = c.part_id
		 WHERE p.id IS NULL`)
}

// OrphanedParts returns IDs of parts without a valid story parent
func (s *Store) OrphanedParts(ctx context.Context) ([]string, error) {
	return s.idList(ctx,
		`SELECT p.id FROM parts p
		 LEFT JOIN stories st ON st.id = p.story_id
		 WHERE st.id IS NULL`)
}

// OrphanedStories returns IDs of stories without a valid book parent
func (s *Store) OrphanedStories(ctx context.Context) ([]string, error) {
	return s.idList(ctx,
		`SELECT st.id FROM stories st
		 LEFT JOIN books b ON b.id = st.book_id
		 WHERE b.id IS NULL`)
}

// ChapterWordMismatches returns chapters whose word count disagrees
// with the sum over their scenes
func (s *Store) ChapterWordMismatches(ctx context.Context) ([]AggregateMismatch, error) {
	return s.mismatches(ctx, "chapter",
		`SELECT c.id, c.word_count, COALESCE(SUM(sc.word_count), 0)
		 FROM chapters c LEFT JOIN scenes sc ON sc.chapter_id = c.id
		 GROUP BY c.id HAVING c.word_count != COALESCE(SUM(sc.word_count), 0)`)
}

// PartWordMismatches returns parts whose word count disagrees with the
// sum over their chapters
func (s *Store) PartWordMismatches(ctx context.Context) ([]AggregateMismatch, error) {
	return s.mismatches(ctx, "part",
		`SELECT p.id, p.word_count, COALESCE(SUM(c.word_count), 0)
		 FROM parts p LEFT JOIN chapters c ON c.part_id = p.id
		 GROUP BY p.id HAVING p.word_count != COALESCE(SUM(c.word_count), 0)`)
}

// StoryWordMismatches returns stories whose word count disagrees with
// the sum over their parts
func (s *Store) StoryWordMismatches(ctx context.Context) ([]AggregateMismatch, error) {
	return s.mismatches(ctx, "story",
		`SELECT st.id, st.word_count, COALESCE(SUM(p.word_count), 0)
		 FROM stories st LEFT JOIN parts p ON p.story_id = st.id
		 GROUP BY st.id HAVING st.word_count != COALESCE(SUM(p.word_count), 0)`)
}

// BookWordMismatches returns books with at least one story whose
// stored word count disagrees with the sum over their stories. Books
// that were never migrated carry no stories and are skipped.
func (s *Store) BookWordMismatches(ctx context.Context) ([]AggregateMismatch, error) {
	return s.mismatches(ctx, "book",
		`SELECT b.id, b.word_count, COALESCE(SUM(st.word_count), 0)
		 FROM books b JOIN stories st ON st.book_id = b.id
		 GROUP BY b.id HAVING b.word_count != COALESCE(SUM(st.word_count), 0)`)
}

func (s *Store) idList(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("integrity scan: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Store) mismatches(ctx context.Context, level, query string) ([]AggregateMismatch, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s word counts: %w", level, err)
	}
	defer rows.Close()

	var out []AggregateMismatch
	for rows.Next() {
		m := AggregateMismatch{Level: level}
		if err := rows.Scan(&m.ID, &m.Stored, &m.Computed); err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	return out, rows.Err()
}
