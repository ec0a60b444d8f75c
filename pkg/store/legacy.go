// ABOUTME: Book and legacy chapter operations, the migration's input side
// ABOUTME: Legacy rows are read and counted but never mutated or deleted

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateBook inserts a book row
func (s *Store) CreateBook(ctx context.Context, b *Book) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO books (id, author_id, title, word_count, chapter_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AuthorID, b.Title, b.WordCount, b.ChapterCount,
		b.CreatedAt.Unix(), b.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create book %s: %w", b.ID, err)
	}
	return nil
}

// GetBook retrieves a book by ID
func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, title, word_count, chapter_count, created_at, updated_at
		 FROM books WHERE id = ?`, id)

	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("book not found: %s", id)
	}
	return b, err
}

// ListBooks returns all books ordered by creation time, then ID
func (s *Store) ListBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, title, word_count, chapter_count, created_at, updated_at
		 FROM books ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}

	return books, rows.Err()
}

// UpdateBookAggregates updates a book's word and chapter counts
func (s *Store) UpdateBookAggregates(ctx context.Context, id string, wordCount, chapterCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE books SET word_count = ?, chapter_count = ?, updated_at = ? WHERE id = ?`,
		wordCount, chapterCount, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update book aggregates %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("book not found: %s", id)
	}
	return nil
}

// CountBooks returns the number of book rows
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM books`)
}

// CreateLegacyChapter inserts a legacy chapter row
func (s *Store) CreateLegacyChapter(ctx context.Context, c *LegacyChapter) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO legacy_chapters (id, book_id, chapter_number, title, content, word_count, published, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.BookID, c.ChapterNumber, c.Title, c.Content,
		c.WordCount, boolToInt(c.Published), c.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create legacy chapter %s: %w", c.ID, err)
	}
	return nil
}

// ListLegacyChapters returns a book's legacy chapters in ascending
// chapter-number order
func (s *Store) ListLegacyChapters(ctx context.Context, bookID string) ([]*LegacyChapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, chapter_number, title, content, word_count, published, created_at
		 FROM legacy_chapters WHERE book_id = ? ORDER BY chapter_number`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list legacy chapters: %w", err)
	}
	defer rows.Close()

	return collectLegacyChapters(rows)
}

// ListAllLegacyChapters returns every legacy chapter ordered by book,
// then chapter number
func (s *Store) ListAllLegacyChapters(ctx context.Context) ([]*LegacyChapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, chapter_number, title, content, word_count, published, created_at
		 FROM legacy_chapters ORDER BY book_id, chapter_number`)
	if err != nil {
		return nil, fmt.Errorf("list legacy chapters: %w", err)
	}
	defer rows.Close()

	return collectLegacyChapters(rows)
}

// CountLegacyChapters returns the number of legacy chapter rows
func (s *Store) CountLegacyChapters(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM legacy_chapters`)
}

// SumLegacyWordCounts returns the total legacy word count for a book
func (s *Store) SumLegacyWordCounts(ctx context.Context, bookID string) (int, error) {
	return s.count(ctx,
		`SELECT COALESCE(SUM(word_count), 0) FROM legacy_chapters WHERE book_id = ?`, bookID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(r rowScanner) (*Book, error) {
	var b Book
	var createdAt, updatedAt int64

	err := r.Scan(&b.ID, &b.AuthorID, &b.Title, &b.WordCount, &b.ChapterCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	b.CreatedAt = time.Unix(createdAt, 0)
	b.UpdatedAt = time.Unix(updatedAt, 0)
	return &b, nil
}

func collectLegacyChapters(rows *sql.Rows) ([]*LegacyChapter, error) {
	var chapters []*LegacyChapter
	for rows.Next() {
		var c LegacyChapter
		var published int
		var createdAt int64

		err := rows.Scan(&c.ID, &c.BookID, &c.ChapterNumber, &c.Title, &c.Content,
			&c.WordCount, &published, &createdAt)
		if err != nil {
			return nil, err
		}

		c.Published = published != 0
		c.CreatedAt = time.Unix(createdAt, 0)
		chapters = append(chapters, &c)
	}

	return chapters, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
