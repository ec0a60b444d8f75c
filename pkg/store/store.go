// ABOUTME: SQLite-backed relational store for the story hierarchy
// ABOUTME: Owns schema, connection limits, and transaction plumbing

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// schema defines all tables. Hierarchy rows carry lookup indexes;
// referential integrity is checked by the validator rather than
// enforced by constraints, since legacy data predates this system.
const schema = `
CREATE TABLE IF NOT EXISTS books (
    id TEXT PRIMARY KEY,
    author_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    word_count INTEGER NOT NULL DEFAULT 0,
    chapter_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS legacy_chapters (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    chapter_number INTEGER NOT NULL,
    title TEXT NOT NULL,
    content BLOB,
    word_count INTEGER NOT NULL DEFAULT 0,
    published INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

-- No unique constraint on (book_id, chapter_number): legacy data
-- predates this system and may carry duplicates; the validator
-- detects them instead of the schema rejecting them.
CREATE INDEX IF NOT EXISTS idx_legacy_book_number
    ON legacy_chapters(book_id, chapter_number);

CREATE TABLE IF NOT EXISTS stories (
    id TEXT PRIMARY KEY,
    book_id TEXT NOT NULL,
    title TEXT NOT NULL,
    synopsis TEXT NOT NULL DEFAULT '',
    order_index INTEGER NOT NULL DEFAULT 0,
    word_count INTEGER NOT NULL DEFAULT 0,
    part_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stories_book ON stories(book_id);

CREATE TABLE IF NOT EXISTS parts (
    id TEXT PRIMARY KEY,
    story_id TEXT NOT NULL,
    title TEXT NOT NULL,
    part_number INTEGER NOT NULL,
    word_count INTEGER NOT NULL DEFAULT 0,
    chapter_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parts_story ON parts(story_id);

CREATE TABLE IF NOT EXISTS chapters (
    id TEXT PRIMARY KEY,
    part_id TEXT NOT NULL,
    book_id TEXT NOT NULL,
    chapter_number INTEGER NOT NULL,
    global_chapter_number INTEGER NOT NULL,
    title TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    content BLOB,
    word_count INTEGER NOT NULL DEFAULT 0,
    scene_count INTEGER NOT NULL DEFAULT 0,
    order_index INTEGER NOT NULL DEFAULT 0,
    published INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chapters_part ON chapters(part_id, order_index);
CREATE INDEX IF NOT EXISTS idx_chapters_book ON chapters(book_id);

CREATE TABLE IF NOT EXISTS scenes (
    id TEXT PRIMARY KEY,
    chapter_id TEXT NOT NULL,
    scene_number INTEGER NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    word_count INTEGER NOT NULL DEFAULT 0,
    scene_type TEXT NOT NULL DEFAULT '',
    mood TEXT NOT NULL DEFAULT '',
    completed INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scenes_chapter ON scenes(chapter_id, scene_number);

CREATE TABLE IF NOT EXISTS hierarchy_paths (
    id TEXT PRIMARY KEY,
    chapter_id TEXT NOT NULL,
    part_id TEXT NOT NULL,
    story_id TEXT NOT NULL,
    book_id TEXT NOT NULL,
    path TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paths_chapter ON hierarchy_paths(chapter_id);

CREATE TABLE IF NOT EXISTS search_index (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    book_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_search_entity ON search_index(entity_type, entity_id);
`

// Options configures the store connection
type Options struct {
	Path            string // Database file path, or ":memory:"
	MaxConnections  int    // Connection pool cap, 0 for driver default
	UseTransactions bool   // Wrap multi-row writes in transactions
}

// Store is the SQLite-backed data store shared by the migration engine
// and its collaborators
type Store struct {
	db              *sql.DB
	useTransactions bool
}

// Open opens or creates the database and applies the schema
func Open(opts Options) (*Store, error) {
	path := opts.Path
	if path == "" {
		path = ":memory:"
	}

	// Busy timeout covers write contention between concurrent batches
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(opts.MaxConnections)
	} else if path == ":memory:" {
		// A shared in-memory database exists per connection; keep one
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, useTransactions: opts.UseTransactions}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for collaborators that need raw
// read access
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside a transaction when UseTransactions is set,
// directly against the pool otherwise
func (s *Store) withTx(ctx context.Context, fn func(q queryer) error) error {
	if !s.useTransactions {
		return fn(s.db)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
