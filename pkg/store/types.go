// ABOUTME: Data model for the story hierarchy and its legacy source rows
// ABOUTME: Books and legacy chapters are migration input, the rest is output

package store

import "time"

// Book is a top-level authored work. Books pre-exist migration and are
// never deleted by it; only their aggregate fields are updated.
type Book struct {
	ID           string
	AuthorID     string
	Title        string
	WordCount    int
	ChapterCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LegacyChapter is the pre-migration unit of content. The migration
// reads these rows and never mutates or deletes them.
type LegacyChapter struct {
	ID            string
	BookID        string
	ChapterNumber int // Unique per book
	Title         string
	Content       []byte // Rich-text document tree, JSON encoded
	WordCount     int
	Published     bool
	CreatedAt     time.Time
}

// Story is the new top grouping beneath a Book
type Story struct {
	ID         string
	BookID     string
	Title      string
	Synopsis   string
	OrderIndex int
	WordCount  int
	PartCount  int
	CreatedAt  time.Time
}

// Part groups chapters beneath a Story
type Part struct {
	ID           string
	StoryID      string
	Title        string
	PartNumber   int
	WordCount    int
	ChapterCount int
	CreatedAt    time.Time
}

// Chapter is the post-migration chapter, parented to a Part. BookID is
// denormalized for direct lookups.
type Chapter struct {
	ID                  string
	PartID              string
	BookID              string
	ChapterNumber       int
	GlobalChapterNumber int // Monotonic across the whole book
	Title               string
	Summary             string
	Content             []byte
	WordCount           int
	SceneCount          int
	OrderIndex          int
	Published           bool
	CreatedAt           time.Time
}

// Scene is the smallest narrative unit beneath a Chapter
type Scene struct {
	ID          string
	ChapterID   string
	SceneNumber int
	Title       string
	Content     string // Plain text extracted from rich content
	WordCount   int
	SceneType   string
	Mood        string
	Completed   bool
	CreatedAt   time.Time
}

// HierarchyPath maps a chapter to its full ancestor chain for
// navigation collaborators
type HierarchyPath struct {
	ID        string
	ChapterID string
	PartID    string
	StoryID   string
	BookID    string
	Path      string // "bookID/storyID/partID/chapterID"
	CreatedAt time.Time
}

// SearchIndexEntry is a denormalized searchable-text row consumed by
// an external search collaborator
type SearchIndexEntry struct {
	ID         string
	EntityType string
	EntityID   string
	BookID     string
	Title      string
	Body       string
	CreatedAt  time.Time
}

// DuplicateChapter reports a (bookID, chapterNumber) pair that occurs
// more than once among legacy chapters
type DuplicateChapter struct {
	BookID        string
	ChapterNumber int
	Count         int
}
