// Synthetic corpus generation for local testing and benchmarks
package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/nainya/storyforge/pkg/richtext"
	"github.com/nainya/storyforge/pkg/store"
)

var seedWords = []string{
	"the", "old", "harbor", "light", "faded", "over", "water", "and",
	"she", "walked", "north", "along", "empty", "streets", "toward",
	"a", "door", "that", "never", "opened", "before", "winter", "came",
	"with", "its", "quiet", "snow", "burying", "every", "promise",
}

// seedCorpus writes a synthetic flat corpus: books with numbered
// chapters carrying rich-text content
func seedCorpus(ctx context.Context, s *store.Store, books, chapters, words int) error {
	rng := rand.New(rand.NewSource(42))

	for b := 0; b < books; b++ {
		book := &store.Book{
			ID:       uuid.NewString(),
			AuthorID: fmt.Sprintf("author-%d", b%7),
			Title:    fmt.Sprintf("Book %d", b+1),
		}
		if err := s.CreateBook(ctx, book); err != nil {
			return err
		}

		for c := 1; c <= chapters; c++ {
			doc := randomDocument(rng, words)
			content, err := richtext.Encode(doc)
			if err != nil {
				return err
			}

			ch := &store.LegacyChapter{
				ID:            uuid.NewString(),
				BookID:        book.ID,
				ChapterNumber: c,
				Title:         fmt.Sprintf("Chapter %d", c),
				Content:       content,
				WordCount:     richtext.WordCount(doc),
				Published:     rng.Intn(4) > 0,
			}
			if err := s.CreateLegacyChapter(ctx, ch); err != nil {
				return err
			}
		}
	}

	return nil
}

// randomDocument builds a document of paragraphs totalling roughly
// wordCount words
func randomDocument(rng *rand.Rand, wordCount int) *richtext.Node {
	if wordCount <= 0 {
		wordCount = 100
	}

	var paragraphs []*richtext.Node
	remaining := wordCount

	for remaining > 0 {
		n := 40 + rng.Intn(40)
		if n > remaining {
			n = remaining
		}
		remaining -= n

		picked := make([]string, n)
		for i := range picked {
			picked[i] = seedWords[rng.Intn(len(seedWords))]
		}

		paragraphs = append(paragraphs,
			richtext.NewContainer("paragraph", richtext.NewText(strings.Join(picked, " "))))
	}

	return richtext.NewContainer("", paragraphs...)
}
