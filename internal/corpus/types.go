// Package corpus defines the three searchable entity families (book
// passages, scripture verses, short narrations) and their identity and
// rendering rules. Fusion and merging are generic over these payloads;
// everything corpus-specific lives here.
package corpus

import (
	"fmt"
	"strings"
)

// Kind discriminates the three corpora in cross-corpus candidate lists.
type Kind string

const (
	KindPassage   Kind = "passage"
	KindVerse     Kind = "verse"
	KindNarration Kind = "narration"
)

// Passage is one page-sized slice of a long-form book.
type Passage struct {
	BookID     int64  `json:"book_id"`
	PageNumber int    `json:"page_number"`
	Volume     int    `json:"volume,omitempty"`
	Text       string `json:"text"`

	// Snippet is a keyword-highlighted excerpt supplied by the lexical
	// backend. Empty when the passage was found by semantic search only.
	Snippet string `json:"snippet,omitempty"`

	// BookTitle and AuthorName are filled from the metadata store after
	// fusion; backends are not required to carry them.
	BookTitle  string `json:"book_title,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
}

// Key returns the dedup identity: passages are unique per (book, page).
func (p Passage) Key() string {
	return fmt.Sprintf("%d:%d", p.BookID, p.PageNumber)
}

// DisplayText prefers the highlighted lexical snippet over the raw page.
func (p Passage) DisplayText() string {
	if p.Snippet != "" {
		return p.Snippet
	}
	return p.Text
}

// Render produces the text presented to reranking services.
func (p Passage) Render() string {
	var b strings.Builder
	if p.BookTitle != "" {
		b.WriteString(p.BookTitle)
		b.WriteString(" — ")
	}
	b.WriteString(p.DisplayText())
	return b.String()
}

// Verse is a single scripture verse.
type Verse struct {
	BookNumber  int    `json:"book_number"`
	VerseNumber int    `json:"verse_number"`
	Text        string `json:"text"`
	Snippet     string `json:"snippet,omitempty"`
	ChapterName string `json:"chapter_name,omitempty"`
}

// Key returns the dedup identity: verses are unique per (book, verse).
func (v Verse) Key() string {
	return fmt.Sprintf("%d:%d", v.BookNumber, v.VerseNumber)
}

// DisplayText prefers the highlighted lexical snippet over the canonical text.
func (v Verse) DisplayText() string {
	if v.Snippet != "" {
		return v.Snippet
	}
	return v.Text
}

// Render produces the text presented to reranking services.
func (v Verse) Render() string {
	if v.ChapterName != "" {
		return fmt.Sprintf("%s %d: %s", v.ChapterName, v.VerseNumber, v.DisplayText())
	}
	return v.DisplayText()
}

// Narration is a short narrated report from a numbered collection.
type Narration struct {
	CollectionID    int64  `json:"collection_id"`
	NarrationNumber int    `json:"narration_number"`
	Text            string `json:"text"`
	Snippet         string `json:"snippet,omitempty"`
	CollectionTitle string `json:"collection_title,omitempty"`
	Grade           string `json:"grade,omitempty"`
}

// Key returns the dedup identity: narrations are unique per
// (collection, number).
func (n Narration) Key() string {
	return fmt.Sprintf("%d:%d", n.CollectionID, n.NarrationNumber)
}

// DisplayText prefers the highlighted lexical snippet over the full text.
func (n Narration) DisplayText() string {
	if n.Snippet != "" {
		return n.Snippet
	}
	return n.Text
}

// Render produces the text presented to reranking services.
func (n Narration) Render() string {
	if n.CollectionTitle != "" {
		return fmt.Sprintf("%s #%d: %s", n.CollectionTitle, n.NarrationNumber, n.DisplayText())
	}
	return n.DisplayText()
}
