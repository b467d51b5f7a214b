// Package store reads library metadata (books, authors, narration
// collections) from the SQLite catalog the ingestion pipeline maintains.
// Search payloads carry only numeric identifiers; this store resolves
// them to display names after fusion.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// Book is one catalog entry for a long-form book.
type Book struct {
	ID         int64
	Title      string
	AuthorName string
	Volumes    int
}

// Collection is one catalog entry for a narration collection.
type Collection struct {
	ID    int64
	Title string
}

// Store reads the metadata catalog. Read-only; the ingestion pipeline
// owns writes.
type Store struct {
	db *sql.DB
}

// Open opens the catalog at path read-only.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	return &Store{db: db}, nil
}

// Book returns one book with its author name joined in.
func (s *Store) Book(ctx context.Context, id int64) (Book, error) {
	const q = `
		SELECT b.id, b.title, COALESCE(a.name, ''), b.volumes
		FROM books b
		LEFT JOIN authors a ON a.id = b.author_id
		WHERE b.id = ?`

	var b Book
	err := s.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Title, &b.AuthorName, &b.Volumes)
	if err == sql.ErrNoRows {
		return Book{}, fmt.Errorf("book %d not found", id)
	}
	if err != nil {
		return Book{}, fmt.Errorf("query book %d: %w", id, err)
	}
	return b, nil
}

// Collection returns one narration collection.
func (s *Store) Collection(ctx context.Context, id int64) (Collection, error) {
	const q = `SELECT id, title FROM collections WHERE id = ?`

	var c Collection
	err := s.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Title)
	if err == sql.ErrNoRows {
		return Collection{}, fmt.Errorf("collection %d not found", id)
	}
	if err != nil {
		return Collection{}, fmt.Errorf("query collection %d: %w", id, err)
	}
	return c, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
