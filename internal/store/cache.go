package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMetadataCacheSize bounds the per-kind metadata caches. The
// catalog is small and effectively immutable while the process runs.
const DefaultMetadataCacheSize = 4096

// CachedStore wraps a Store with LRU caches and adapts it to the lookup
// shape the search engine enriches results with.
type CachedStore struct {
	inner       *Store
	books       *lru.Cache[int64, Book]
	collections *lru.Cache[int64, Collection]
}

// NewCachedStore wraps inner with caches of the given size.
func NewCachedStore(inner *Store, size int) *CachedStore {
	if size <= 0 {
		size = DefaultMetadataCacheSize
	}
	books, _ := lru.New[int64, Book](size)
	collections, _ := lru.New[int64, Collection](size)
	return &CachedStore{inner: inner, books: books, collections: collections}
}

// BookInfo returns the title and author of one book. Negative results
// are not cached; a missing book stays a live lookup.
func (c *CachedStore) BookInfo(ctx context.Context, bookID int64) (title, author string, err error) {
	if b, ok := c.books.Get(bookID); ok {
		return b.Title, b.AuthorName, nil
	}
	b, err := c.inner.Book(ctx, bookID)
	if err != nil {
		return "", "", err
	}
	c.books.Add(bookID, b)
	return b.Title, b.AuthorName, nil
}

// CollectionInfo returns the title of one narration collection.
func (c *CachedStore) CollectionInfo(ctx context.Context, collectionID int64) (string, error) {
	if col, ok := c.collections.Get(collectionID); ok {
		return col.Title, nil
	}
	col, err := c.inner.Collection(ctx, collectionID)
	if err != nil {
		return "", err
	}
	c.collections.Add(collectionID, col)
	return col.Title, nil
}

// Close closes the underlying store.
func (c *CachedStore) Close() error {
	return c.inner.Close()
}
