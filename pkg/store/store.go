// Package store holds the vector persistence layer for persona items. The
// document codec emits items; this layer embeds, persists, and scans them.
package store

import (
	"context"
	"errors"
)

// ErrCollectionMissing is returned when an operation targets a collection
// that has not been ensured.
var ErrCollectionMissing = errors.New("collection not found")

// ErrDimensionMismatch is returned when an ensured collection's stored
// dimension disagrees with the active embedder.
var ErrDimensionMismatch = errors.New("collection dimension mismatch")

// Record is one persisted item: rendered content plus the flat string
// metadata that the document codec can rebuild from.
type Record struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// ScoredRecord is a search hit with its cosine similarity.
type ScoredRecord struct {
	Record
	Score float64
}

// Filter selects records during scans and deletes. Empty fields match
// everything.
type Filter struct {
	UserID string
	Path   string
}

// VectorStore is the persistence contract the persona layer depends on.
// Scroll is cursor-paged: pass the returned cursor back in until it is empty.
type VectorStore interface {
	// EnsureCollection creates the collection if absent and verifies the
	// stored dimension matches dim.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// AddTexts embeds and persists texts with parallel metadatas and ids.
	AddTexts(ctx context.Context, collection string, texts []string, metadatas []map[string]string, ids []string) error

	// DeleteByFilter removes every record matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter Filter) (int, error)

	// Scroll pages through matching records in id order without scoring.
	Scroll(ctx context.Context, collection string, filter Filter, limit int, cursor string) ([]Record, string, error)

	// Search returns the topK records most similar to the query text.
	Search(ctx context.Context, collection string, query string, filter Filter, topK int) ([]ScoredRecord, error)

	Close() error
}
