// Package vectorstore provides nearest-neighbor lookups over embedding
// vectors, organized into named collections. The snapshot store remains the
// source of truth; every collection written here can be dropped and rebuilt
// from it, so the index is treated as a cache.
package vectorstore

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when a collection does not exist yet,
// e.g. tag embeddings queried before the embed-tags stage has run. Callers
// performing best-effort lookups treat it as zero candidates.
var ErrCollectionNotFound = errors.New("vectorstore: collection not found")

// Record is one embedding with its identity and payload.
type Record struct {
	// ID is the unique identifier within the collection (article path,
	// cluster id, tag id).
	ID string

	// Embedding is the vector; may be empty on reads that exclude vectors.
	Embedding []float64

	// Metadata carries small string payloads (source-file, title, url).
	Metadata map[string]string

	// Document is the optional raw text stored alongside the vector.
	Document string
}

// Match is one nearest-neighbor result.
type Match struct {
	// ID is the matched record's identifier.
	ID string

	// Distance is the cosine distance to the query vector (lower = closer).
	Distance float64

	// Metadata is the matched record's metadata.
	Metadata map[string]string
}

// Index is the vector-similarity index consumed by the pipeline. Upserts are
// idempotent: writing the same id twice overwrites, so re-running a whole
// stage is always safe.
type Index interface {
	// Upsert writes records into the named collection, creating it on first
	// use.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Query returns the topK nearest records to the embedding, closest
	// first. Returns ErrCollectionNotFound when the collection is absent.
	Query(ctx context.Context, collection string, embedding []float64, topK int) ([]Match, error)

	// Page reads up to limit records starting at offset, including their
	// embeddings. Used to scan the externally-owned chunk collection.
	Page(ctx context.Context, collection string, limit, offset int) ([]Record, error)
}
