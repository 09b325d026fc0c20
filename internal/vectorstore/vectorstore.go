// Package vectorstore keeps embedded text records and answers cosine
// similarity queries over them.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// idNamespace scopes content-derived document IDs.
var idNamespace = uuid.MustParse("6f1d3c8e-2a4b-5e7f-9c0d-1b2a3c4d5e6f")

// DocumentID derives the stable ID of a document from its content. Equal
// content always yields the same ID, across processes.
func DocumentID(content string) string {
	return uuid.NewSHA1(idNamespace, []byte(content)).String()
}

// Record is one stored document. Metadata values are scalars.
type Record struct {
	ID        string         `json:"doc_id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// Entry is a document waiting to be inserted.
type Entry struct {
	Content  string
	Metadata map[string]any
}

// Result is one search hit.
type Result struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

// Stats summarizes an index.
type Stats struct {
	Count     int    `json:"total_documents"`
	Location  string `json:"storage_path"`
	Embedder  string `json:"embedder"`
	Dimension int    `json:"dimension"`
}

// Index is a store of embedded documents. Implementations are safe for
// concurrent use; writers are serialized and readers never observe a
// half-applied write.
type Index interface {
	// Insert embeds content and stores it under DocumentID(content),
	// overwriting any previous document with the same content.
	Insert(ctx context.Context, content string, metadata map[string]any) (string, error)
	// InsertMany inserts entries as one write and returns their IDs in order.
	InsertMany(ctx context.Context, entries []Entry) ([]string, error)
	// Search returns at most k documents with similarity >= minSimilarity,
	// most similar first.
	Search(ctx context.Context, query string, k int, minSimilarity float64) ([]Result, error)
	// Delete removes one document and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteWhere removes every document whose metadata[key] equals value.
	DeleteWhere(ctx context.Context, key string, value any) (int, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// StorageError reports a failed read or write of persisted index state.
type StorageError struct {
	Op       string
	Location string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// metadataEqual compares scalar metadata values. Numbers decoded from JSON
// come back as float64, so values are compared by their printed form.
func metadataEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
