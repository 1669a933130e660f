// Package vectorstore defines the contract every vector backend implements.
// Callers never touch the backing storage directly; concurrency correctness
// is enforced behind this API.
package vectorstore

import "context"

// Metadata travels with every entry and scopes retrieval by document.
type Metadata struct {
	DocumentID    string
	DocumentName  string
	SequenceIndex int
	ContentType   string
	// DocSeq is the registry sequence of the owning document. Together with
	// SequenceIndex it gives a global insertion order used to break score
	// ties deterministically.
	DocSeq int64
}

// Entry is one (vector, text, metadata) triple in a collection.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// Result is one ranked search hit. Score is cosine similarity in [-1, 1].
type Result struct {
	Text     string
	Metadata Metadata
	Score    float32
}

// Store is a set of named vector collections with document-scoped search.
//
// Search restricts candidates to entries whose document id is in allowedDocs
// before ranking. An empty allowedDocs always yields an empty result, never
// "search everything".
type Store interface {
	// CreateCollection declares a collection and its fixed dimensionality.
	// Creating an existing collection is a no-op.
	CreateCollection(ctx context.Context, name string, dimension int) error

	// Insert appends entries. Ids must be unique within the collection;
	// a duplicate fails with ErrDuplicateID before any entry is written.
	Insert(ctx context.Context, collection string, entries []Entry) error

	// Search returns up to k results ordered by descending similarity.
	// Equal scores rank earlier-inserted entries first.
	Search(ctx context.Context, collection string, queryVector []float32, k int, allowedDocs []string) ([]Result, error)

	// Delete removes all entries owned by the given documents and reports
	// how many were removed. Absent ids are a no-op, not an error.
	Delete(ctx context.Context, collection string, documentIDs []string) (int, error)

	Close() error
}
