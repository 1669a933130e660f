package vectorstore

import "errors"

var (
	// ErrDuplicateID means an insert reused an id already present in the
	// collection. Ingestion treats this as a bug and retries with a new id.
	ErrDuplicateID = errors.New("duplicate entry id")

	// ErrDimensionMismatch means a vector's length disagrees with the
	// collection's declared dimensionality. Never coerced, always fatal.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnknownCollection means the collection was never created.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrBackendUnavailable means the backing store could not be reached or
	// timed out. Timeout causes keep context.DeadlineExceeded in the wrap
	// chain.
	ErrBackendUnavailable = errors.New("vector store backend unavailable")
)
