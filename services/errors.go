package services

import "errors"

// Error taxonomy of the pipeline. Callers match with errors.Is; the concrete
// cause is wrapped underneath.
var (
	// ErrConfiguration is returned for unsupported file types and invalid
	// chunking or retrieval parameters. Not retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbedding aborts the ingestion of the current document. Nothing of
	// that document has been written when it is returned.
	ErrEmbedding = errors.New("embedding failure")

	// ErrStoreWrite is returned on dimension mismatch or id collision.
	ErrStoreWrite = errors.New("store write failure")

	// ErrGeneration marks a completion provider failure. It never crosses the
	// streaming boundary; the stream ends with a diagnostic fragment instead.
	ErrGeneration = errors.New("generation failure")

	// ErrNotFound indicates a requested document or job does not exist.
	ErrNotFound = errors.New("not found")
)
