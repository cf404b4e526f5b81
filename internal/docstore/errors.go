package docstore

import "errors"

// Common document store errors
var (
	// ErrNotFound indicates that the document or snapshot is unknown
	ErrNotFound = errors.New("document not found")

	// ErrConcurrentInitialization indicates a re-entrant open of a document
	// that is still being created
	ErrConcurrentInitialization = errors.New("document is already initializing")

	// ErrSelfMerge indicates a merge of a document into itself
	ErrSelfMerge = errors.New("cannot merge document into itself")

	// ErrNotReady indicates an operation on a document that is not in the
	// Ready state
	ErrNotReady = errors.New("document is not ready")
)
