package storage

import "errors"

// Common storage errors
var (
	// ErrStateNotFound indicates that no cached state exists for the document
	ErrStateNotFound = errors.New("document state not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
