package store

import "errors"

// ErrNotFound is returned by Get when the document does not exist. Backends
// translate their own not-found signal to it.
var ErrNotFound = errors.New("document not found")

// ErrClosed is returned once the store has been closed.
var ErrClosed = errors.New("document store closed")
