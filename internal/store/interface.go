// Package store defines the document store the per-user state and fan mail live in.
//
// Two backends implement DocumentStore: store/sqlite for single-node deployments and
// store/firestore for the managed backend the mobile app shares. Both address documents
// by (collection path, document ID), accept the field sentinels below inside Set data,
// and push full snapshots to listeners after every committed change.
package store

import (
	"context"
	"time"
)

// Document is one stored document.
type Document struct {
	ID         string
	Data       map[string]any
	UpdateTime time.Time
}

// OrderBy orders a query by a top-level field. An empty Field orders by document ID.
type OrderBy struct {
	Field      string
	Descending bool
}

// Snapshot is one listener delivery. For collection listeners Documents holds the
// whole (ordered) collection. For document listeners it holds the document when
// Exists is true. Seq strictly increases per listener, so a consumer can drop any
// snapshot older than one it already applied.
//
// A snapshot with Err set reports a backend failure. The listener keeps running
// and the next successful snapshot supersedes the error.
type Snapshot struct {
	Seq       uint64
	Documents []Document
	Exists    bool
	Err       error
}

// DocumentStore is the document database used by every service.
type DocumentStore interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set writes data. With merge, only the given fields change; otherwise the document is replaced.
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Commit applies ops atomically: all of them or none.
	Commit(ctx context.Context, ops []Op) error
	// Query returns every document of a collection in order.
	Query(ctx context.Context, collection string, order OrderBy) ([]Document, error)
	// ListenCollection streams snapshots of a collection until ctx is done, then closes the channel.
	// The current state is delivered first.
	ListenCollection(ctx context.Context, collection string, order OrderBy) <-chan Snapshot
	// ListenDocument streams snapshots of one document until ctx is done.
	ListenDocument(ctx context.Context, collection, id string) <-chan Snapshot
	Close() error
}

// OpKind is the kind of a batched write.
type OpKind int

// Batched write kinds.
const (
	OpSet OpKind = iota
	OpDelete
)

// Op is one write inside a Commit.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       map[string]any
	Merge      bool
}

// Field sentinels. Put them as values in Set data; backends resolve them at commit.
type (
	// IncrementOp adds N to a numeric field. A missing field counts as 0.
	IncrementOp struct{ N int64 }
	// DeleteFieldOp removes the field. Only meaningful with merge.
	DeleteFieldOp struct{}
	// ServerTimestampOp stores the commit time.
	ServerTimestampOp struct{}
)

// Increment returns a sentinel adding n to a field.
func Increment(n int64) IncrementOp { return IncrementOp{N: n} }

var (
	// DeleteField removes a field in a merge write.
	DeleteField = DeleteFieldOp{}
	// ServerTimestamp stores the commit time in a field.
	ServerTimestamp = ServerTimestampOp{}
)

// SendLatest hands snap to a buffered channel, replacing any undelivered older
// snapshot so a slow consumer only ever sees the newest state. The caller must be
// the only sender on ch.
func SendLatest(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
