// Package firestore implements store.DocumentStore on Cloud Firestore, the
// database the mobile app reads directly.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gfs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tellmeastory/zine-server/internal/store"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Store adapts a Firestore client.
type Store struct {
	client *gfs.Client
	logger *slog.Logger
}

var _ store.DocumentStore = (*Store)(nil)

// New wraps client. The store owns the client and closes it on Close.
func New(client *gfs.Client, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Get returns a document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return toDocument(snap), nil
}

// Set writes one document. Merge writes use MergeAll.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	ref := s.client.Collection(collection).Doc(id)
	if _, err := ref.Set(ctx, translate(data, merge), setOptions(merge)...); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Commit applies ops as one write batch.
func (s *Store) Commit(ctx context.Context, ops []store.Op) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > store.MaxBatchOps {
		return fmt.Errorf("batch of %d ops exceeds the limit of %d", len(ops), store.MaxBatchOps)
	}

	batch := s.client.Batch()
	for _, op := range ops {
		ref := s.client.Collection(op.Collection).Doc(op.ID)
		switch op.Kind {
		case store.OpSet:
			batch.Set(ref, translate(op.Data, op.Merge), setOptions(op.Merge)...)
		case store.OpDelete:
			batch.Delete(ref)
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}

	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Query reads a collection in order. Firestore leaves out documents that lack the order field.
func (s *Store) Query(ctx context.Context, collection string, order store.OrderBy) ([]store.Document, error) {
	snaps, err := s.query(collection, order).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return toDocuments(snaps), nil
}

// ListenCollection streams query snapshots, reopening the stream after failures.
func (s *Store) ListenCollection(ctx context.Context, collection string, order store.OrderBy) <-chan store.Snapshot {
	out := make(chan store.Snapshot, 1)
	q := s.query(collection, order)

	go func() {
		defer close(out)
		var seq uint64
		send := func(snap store.Snapshot) {
			seq++
			snap.Seq = seq
			store.SendLatest(out, snap)
		}

		backoff := minBackoff
		for ctx.Err() == nil {
			it := q.Snapshots(ctx)
			for {
				qs, err := it.Next()
				if err == nil {
					var docs []*gfs.DocumentSnapshot
					docs, err = qs.Documents.GetAll()
					if err == nil {
						backoff = minBackoff
						send(store.Snapshot{Documents: toDocuments(docs), Exists: true})
						continue
					}
				}
				if ctx.Err() != nil {
					break
				}
				if !isDone(err) {
					s.logger.Warn("collection listener failed, reopening", "collection", collection, "error", err, "backoff", backoff)
					send(store.Snapshot{Err: err})
				}
				break
			}
			it.Stop()
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}()

	return out
}

// ListenDocument streams snapshots of one document, reopening the stream after failures.
func (s *Store) ListenDocument(ctx context.Context, collection, id string) <-chan store.Snapshot {
	out := make(chan store.Snapshot, 1)
	ref := s.client.Collection(collection).Doc(id)

	go func() {
		defer close(out)
		var seq uint64
		send := func(snap store.Snapshot) {
			seq++
			snap.Seq = seq
			store.SendLatest(out, snap)
		}

		backoff := minBackoff
		for ctx.Err() == nil {
			it := ref.Snapshots(ctx)
			for {
				ds, err := it.Next()
				if err == nil {
					backoff = minBackoff
					if !ds.Exists() {
						send(store.Snapshot{})
						continue
					}
					send(store.Snapshot{Documents: []store.Document{toDocument(ds)}, Exists: true})
					continue
				}
				if ctx.Err() != nil {
					break
				}
				if !isDone(err) {
					s.logger.Warn("document listener failed, reopening", "collection", collection, "id", id, "error", err, "backoff", backoff)
					send(store.Snapshot{Err: err})
				}
				break
			}
			it.Stop()
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}()

	return out
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) query(collection string, order store.OrderBy) gfs.Query {
	dir := gfs.Asc
	if order.Descending {
		dir = gfs.Desc
	}
	field := order.Field
	if field == "" {
		field = gfs.DocumentID
	}
	return s.client.Collection(collection).OrderBy(field, dir)
}

func setOptions(merge bool) []gfs.SetOption {
	if merge {
		return []gfs.SetOption{gfs.MergeAll}
	}
	return nil
}

// translate swaps store sentinels for Firestore transforms. A replacing write
// cannot carry a delete transform, so DeleteField is dropped there.
func translate(data map[string]any, merge bool) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch v := v.(type) {
		case store.IncrementOp:
			out[k] = gfs.Increment(v.N)
		case store.ServerTimestampOp:
			out[k] = gfs.ServerTimestamp
		case store.DeleteFieldOp:
			if merge {
				out[k] = gfs.Delete
			}
		case *time.Time:
			if v == nil {
				out[k] = nil
			} else {
				out[k] = *v
			}
		case map[string]any:
			out[k] = translate(v, merge)
		default:
			out[k] = v
		}
	}
	return out
}

func toDocument(snap *gfs.DocumentSnapshot) store.Document {
	return store.Document{ID: snap.Ref.ID, Data: snap.Data(), UpdateTime: snap.UpdateTime}
}

func toDocuments(snaps []*gfs.DocumentSnapshot) []store.Document {
	docs := make([]store.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, toDocument(snap))
	}
	return docs
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// isDone reports whether err marks the natural end of an iterator.
func isDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
