package store

import (
	"context"
	"fmt"
)

// MaxBatchOps is the largest batch a backend accepts in one commit.
const MaxBatchOps = 500

// Batch collects writes for a single atomic Commit.
type Batch struct {
	ops []Op
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Set queues a write.
func (b *Batch) Set(collection, id string, data map[string]any, merge bool) *Batch {
	b.ops = append(b.ops, Op{Kind: OpSet, Collection: collection, ID: id, Data: data, Merge: merge})
	return b
}

// Delete queues a delete.
func (b *Batch) Delete(collection, id string) *Batch {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: collection, ID: id})
	return b
}

// Len returns the number of queued ops.
func (b *Batch) Len() int { return len(b.ops) }

// Ops returns the queued ops.
func (b *Batch) Ops() []Op { return b.ops }

// Commit applies the batch atomically.
func (b *Batch) Commit(ctx context.Context, ds DocumentStore) error {
	if len(b.ops) == 0 {
		return nil
	}
	return ds.Commit(ctx, b.ops)
}

// CommitChunked commits ops in consecutive batches of at most MaxBatchOps.
// Each chunk is atomic; the whole is not. Used for bulk cleanup only.
func CommitChunked(ctx context.Context, ds DocumentStore, ops []Op) error {
	for start := 0; start < len(ops); start += MaxBatchOps {
		end := min(start+MaxBatchOps, len(ops))
		if err := ds.Commit(ctx, ops[start:end]); err != nil {
			return fmt.Errorf("commit ops %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeleteCollection deletes every document of a collection in chunked batches
// and returns how many were deleted.
func DeleteCollection(ctx context.Context, ds DocumentStore, collection string) (int, error) {
	docs, err := ds.Query(ctx, collection, OrderBy{})
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", collection, err)
	}
	ops := make([]Op, 0, len(docs))
	for _, d := range docs {
		ops = append(ops, Op{Kind: OpDelete, Collection: collection, ID: d.ID})
	}
	if err := CommitChunked(ctx, ds, ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}
