package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/tellmeastory/zine-server/internal/store"
)

// fieldPattern limits ORDER BY fields to plain top-level keys.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type docKey struct {
	collection string
	id         string
}

// Get returns a document or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if s.closed() {
		return store.Document{}, store.ErrClosed
	}

	var raw, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return scanDocument(id, raw, updated)
}

// Set writes a single document.
func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return s.Commit(ctx, []store.Op{{Kind: store.OpSet, Collection: collection, ID: id, Data: data, Merge: merge}})
}

// Delete removes a single document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.Commit(ctx, []store.Op{{Kind: store.OpDelete, Collection: collection, ID: id}})
}

// Commit applies ops in one transaction and then wakes the affected listeners.
func (s *Store) Commit(ctx context.Context, ops []store.Op) error {
	if s.closed() {
		return store.ErrClosed
	}
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := s.now()
	touched := make(map[docKey]struct{}, len(ops))

	for _, op := range ops {
		switch op.Kind {
		case store.OpDelete:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = ? AND id = ?`, op.Collection, op.ID,
			); err != nil {
				return fmt.Errorf("delete %s/%s: %w", op.Collection, op.ID, err)
			}
		case store.OpSet:
			if err := s.applySet(ctx, tx, op, now); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
		touched[docKey{op.Collection, op.ID}] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.notify(touched)
	return nil
}

func (s *Store) applySet(ctx context.Context, tx *sql.Tx, op store.Op, now time.Time) error {
	var existing map[string]any
	if op.Merge {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND id = ?`, op.Collection, op.ID,
		).Scan(&raw)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read %s/%s: %w", op.Collection, op.ID, err)
		default:
			if existing, err = decodeData(raw); err != nil {
				return fmt.Errorf("read %s/%s: %w", op.Collection, op.ID, err)
			}
		}
	}

	merged := applyFields(existing, op.Data, now)
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", op.Collection, op.ID, err)
	}

	ts := formatTime(now)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		op.Collection, op.ID, string(raw), ts, ts,
	); err != nil {
		return fmt.Errorf("write %s/%s: %w", op.Collection, op.ID, err)
	}
	return nil
}

// Query returns a collection's documents ordered by a top-level field, then by ID.
// Documents missing the field sort first ascending and last descending.
func (s *Store) Query(ctx context.Context, collection string, order store.OrderBy) ([]store.Document, error) {
	if s.closed() {
		return nil, store.ErrClosed
	}

	dir := "ASC"
	if order.Descending {
		dir = "DESC"
	}

	var (
		rows *sql.Rows
		err  error
	)
	if order.Field == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, data, updated_at FROM documents WHERE collection = ? ORDER BY id `+dir, collection)
	} else {
		if !fieldPattern.MatchString(order.Field) {
			return nil, fmt.Errorf("invalid order field %q", order.Field)
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, data, updated_at FROM documents WHERE collection = ?
			 ORDER BY json_extract(data, ?) `+dir+`, id `+dir,
			collection, "$."+order.Field)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var id, raw, updated string
		if err := rows.Scan(&id, &raw, &updated); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := scanDocument(id, raw, updated)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

func scanDocument(id, raw, updated string) (store.Document, error) {
	data, err := decodeData(raw)
	if err != nil {
		return store.Document{}, fmt.Errorf("decode %s: %w", id, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return store.Document{}, fmt.Errorf("parse updated_at of %s: %w", id, err)
	}
	return store.Document{ID: id, Data: data, UpdateTime: updatedAt}, nil
}

// decodeData keeps numbers as json.Number so integers survive a round trip.
func decodeData(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}
