// Package sqlite provides a SQLite-backed entity store suitable for single
// node deployments. Records are kept as JSON blobs in one table keyed by
// (collection, partition, id).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.EntityStore = (*Store)(nil)

// Store persists entities to a single SQLite database file.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path and ensures the entity
// table exists. An empty path defaults to permitdesk.db in the working
// directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "permitdesk.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entities (
		collection TEXT NOT NULL,
		partition  TEXT NOT NULL,
		id         TEXT NOT NULL,
		record     BLOB NOT NULL,
		PRIMARY KEY (collection, partition, id)
	)`); err != nil {
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put creates or replaces a record.
func (s *Store) Put(ctx context.Context, p domain.CollectionPath, id string, record json.RawMessage) error {
	if id == "" {
		return domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO entities (collection, partition, id, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, partition, id) DO UPDATE SET record = excluded.record`,
		p.Collection, p.Partition, id, []byte(record))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", p, id, err)
	}
	return nil
}

// Get returns the record or a NotFoundError.
func (s *Store) Get(ctx context.Context, p domain.CollectionPath, id string) (json.RawMessage, error) {
	var rec []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM entities WHERE collection = ? AND partition = ? AND id = ?`,
		p.Collection, p.Partition, id).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{Entity: p.Collection, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", p, id, err)
	}
	return rec, nil
}

// Delete removes a record; absent records are a no-op.
func (s *Store) Delete(ctx context.Context, p domain.CollectionPath, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE collection = ? AND partition = ? AND id = ?`,
		p.Collection, p.Partition, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", p, id, err)
	}
	return nil
}

// List returns the partition's records ordered by id. The equality filter is
// applied post-scan in Go; a partition is small enough that pushing the
// predicate into SQL buys nothing over the primary-key range scan.
func (s *Store) List(ctx context.Context, p domain.CollectionPath, q domain.Query) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record FROM entities WHERE collection = ? AND partition = ? ORDER BY id`,
		p.Collection, p.Partition)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Record
	for rows.Next() {
		var r domain.Record
		var rec []byte
		if err := rows.Scan(&r.ID, &rec); err != nil {
			return nil, fmt.Errorf("scan %s: %w", p, err)
		}
		r.Data = rec
		if !q.IsZero() && !fieldEquals(r.Data, q.Field, q.Equals) {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	return out, nil
}

// ListPartitions enumerates partition keys of a collection, sorted ascending.
func (s *Store) ListPartitions(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT partition FROM entities WHERE collection = ? ORDER BY partition`, collection)
	if err != nil {
		return nil, fmt.Errorf("list partitions %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list partitions %s: %w", collection, err)
	}
	return keys, nil
}

// Compile-time assertion of the optional compare-and-swap capability.
var _ domain.ConditionalStore = (*Store)(nil)

// PutIfMatch replaces the record only while its field still equals want. The
// read-check-write runs inside one transaction.
func (s *Store) PutIfMatch(ctx context.Context, p domain.CollectionPath, id string, record json.RawMessage, field, want string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin conditional put: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var current []byte
	err = tx.QueryRowContext(ctx,
		`SELECT record FROM entities WHERE collection = ? AND partition = ? AND id = ?`,
		p.Collection, p.Partition, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError{Entity: p.Collection, ID: id}
	}
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", p, id, err)
	}
	if !fieldMatchesWant(current, field, want) {
		return domain.ErrPreconditionFailed
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET record = ? WHERE collection = ? AND partition = ? AND id = ?`,
		[]byte(record), p.Collection, p.Partition, id); err != nil {
		return fmt.Errorf("conditional put %s/%s: %w", p, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit conditional put: %w", err)
	}
	return nil
}

// Batch returns a write batch committed inside one SQL transaction.
func (s *Store) Batch(p domain.CollectionPath) domain.WriteBatch {
	return &batch{store: s, path: p}
}

type batchOp struct {
	id     string
	record json.RawMessage // nil means delete
}

type batch struct {
	store *Store
	path  domain.CollectionPath
	ops   []batchOp
}

func (b *batch) Put(id string, record json.RawMessage) {
	b.ops = append(b.ops, batchOp{id: id, record: record})
}

func (b *batch) Delete(id string) {
	b.ops = append(b.ops, batchOp{id: id})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Commit(ctx context.Context) (retErr error) {
	if len(b.ops) > domain.MaxBatchOps {
		return domain.ValidationError{Field: "batch", Reason: "exceeds max batch size"}
	}
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, op := range b.ops {
		if op.record == nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM entities WHERE collection = ? AND partition = ? AND id = ?`,
				b.path.Collection, b.path.Partition, op.id); err != nil {
				return fmt.Errorf("batch delete %s: %w", op.id, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO entities (collection, partition, id, record)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, partition, id) DO UPDATE SET record = excluded.record`,
			b.path.Collection, b.path.Partition, op.id, []byte(op.record)); err != nil {
			return fmt.Errorf("batch put %s: %w", op.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func fieldMatchesWant(rec json.RawMessage, field, want string) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(rec, &top); err != nil {
		return false
	}
	raw, ok := top[field]
	if !ok || string(raw) == "null" {
		return want == ""
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return got == want
}

func fieldEquals(rec json.RawMessage, field, want string) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(rec, &top); err != nil {
		return false
	}
	raw, ok := top[field]
	if !ok {
		return false
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return got == want
}
