// Package postgres provides the Postgres-backed entity store used by shared
// deployments. Records are stored as JSONB so the single-field equality
// pushdown runs in SQL rather than in Go.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.EntityStore = (*Store)(nil)

const defaultDSN = "postgres://localhost/permitdesk?sslmode=disable"

// Store persists entities to Postgres.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN) and ensures the entity table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS entities (
		collection TEXT  NOT NULL,
		partition  TEXT  NOT NULL,
		id         TEXT  NOT NULL,
		record     JSONB NOT NULL,
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
		VALUES ($1, $2, $3, $4)
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
		`SELECT record FROM entities WHERE collection = $1 AND partition = $2 AND id = $3`,
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
		`DELETE FROM entities WHERE collection = $1 AND partition = $2 AND id = $3`,
		p.Collection, p.Partition, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", p, id, err)
	}
	return nil
}

// List returns the partition's records ordered by id, with the equality
// filter pushed into the JSONB operator when present.
func (s *Store) List(ctx context.Context, p domain.CollectionPath, q domain.Query) ([]domain.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.IsZero() {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, record FROM entities WHERE collection = $1 AND partition = $2 ORDER BY id`,
			p.Collection, p.Partition)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, record FROM entities
			 WHERE collection = $1 AND partition = $2 AND record->>$3 = $4 ORDER BY id`,
			p.Collection, p.Partition, q.Field, q.Equals)
	}
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
		`SELECT DISTINCT partition FROM entities WHERE collection = $1 ORDER BY partition`, collection)
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

// PutIfMatch replaces the record only while its field still equals want. An
// empty want matches an absent or null field. The predicate runs in SQL so
// concurrent writers serialize on the row.
func (s *Store) PutIfMatch(ctx context.Context, p domain.CollectionPath, id string, record json.RawMessage, field, want string) error {
	var res sql.Result
	var err error
	if want == "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE entities SET record = $4
			 WHERE collection = $1 AND partition = $2 AND id = $3 AND record->>$5 IS NULL`,
			p.Collection, p.Partition, id, []byte(record), field)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE entities SET record = $4
			 WHERE collection = $1 AND partition = $2 AND id = $3 AND record->>$5 = $6`,
			p.Collection, p.Partition, id, []byte(record), field, want)
	}
	if err != nil {
		return fmt.Errorf("conditional put %s/%s: %w", p, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conditional put %s/%s: %w", p, id, err)
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, p, id); getErr != nil {
			return getErr
		}
		return domain.ErrPreconditionFailed
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
				`DELETE FROM entities WHERE collection = $1 AND partition = $2 AND id = $3`,
				b.path.Collection, b.path.Partition, op.id); err != nil {
				return fmt.Errorf("batch delete %s: %w", op.id, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO entities (collection, partition, id, record)
			VALUES ($1, $2, $3, $4)
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
