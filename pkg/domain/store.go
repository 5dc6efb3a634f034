package domain

import (
	"context"
	"encoding/json"
	"errors"
	"path"
)

// ErrPreconditionFailed is returned by conditional writes whose expectation
// no longer holds. Callers translate it into their own failure taxonomy.
var ErrPreconditionFailed = errors.New("store precondition failed")

// MaxBatchOps is the contractual write-batch ceiling of the underlying
// store. Bulk operations must chunk at this boundary and commit each chunk
// independently; a failure mid-sequence leaves prior chunks committed.
const MaxBatchOps = 500

// CollectionPath addresses one partition of one collection. The store offers
// efficient queries only within a single partition; no cross-partition
// primitive exists, which is why the core package carries a federation layer.
type CollectionPath struct {
	Collection string
	Partition  string
}

// String renders the logical storage path of the partition.
func (p CollectionPath) String() string {
	return path.Join(p.Collection, p.Partition)
}

// ProjectsOf addresses the project partition owned by a user.
func ProjectsOf(ownerID string) CollectionPath {
	return CollectionPath{Collection: "projects", Partition: ownerID}
}

// ProjectDocuments addresses the document sub-collection of a project.
func ProjectDocuments(ownerID, projectID string) CollectionPath {
	return CollectionPath{Collection: "project_documents", Partition: path.Join(ownerID, projectID)}
}

// Permits addresses the global permit collection.
func Permits() CollectionPath {
	return CollectionPath{Collection: "permits", Partition: "global"}
}

// PermitDocuments addresses the document sub-collection of a permit.
func PermitDocuments(permitID string) CollectionPath {
	return CollectionPath{Collection: "permit_documents", Partition: permitID}
}

// PermitComments addresses the comment sub-collection of a permit.
func PermitComments(permitID string) CollectionPath {
	return CollectionPath{Collection: "permit_comments", Partition: permitID}
}

// NotificationsOf addresses a user's notification partition.
func NotificationsOf(userID string) CollectionPath {
	return CollectionPath{Collection: "notifications", Partition: userID}
}

// Users addresses the global user collection.
func Users() CollectionPath {
	return CollectionPath{Collection: "users", Partition: "global"}
}

// Query is the only filter the store pushes down: equality on a single
// top-level JSON string field. Set membership and compound predicates are
// deliberately absent; callers needing them fan out and filter post-hoc.
type Query struct {
	Field  string
	Equals string
}

// IsZero reports whether the query filters nothing.
func (q Query) IsZero() bool { return q.Field == "" }

// Record is a stored document plus its identifier.
type Record struct {
	ID   string
	Data json.RawMessage
}

// WriteBatch stages puts and deletes against a single partition. Commit is
// atomic for the staged operations only; batches never span partitions and
// never exceed MaxBatchOps operations.
type WriteBatch interface {
	Put(id string, record json.RawMessage)
	Delete(id string)
	// Len reports the number of staged operations.
	Len() int
	// Commit applies the staged operations. Staging more than MaxBatchOps
	// operations makes Commit fail with a ValidationError without applying
	// anything.
	Commit(ctx context.Context) error
}

// EntityStore is the partitioned document storage abstraction. Writes to an
// entity and its sub-collections are not atomic across collections.
type EntityStore interface {
	// Put creates or replaces a record.
	Put(ctx context.Context, p CollectionPath, id string, record json.RawMessage) error
	// Get returns the record or a NotFoundError.
	Get(ctx context.Context, p CollectionPath, id string) (json.RawMessage, error)
	// Delete removes a record; deleting an absent record is a no-op.
	Delete(ctx context.Context, p CollectionPath, id string) error
	// List returns the partition's records, optionally filtered by a single
	// pushed-down equality. Ordering is unspecified; callers sort.
	List(ctx context.Context, p CollectionPath, q Query) ([]Record, error)
	// ListPartitions enumerates every partition key of a collection.
	ListPartitions(ctx context.Context, collection string) ([]string, error)
	// Batch returns an empty write batch scoped to one partition.
	Batch(p CollectionPath) WriteBatch
}

// ConditionalStore is the optional compare-and-swap capability used to guard
// races such as two reviewers claiming the same entity. The write applies
// only while the record's top-level string field still equals want; an empty
// want matches an absent or null field. A stale expectation yields
// ErrPreconditionFailed.
type ConditionalStore interface {
	PutIfMatch(ctx context.Context, p CollectionPath, id string, record json.RawMessage, field, want string) error
}
