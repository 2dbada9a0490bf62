// Package store is the metadata store adapter (spec §4.2): typed CRUD
// over a single logical "files" collection, with the index assertions
// and "already exists" signalling spec'd there. The production
// implementation is backed by go.mongodb.org/mongo-driver, grounded on
// original_source/ftp/pathio.py's MongoDBPathIO, which drives the same
// collection shape from Python's motor driver.
package store

import (
	"context"
	"errors"

	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
)

// ErrDuplicateKey is returned by Insert when the unique (parent, name)
// index rejects the document — the sole signal of "already exists"
// per spec §4.2.
var ErrDuplicateKey = errors.New("store: duplicate (parent, name)")

// ErrNoDocuments is returned by FindOne when no matching document exists.
var ErrNoDocuments = errors.New("store: no matching document")

// Lister iterates a lazy sequence of nodes.
type Lister interface {
	Next(ctx context.Context) (*vfsmodel.Node, bool, error)
	Close(ctx context.Context) error
}

// Store is the interface the VFS cache and restart recovery consume.
// It intentionally exposes the narrow operation set spec §4.2 names,
// not a generic document-store client.
type Store interface {
	EnsureIndexes(ctx context.Context) error

	FindOne(ctx context.Context, parent, name string) (*vfsmodel.Node, error)
	Insert(ctx context.Context, n *vfsmodel.Node) error
	// Replace upserts the document identified by (parent, name).
	Replace(ctx context.Context, parent, name string, n *vfsmodel.Node) error
	UpdateByID(ctx context.Context, id any, set map[string]any, unset []string) error
	DeleteOne(ctx context.Context, parent, name string) error
	// DeleteMany removes every document whose parent has parentPrefix
	// as a prefix (directory rmdir cascade).
	DeleteMany(ctx context.Context, parentPrefix string) error

	// List returns children of parent whose name does not match the
	// ".partial" suffix filter (invariant I2).
	List(ctx context.Context, parent string) (Lister, error)

	// FindPending returns every node with status=staging, or with a
	// non-empty local_path and status != completed (spec §4.11).
	FindPending(ctx context.Context) (Lister, error)

	Close(ctx context.Context) error
}
