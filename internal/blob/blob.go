// Package blob is the client for the messaging-based blob backend
// (spec §6, an out-of-scope external collaborator): it exposes only the
// send/stream/ping surface this system consumes, never the backend's
// own channel/target management.
package blob

import (
	"context"
	"io"
)

// Chunk is the result of a successful push: identifiers the metadata
// store records in a ChunkRef.
type Chunk struct {
	BlobID    string
	BlobMsgID uint64
}

// Client is the narrow interface the upload worker pool and
// StagingHandle.IterByBlock depend on. A concrete implementation talks
// to one blob-messaging target; Pool (pool.go) fans out across several.
type Client interface {
	// SendDocument pushes exactly one chunk's bytes to target,
	// returning the backend-assigned identifiers.
	SendDocument(ctx context.Context, target, chunkName string, body io.ReadSeeker, size int64) (Chunk, error)
	// Stream opens a read cursor on blobID starting at localOffset.
	Stream(ctx context.Context, blobID string, localOffset int64) (io.ReadCloser, error)
	// Copy replicates a previously sent chunk to a backup target.
	Copy(ctx context.Context, blobID, backupTarget string) error
	// Ping verifies the backend and the configured target(s) are
	// reachable, used at startup for channel/target resolution.
	Ping(ctx context.Context) error
}

// Reader adapts a Client to the vfs.BlobReader interface
// (internal/vfs/staging.go: StreamChunk(ctx, blobID, localOffset)), so
// a Client can be passed to VFS.Open without the vfs package importing
// this one.
type Reader struct{ Client Client }

// StreamChunk satisfies vfs.BlobReader.
func (r Reader) StreamChunk(ctx context.Context, blobID string, localOffset int64) (io.ReadCloser, error) {
	return r.Client.Stream(ctx, blobID, localOffset)
}
