package vfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nebulaftp/nebulaftp/internal/upload"
	"github.com/nebulaftp/nebulaftp/internal/vfserr"
	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
	"github.com/nebulaftp/nebulaftp/internal/vpath"
)

// writeBlockSize is the chunk size WriteStream reads from the data
// connection and writes to the staging file, independent of the much
// larger chunk size the upload workers use against the blob backend.
const writeBlockSize = 1 << 20 // 1 MiB

// BlobReader is the narrow read-path the blob backend exposes to
// StagingHandle.IterByBlock for completed, chunked files. It is defined
// here rather than imported from the blob package so this package does
// not need to know about transport details.
type BlobReader interface {
	StreamChunk(ctx context.Context, blobID string, localOffset int64) (io.ReadCloser, error)
}

// StagingHandle is returned by Open. It owns the staging file identity
// and the requested transfer mode.
type StagingHandle struct {
	vfs    *VFS
	mode   string // "rb" or "wb"
	node   *vfsmodel.Node
	path   string // virtual path
	parent string
	name   string

	stagingPath string
	offset      int64

	blob BlobReader
}

// Open resolves path for mode "rb" (read) or "wb" (write). Write mode
// always pre-creates or resets the metadata doc with size=0, parts=[],
// caches it, and returns a handle regardless of whether bytes exist
// yet. Read mode requires the node to already exist.
func (v *VFS) Open(ctx context.Context, path, mode string, blob BlobReader) (*StagingHandle, error) {
	parent, name := vpath.Split(path)

	if mode == "rb" {
		node, err := v.cache.Get(ctx, parent, name)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, vfserr.ErrNotFound
		}
		return &StagingHandle{vfs: v, mode: mode, node: node, path: path, parent: parent, name: name, blob: blob}, nil
	}

	node := vfsmodel.NewEmptyFile(parent, name)
	existing, err := v.cache.Get(ctx, parent, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		node.ID = existing.ID
	}
	if err := v.cache.Replace(ctx, parent, name, node); err != nil {
		return nil, err
	}

	stagingName := fmt.Sprintf("%s_%s", uuid.New().String(), name)
	return &StagingHandle{
		vfs: v, mode: mode, node: node, path: path, parent: parent, name: name,
		stagingPath: stagingName,
	}, nil
}

// Seek sets the start offset used by WriteStream (REST support).
func (h *StagingHandle) Seek(offset int64) {
	h.offset = offset
}

// WriteStream streams src in writeBlockSize blocks to the staging path
// under stagingDir honoring the seek offset, then records the final
// size through the cache. A filename not ending in ".partial" with a
// non-zero size is enqueued as an upload task; ".partial" names are
// never enqueued here.
func (h *StagingHandle) WriteStream(ctx context.Context, stagingDir string, src io.Reader) (int64, error) {
	fullPath := filepath.Join(stagingDir, h.stagingPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if h.offset == 0 {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(fullPath, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if h.offset > 0 {
		if _, err := f.Seek(h.offset, io.SeekStart); err != nil {
			return 0, err
		}
	}

	buf := make([]byte, writeBlockSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	finalSize := h.offset + written
	fi, statErr := os.Stat(fullPath)
	if statErr == nil {
		finalSize = fi.Size()
	}

	h.node.LocalPath = fullPath
	h.node.Size = finalSize
	h.node.Parts = []vfsmodel.ChunkRef{}
	h.node.Status = vfsmodel.StatusStaging
	h.node.MTime = time.Now().Unix()

	if err := h.vfs.cache.Replace(ctx, h.parent, h.name, h.node); err != nil {
		return finalSize, err
	}

	if !vpath.IsPartial(h.name) && finalSize > 0 {
		h.vfs.queue.Push(upload.Task{
			LocalPath: fullPath,
			Filename:  h.name,
			Parent:    h.parent,
			Size:      finalSize,
		})
	}

	return finalSize, nil
}

// IterByBlock streams the handle's bytes starting at offset in blocks
// of n bytes. If the node still has staged local bytes, it reads
// straight from disk; otherwise it walks the completed chunk list in
// part_id order, asking the blob backend to stream the portion of each
// chunk that intersects [offset, ...).
func (h *StagingHandle) IterByBlock(ctx context.Context, offset int64, n int, yield func([]byte) error) error {
	if h.node.LocalPath != "" {
		if _, err := os.Stat(h.node.LocalPath); err == nil {
			return h.iterFromDisk(offset, n, yield)
		}
	}
	return h.iterFromBlob(ctx, offset, n, yield)
}

func (h *StagingHandle) iterFromDisk(offset int64, n int, yield func([]byte) error) error {
	f, err := os.Open(h.node.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
	}
	buf := make([]byte, n)
	for {
		k, rerr := f.Read(buf)
		if k > 0 {
			if yerr := yield(buf[:k]); yerr != nil {
				return yerr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func (h *StagingHandle) iterFromBlob(ctx context.Context, offset int64, n int, yield func([]byte) error) error {
	if h.blob == nil {
		return fmt.Errorf("vfs: no blob backend configured for chunked read")
	}
	parts := make([]vfsmodel.ChunkRef, len(h.node.Parts))
	copy(parts, h.node.Parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartID < parts[j].PartID })

	var chunkStart int64
	for _, p := range parts {
		chunkEnd := chunkStart + int64(p.Size)
		if chunkEnd <= offset {
			chunkStart = chunkEnd
			continue
		}
		localOffset := offset - chunkStart
		if localOffset < 0 {
			localOffset = 0
		}
		rc, err := h.blob.StreamChunk(ctx, p.BlobID, localOffset)
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		for {
			k, rerr := rc.Read(buf)
			if k > 0 {
				if yerr := yield(buf[:k]); yerr != nil {
					rc.Close()
					return yerr
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				rc.Close()
				return rerr
			}
		}
		rc.Close()
		chunkStart = chunkEnd
	}
	return nil
}
