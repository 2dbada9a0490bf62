// Package vfs implements the node operations (spec §4.4): the surface
// the FTP command handlers call to resolve, create, list and mutate
// virtual paths, backed by the write-through cache and metadata store.
package vfs

import (
	"context"
	"os"
	"time"

	"github.com/nebulaftp/nebulaftp/internal/store"
	"github.com/nebulaftp/nebulaftp/internal/upload"
	"github.com/nebulaftp/nebulaftp/internal/vfscache"
	"github.com/nebulaftp/nebulaftp/internal/vfserr"
	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
	"github.com/nebulaftp/nebulaftp/internal/vpath"
)

// Mode bits synthesized for Stat, matching the fixed values the source
// system reports rather than deriving them from any real filesystem.
const (
	modeFile = 0o100666
	modeDir  = 0o40777
)

// VFS is the node operation surface. It is safe for concurrent use; all
// mutation goes through the embedded cache's own locking.
type VFS struct {
	cache *vfscache.Cache
	st    store.Store
	queue *upload.Queue
}

// New builds a VFS over cache and st, enqueuing completed uploads onto
// queue. st must be the same Store cache wraps; list/delete operations
// that bypass the per-node cache key go straight to it, matching the
// source system's own direct collection access for bulk operations.
func New(cache *vfscache.Cache, st store.Store, queue *upload.Queue) *VFS {
	return &VFS{cache: cache, st: st, queue: queue}
}

// Stat is the subset of Node fields a LIST/MLSD/MLST response needs.
type Stat struct {
	Size  int64
	CTime int64
	MTime int64
	Mode  uint32
	NLink int
	IsDir bool
}

// GetNode resolves path to its node, or (nil, nil) if absent. "/" and
// "." resolve to a synthetic root directory node.
func (v *VFS) GetNode(ctx context.Context, path string) (*vfsmodel.Node, error) {
	if path == "/" || path == "." {
		return vfsmodel.RootNode(), nil
	}
	parent, name := vpath.Split(path)
	return v.cache.Get(ctx, parent, name)
}

// Mkdir creates a directory at path. If existOk and the directory
// already exists, it succeeds silently; otherwise a pre-existing entry
// of any type is ErrExists.
func (v *VFS) Mkdir(ctx context.Context, path string, existOk bool) error {
	parent, name := vpath.Split(path)
	existing, err := v.cache.Get(ctx, parent, name)
	if err != nil {
		return err
	}
	if existing != nil {
		if existOk && existing.IsDir() {
			return nil
		}
		return vfserr.ErrExists
	}
	n := vfsmodel.NewDir(parent, name)
	if err := v.cache.Insert(ctx, n); err != nil {
		if existOk {
			return nil
		}
		return vfserr.ErrExists
	}
	return nil
}

// Rmdir deletes the directory at path and cascade-deletes every
// descendant whose parent has path as a prefix.
func (v *VFS) Rmdir(ctx context.Context, path string) error {
	node, err := v.GetNode(ctx, path)
	if err != nil {
		return err
	}
	if node == nil {
		return vfserr.ErrNotFound
	}
	if !node.IsDir() {
		return vfserr.ErrNotADir
	}
	parent, name := vpath.Split(path)
	if err := v.st.DeleteOne(ctx, parent, name); err != nil {
		return err
	}
	if err := v.st.DeleteMany(ctx, path); err != nil {
		return err
	}
	v.cache.Drop(parent, name)
	v.cache.DropPrefix(path)
	return nil
}

// Unlink removes the file at path, best-effort deleting any staged
// local bytes first.
func (v *VFS) Unlink(ctx context.Context, path string) error {
	node, err := v.GetNode(ctx, path)
	if err != nil {
		return err
	}
	if node == nil {
		return vfserr.ErrNotFound
	}
	if !node.IsFile() {
		return vfserr.ErrNotAFile
	}
	parent, name := vpath.Split(path)
	v.cache.Drop(parent, name)
	if node.LocalPath != "" {
		_ = os.Remove(node.LocalPath)
	}
	return v.st.DeleteOne(ctx, parent, name)
}

// List returns every child node of path whose name does not carry the
// ".partial" suffix.
func (v *VFS) List(ctx context.Context, path string) ([]*vfsmodel.Node, error) {
	lister, err := v.st.List(ctx, path)
	if err != nil {
		return nil, err
	}
	defer lister.Close(ctx)
	var out []*vfsmodel.Node
	for {
		n, ok, err := lister.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, n)
	}
	return out, nil
}

// StatNode synthesizes mode bits and nlink for node.
func StatNode(node *vfsmodel.Node) Stat {
	s := Stat{Size: node.Size, CTime: node.CTime, MTime: node.MTime, NLink: 1, IsDir: node.IsDir()}
	if node.IsDir() {
		s.Mode = modeDir
	} else {
		s.Mode = modeFile
	}
	return s
}

// Rename moves src to dst at the metadata level: updates the cached and
// stored entry under src's _id to dst's (parent, name). If src's leaf
// ends in ".partial" and dst's does not, and local bytes are staged, an
// upload task is pushed for the destination identity. A missing source
// is a silent no-op. Only the renamed node's own parent/name change:
// descendants of a renamed directory keep their old parent value.
func (v *VFS) Rename(ctx context.Context, src, dst string) error {
	srcParent, srcName := vpath.Split(src)
	node, err := v.cache.Get(ctx, srcParent, srcName)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}

	dstParent, dstName := vpath.Split(dst)
	moved := *node
	moved.Parent = dstParent
	moved.Name = dstName
	moved.MTime = time.Now().Unix()

	if err := v.cache.UpdateByID(ctx, srcParent, srcName, node.ID, map[string]any{
		"parent": dstParent,
		"name":   dstName,
		"mtime":  moved.MTime,
	}, nil); err != nil {
		return err
	}
	v.cache.Move(srcParent, srcName, &moved)

	if vpath.IsPartial(srcName) && !vpath.IsPartial(dstName) && moved.LocalPath != "" {
		if fi, statErr := os.Stat(moved.LocalPath); statErr == nil && fi.Size() > 0 {
			v.queue.Push(upload.Task{
				LocalPath: moved.LocalPath,
				Filename:  dstName,
				Parent:    dstParent,
				Size:      fi.Size(),
			})
		}
	}
	return nil
}
