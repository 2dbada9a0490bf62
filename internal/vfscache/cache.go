// Package vfscache is the process-wide write-through cache sitting in
// front of the metadata store (spec §4.3). It never evicts by size;
// entries live until an explicit mutation drops or replaces them.
package vfscache

import (
	"context"
	"strings"
	"sync"

	"github.com/nebulaftp/nebulaftp/internal/store"
	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
)

type key struct {
	parent string
	name   string
}

// Cache is a (parent, name) -> node map backed by a Store on miss. The
// mutex guards only the in-memory map; it is never held across a Store
// call, matching the "never across I/O" rule the teacher's own
// vfs.Cache applies to its readers-writer lock.
type Cache struct {
	mu    sync.Mutex
	nodes map[key]*vfsmodel.Node
	st    store.Store
}

// New wraps st with an empty cache.
func New(st store.Store) *Cache {
	return &Cache{nodes: make(map[key]*vfsmodel.Node), st: st}
}

func (c *Cache) get(k key) (*vfsmodel.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[k]
	return n, ok
}

func (c *Cache) put(k key, n *vfsmodel.Node) {
	c.mu.Lock()
	c.nodes[k] = n
	c.mu.Unlock()
}

func (c *Cache) drop(k key) {
	c.mu.Lock()
	delete(c.nodes, k)
	c.mu.Unlock()
}

// Get resolves (parent, name): cache, then store, then a fallback
// lookup stripping a leading "/" from parent for a legacy encoding.
// Returns (nil, nil) if nothing matches.
func (c *Cache) Get(ctx context.Context, parent, name string) (*vfsmodel.Node, error) {
	k := key{parent, name}
	if n, ok := c.get(k); ok {
		return n, nil
	}

	n, err := c.st.FindOne(ctx, parent, name)
	if err == nil {
		c.put(k, n)
		return n, nil
	}
	if err != store.ErrNoDocuments {
		return nil, err
	}

	if legacyParent := strings.TrimPrefix(parent, "/"); legacyParent != parent {
		n, err := c.st.FindOne(ctx, legacyParent, name)
		if err == nil {
			c.put(k, n)
			return n, nil
		}
		if err != store.ErrNoDocuments {
			return nil, err
		}
	}

	return nil, nil
}

// Insert writes a brand-new n through to the store and then into the
// cache; a store error (such as a duplicate (parent, name)) leaves the
// cache untouched. Replace is the upsert counterpart.
func (c *Cache) Insert(ctx context.Context, n *vfsmodel.Node) error {
	if err := c.st.Insert(ctx, n); err != nil {
		return err
	}
	c.put(key{n.Parent, n.Name}, n)
	return nil
}

// Replace upserts n at (parent, name) in the store, then updates the
// cache. If the node is moving to a new (parent, name) the caller must
// also call Drop on the old key.
func (c *Cache) Replace(ctx context.Context, parent, name string, n *vfsmodel.Node) error {
	if err := c.st.Replace(ctx, parent, name, n); err != nil {
		return err
	}
	c.put(key{n.Parent, n.Name}, n)
	return nil
}

// UpdateByID applies a partial update to the store and, if the node is
// present in cache, mirrors the same fields in memory so subsequent
// reads see it without a round trip.
func (c *Cache) UpdateByID(ctx context.Context, parent, name string, id any, set map[string]any, unset []string) error {
	if err := c.st.UpdateByID(ctx, id, set, unset); err != nil {
		return err
	}
	c.mu.Lock()
	if n, ok := c.nodes[key{parent, name}]; ok {
		applyInMemory(n, set, unset)
	}
	c.mu.Unlock()
	return nil
}

func applyInMemory(n *vfsmodel.Node, set map[string]any, unset []string) {
	for k, v := range set {
		switch k {
		case "size":
			n.Size = v.(int64)
		case "uploaded_at":
			n.UploadedAt = v.(int64)
		case "parts":
			n.Parts = v.([]vfsmodel.ChunkRef)
		case "obfuscated_id":
			n.ObfuscatedID = v.(string)
		case "status":
			n.Status = v.(vfsmodel.FileStatus)
		case "mtime":
			n.MTime = v.(int64)
		case "local_path":
			n.LocalPath = v.(string)
		case "name":
			n.Name = v.(string)
		case "parent":
			n.Parent = v.(string)
		}
	}
	for _, f := range unset {
		if f == "local_path" {
			n.LocalPath = ""
		}
	}
}

// Move atomically relocates the cache entry for a rename: drops the
// old key and installs n (whose Parent/Name already reflect the
// destination) under the new one. The store-side update is the
// caller's responsibility (by _id), since rename only touches
// parent/name there, not a full replace.
func (c *Cache) Move(oldParent, oldName string, n *vfsmodel.Node) {
	c.mu.Lock()
	delete(c.nodes, key{oldParent, oldName})
	c.nodes[key{n.Parent, n.Name}] = n
	c.mu.Unlock()
}

// Drop removes (parent, name) from the cache only; callers delete from
// the store separately, matching rmdir/unlink's own store.DeleteOne call.
func (c *Cache) Drop(parent, name string) {
	c.drop(key{parent, name})
}

// DropPrefix removes every cached entry whose parent has prefix as a
// path prefix, used after a directory cascade-delete. Descendants dropped
// here re-resolve from the store on next access, where the cascade has
// already removed them, so they read as absent.
func (c *Cache) DropPrefix(prefix string) {
	c.mu.Lock()
	for k := range c.nodes {
		if k.parent == prefix || strings.HasPrefix(k.parent, prefix+"/") {
			delete(c.nodes, k)
		}
	}
	c.mu.Unlock()
}
