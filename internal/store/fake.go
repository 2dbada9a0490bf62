package store

import (
	"context"
	"strings"
	"sync"

	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
)

// FakeStore is an in-memory Store used by tests that would otherwise
// need a live MongoDB instance, following the mock-backend pattern
// backend/seafile uses for its own HTTP-calling code.
type FakeStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[string]*vfsmodel.Node // key: parent + "\x00" + name
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{docs: make(map[string]*vfsmodel.Node)}
}

func fakeKey(parent, name string) string { return parent + "\x00" + name }

func (s *FakeStore) EnsureIndexes(ctx context.Context) error { return nil }

func (s *FakeStore) FindOne(ctx context.Context, parent, name string) (*vfsmodel.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.docs[fakeKey(parent, name)]
	if !ok {
		return nil, ErrNoDocuments
	}
	cp := *n
	return &cp, nil
}

func (s *FakeStore) Insert(ctx context.Context, n *vfsmodel.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fakeKey(n.Parent, n.Name)
	if _, exists := s.docs[key]; exists {
		return ErrDuplicateKey
	}
	s.nextID++
	cp := *n
	cp.ID = s.nextID
	s.docs[key] = &cp
	n.ID = cp.ID
	return nil
}

func (s *FakeStore) Replace(ctx context.Context, parent, name string, n *vfsmodel.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fakeKey(parent, name)
	cp := *n
	if existing, ok := s.docs[key]; ok {
		cp.ID = existing.ID
	} else {
		s.nextID++
		cp.ID = s.nextID
	}
	s.docs[key] = &cp
	return nil
}

func (s *FakeStore) UpdateByID(ctx context.Context, id any, set map[string]any, unset []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.docs {
		if n.ID != id {
			continue
		}
		applyUpdate(n, set, unset)
		return nil
	}
	return ErrNoDocuments
}

func applyUpdate(n *vfsmodel.Node, set map[string]any, unset []string) {
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
		case "name":
			n.Name = v.(string)
		case "parent":
			n.Parent = v.(string)
		case "mtime":
			n.MTime = v.(int64)
		case "local_path":
			n.LocalPath = v.(string)
		}
	}
	for _, f := range unset {
		switch f {
		case "local_path":
			n.LocalPath = ""
		case "uploadId":
			// no field modeled; present in source schema only
		}
	}
}

func (s *FakeStore) DeleteOne(ctx context.Context, parent, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, fakeKey(parent, name))
	return nil
}

func (s *FakeStore) DeleteMany(ctx context.Context, parentPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, n := range s.docs {
		if strings.HasPrefix(n.Parent, parentPrefix) {
			delete(s.docs, key)
		}
	}
	return nil
}

func (s *FakeStore) List(ctx context.Context, parent string) (Lister, error) {
	s.mu.Lock()
	var out []*vfsmodel.Node
	for _, n := range s.docs {
		if n.Parent == parent && !strings.HasSuffix(n.Name, ".partial") {
			cp := *n
			out = append(out, &cp)
		}
	}
	s.mu.Unlock()
	return &sliceLister{items: out}, nil
}

func (s *FakeStore) FindPending(ctx context.Context) (Lister, error) {
	s.mu.Lock()
	var out []*vfsmodel.Node
	for _, n := range s.docs {
		if n.Status == vfsmodel.StatusStaging || (n.LocalPath != "" && n.Status != vfsmodel.StatusCompleted) {
			cp := *n
			out = append(out, &cp)
		}
	}
	s.mu.Unlock()
	return &sliceLister{items: out}, nil
}

func (s *FakeStore) Close(ctx context.Context) error { return nil }

type sliceLister struct {
	items []*vfsmodel.Node
	pos   int
}

func (l *sliceLister) Next(ctx context.Context) (*vfsmodel.Node, bool, error) {
	if l.pos >= len(l.items) {
		return nil, false, nil
	}
	n := l.items[l.pos]
	l.pos++
	return n, true, nil
}

func (l *sliceLister) Close(ctx context.Context) error { return nil }
