package blob

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Pool fans a send workload out across several Clients round-robin,
// while all reads and copies go through a single designated primary.
// This replaces the source system's dynamic attribute-proxying
// `__getattr__` forwarding (which picked a client per attribute access)
// with an explicit interface and an explicit routing rule.
type Pool struct {
	clients []Client
	primary Client
	next    uint64
}

// NewPool builds a Pool that round-robins SendDocument across clients
// and routes Stream/Copy to primary; Ping checks every client. clients
// must be non-empty.
func NewPool(primary Client, clients []Client) (*Pool, error) {
	if len(clients) == 0 {
		return nil, errors.New("blob: pool requires at least one client")
	}
	return &Pool{clients: clients, primary: primary}, nil
}

// SendDocument dispatches to the next client in round-robin order.
func (p *Pool) SendDocument(ctx context.Context, target, chunkName string, body io.ReadSeeker, size int64) (Chunk, error) {
	idx := atomic.AddUint64(&p.next, 1) % uint64(len(p.clients))
	return p.clients[idx].SendDocument(ctx, target, chunkName, body, size)
}

// Stream always reads through the primary client.
func (p *Pool) Stream(ctx context.Context, blobID string, localOffset int64) (io.ReadCloser, error) {
	return p.primary.Stream(ctx, blobID, localOffset)
}

// Copy always goes through the primary client.
func (p *Pool) Copy(ctx context.Context, blobID, backupTarget string) error {
	return p.primary.Copy(ctx, blobID, backupTarget)
}

// Ping checks every client in the pool concurrently, not only the
// primary, since a single dead sender should surface at startup; fanning
// the checks out with an errgroup follows the same concurrent-request
// shape backend/b2/upload.go uses for its large-file part uploads.
func (p *Pool) Ping(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range p.clients {
		c := c
		g.Go(func() error {
			return c.Ping(gctx)
		})
	}
	return g.Wait()
}
