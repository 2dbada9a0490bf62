package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// FakeClient is an in-memory Client used by upload/vfs tests, the same
// kind of double backend/seafile's own tests substitute for a live
// HTTP server.
type FakeClient struct {
	mu     sync.Mutex
	chunks map[string][]byte
	nextID uint64
	Fail   func(chunkName string) error
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{chunks: make(map[string][]byte)}
}

func (c *FakeClient) SendDocument(ctx context.Context, target, chunkName string, body io.ReadSeeker, size int64) (Chunk, error) {
	if c.Fail != nil {
		if err := c.Fail(chunkName); err != nil {
			return Chunk{}, err
		}
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return Chunk{}, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(body, buf); err != nil && err != io.EOF {
		return Chunk{}, err
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	blobID := fmt.Sprintf("fake-blob-%d", id)
	c.chunks[blobID] = buf
	c.mu.Unlock()
	return Chunk{BlobID: blobID, BlobMsgID: id}, nil
}

func (c *FakeClient) Stream(ctx context.Context, blobID string, localOffset int64) (io.ReadCloser, error) {
	c.mu.Lock()
	data, ok := c.chunks[blobID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("blob: no such chunk %q", blobID)
	}
	if localOffset > int64(len(data)) {
		localOffset = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[localOffset:])), nil
}

func (c *FakeClient) Copy(ctx context.Context, blobID, backupTarget string) error {
	c.mu.Lock()
	_, ok := c.chunks[blobID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("blob: no such chunk %q", blobID)
	}
	return nil
}

func (c *FakeClient) Ping(ctx context.Context) error { return nil }
