package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClientSendAndStream(t *testing.T) {
	c := NewFakeClient()
	chunk, err := c.SendDocument(context.Background(), "t", "chunk-0", bytes.NewReader([]byte("hello world")), 11)
	require.NoError(t, err)
	assert.NotEmpty(t, chunk.BlobID)

	rc, err := c.Stream(context.Background(), chunk.BlobID, 6)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
}

func TestFakeClientFailHook(t *testing.T) {
	c := NewFakeClient()
	c.Fail = func(chunkName string) error { return errors.New("boom: " + chunkName) }
	_, err := c.SendDocument(context.Background(), "t", "chunk-0", bytes.NewReader([]byte("x")), 1)
	assert.EqualError(t, err, "boom: chunk-0")
}

func TestPoolRoundRobinsSend(t *testing.T) {
	a, b := NewFakeClient(), NewFakeClient()
	pool, err := NewPool(a, []Client{a, b})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := pool.SendDocument(context.Background(), "t", "c", bytes.NewReader([]byte("x")), 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, len(a.chunks))
	assert.Equal(t, 2, len(b.chunks))
}

func TestPoolStreamGoesThroughPrimary(t *testing.T) {
	primary, secondary := NewFakeClient(), NewFakeClient()
	pool, err := NewPool(primary, []Client{primary, secondary})
	require.NoError(t, err)

	chunk, err := primary.SendDocument(context.Background(), "t", "c", bytes.NewReader([]byte("abc")), 3)
	require.NoError(t, err)

	rc, err := pool.Stream(context.Background(), chunk.BlobID, 0)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestNewPoolRequiresAtLeastOneClient(t *testing.T) {
	_, err := NewPool(nil, nil)
	assert.Error(t, err)
}

func TestReaderAdaptsClientToStreamChunk(t *testing.T) {
	c := NewFakeClient()
	chunk, err := c.SendDocument(context.Background(), "t", "c", bytes.NewReader([]byte("xyz")), 3)
	require.NoError(t, err)

	r := Reader{Client: c}
	rc, err := r.StreamChunk(context.Background(), chunk.BlobID, 1)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "yz", string(got))
}
