package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulaftp/nebulaftp/internal/blob"
	"github.com/nebulaftp/nebulaftp/internal/store"
	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return logrus.NewEntry(l)
}

func writeStagingFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestProcessChunksAndCompletesNewFile(t *testing.T) {
	dir := t.TempDir()
	path := writeStagingFile(t, dir, "report.csv", "0123456789")

	st := store.NewFakeStore()
	staged := vfsmodel.NewEmptyFile("/alice", "report.csv")
	staged.LocalPath = path
	staged.Status = vfsmodel.StatusStaging
	require.NoError(t, st.Insert(context.Background(), staged))

	client := blob.NewFakeClient()
	pool := NewPool(NewQueue(1), st, client, "primary", "", 4, 3, testLog(), nil)

	pool.process(context.Background(), testLog(), Task{
		LocalPath: path, Filename: "report.csv", Parent: "/alice", Size: 10,
	})

	node, err := st.FindOne(context.Background(), "/alice", "report.csv")
	require.NoError(t, err)
	assert.Equal(t, vfsmodel.StatusCompleted, node.Status)
	assert.Equal(t, int64(10), node.Size)
	assert.Len(t, node.Parts, 3) // 4-byte chunks: 4+4+2

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "staging file should be removed after upload")
}

// TestProcessDropsTaskWhenMetadataMissing covers spec §4.7 step 3: if the
// metadata doc is gone by the time a worker picks up the task (e.g. DELE
// raced the queued upload), the worker must ack and drop rather than
// resurrect a document for a file nobody asked to keep.
func TestProcessDropsTaskWhenMetadataMissing(t *testing.T) {
	dir := t.TempDir()
	path := writeStagingFile(t, dir, "gone.bin", "0123456789")

	st := store.NewFakeStore()
	client := blob.NewFakeClient()
	pool := NewPool(NewQueue(1), st, client, "primary", "", 4, 3, testLog(), nil)

	pool.process(context.Background(), testLog(), Task{
		LocalPath: path, Filename: "gone.bin", Parent: "/alice", Size: 10,
	})

	_, err := st.FindOne(context.Background(), "/alice", "gone.bin")
	assert.ErrorIs(t, err, store.ErrNoDocuments, "no document should be created for a dropped task")
}

func TestProcessUpdatesExistingDoc(t *testing.T) {
	dir := t.TempDir()
	path := writeStagingFile(t, dir, "a.bin", "hello")

	st := store.NewFakeStore()
	existing := vfsmodel.NewEmptyFile("/bob", "a.bin")
	existing.LocalPath = path
	existing.Status = vfsmodel.StatusStaging
	require.NoError(t, st.Insert(context.Background(), existing))

	client := blob.NewFakeClient()
	pool := NewPool(NewQueue(1), st, client, "primary", "", 64, 3, testLog(), nil)

	pool.process(context.Background(), testLog(), Task{
		LocalPath: path, Filename: "a.bin", Parent: "/bob", Size: 5,
	})

	node, err := st.FindOne(context.Background(), "/bob", "a.bin")
	require.NoError(t, err)
	assert.Equal(t, vfsmodel.StatusCompleted, node.Status)
	assert.Equal(t, existing.ID, node.ID)
	assert.Empty(t, node.LocalPath)
}

func TestProcessRefusesPartialFilename(t *testing.T) {
	dir := t.TempDir()
	path := writeStagingFile(t, dir, "x.partial", "data")

	st := store.NewFakeStore()
	client := blob.NewFakeClient()
	pool := NewPool(NewQueue(1), st, client, "primary", "", 64, 3, testLog(), nil)

	pool.process(context.Background(), testLog(), Task{
		LocalPath: path, Filename: "x.partial", Parent: "/carol", Size: 4,
	})

	_, err := st.FindOne(context.Background(), "/carol", "x.partial")
	assert.ErrorIs(t, err, store.ErrNoDocuments)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "partial files are left untouched")
}

func TestProcessAbandonsOnSendFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeStagingFile(t, dir, "big.bin", "0123456789")

	st := store.NewFakeStore()
	staged := vfsmodel.NewEmptyFile("/dave", "big.bin")
	staged.LocalPath = path
	staged.Status = vfsmodel.StatusStaging
	require.NoError(t, st.Insert(context.Background(), staged))

	client := blob.NewFakeClient()
	failed := false
	client.Fail = func(string) error {
		failed = true
		return assertErr
	}
	pool := NewPool(NewQueue(1), st, client, "primary", "", 4, 3, testLog(), nil)

	pool.process(context.Background(), testLog(), Task{
		LocalPath: path, Filename: "big.bin", Parent: "/dave", Size: 10,
	})

	assert.True(t, failed)
	node, err := st.FindOne(context.Background(), "/dave", "big.bin")
	require.NoError(t, err)
	assert.Equal(t, vfsmodel.StatusStaging, node.Status, "metadata is left untouched when upload is abandoned")
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "local file is kept when upload is abandoned")
}

func TestPoolStartDrainsQueue(t *testing.T) {
	dir := t.TempDir()
	path := writeStagingFile(t, dir, "small.txt", "hi")

	st := store.NewFakeStore()
	staged := vfsmodel.NewEmptyFile("/erin", "small.txt")
	staged.LocalPath = path
	staged.Status = vfsmodel.StatusStaging
	require.NoError(t, st.Insert(context.Background(), staged))

	client := blob.NewFakeClient()
	queue := NewQueue(1)
	pool := NewPool(queue, st, client, "primary", "", 64, 3, testLog(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx, 2)

	queue.Push(Task{LocalPath: path, Filename: "small.txt", Parent: "/erin", Size: 2})

	require.Eventually(t, func() bool {
		node, err := st.FindOne(context.Background(), "/erin", "small.txt")
		return err == nil && node.Status == vfsmodel.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

var assertErr = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "send failed" }
