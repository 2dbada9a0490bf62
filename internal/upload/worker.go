package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nebulaftp/nebulaftp/internal/blob"
	"github.com/nebulaftp/nebulaftp/internal/store"
	"github.com/nebulaftp/nebulaftp/internal/vfsmodel"
	"github.com/nebulaftp/nebulaftp/internal/vpath"
)

// Metrics is the narrow counter surface the worker pool reports
// through; internal/metrics provides the Prometheus-backed
// implementation, tests can pass a no-op.
type Metrics interface {
	UploadSucceeded(bytes int64)
	UploadFailed()
}

type noopMetrics struct{}

func (noopMetrics) UploadSucceeded(int64) {}
func (noopMetrics) UploadFailed()         {}

// Pool drains a Queue with a fixed number of worker goroutines, each
// running the chunk-split-and-push loop of spec §4.7.
type Pool struct {
	queue      *Queue
	st         store.Store
	client     blob.Client
	backupTarget string
	target     string
	chunkSize  int64
	maxRetries int
	log        *logrus.Entry
	metrics    Metrics

	wg sync.WaitGroup
}

// NewPool builds a worker pool. chunkSizeBytes is the configured chunk
// size (spec default 64 MiB); backupTarget may be empty to disable
// backup copies.
func NewPool(queue *Queue, st store.Store, client blob.Client, target, backupTarget string, chunkSizeBytes int64, maxRetries int, log *logrus.Entry, metrics Metrics) *Pool {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pool{
		queue: queue, st: st, client: client,
		target: target, backupTarget: backupTarget,
		chunkSize: chunkSizeBytes, maxRetries: maxRetries,
		log: log, metrics: metrics,
	}
}

// Start launches n worker goroutines pulling from the pool's queue
// until ctx is cancelled or the queue is closed and drained.
func (p *Pool) Start(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker goroutine has exited (the queue was
// closed and fully drained, or ctx was cancelled).
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", workerID)
	for {
		select {
		case task, ok := <-p.queue.Pop():
			if !ok {
				return
			}
			p.process(ctx, log, task)
		case <-ctx.Done():
			return
		}
	}
}

// process implements the six-step worker loop of spec §4.7.
func (p *Pool) process(ctx context.Context, log *logrus.Entry, task Task) {
	if vpath.IsPartial(task.Filename) {
		log.WithField("file", task.Filename).Warn("refusing to upload a .partial file")
		return
	}

	fi, err := os.Stat(task.LocalPath)
	if err != nil || fi.Size() == 0 {
		if err == nil {
			_ = os.Remove(task.LocalPath)
		}
		return
	}

	doc, err := p.st.FindOne(ctx, task.Parent, task.Filename)
	if err != nil && err != store.ErrNoDocuments {
		log.WithError(err).Warn("metadata lookup failed, dropping task")
		return
	}
	if err == store.ErrNoDocuments || doc == nil {
		// Metadata was deleted out from under this task (e.g. DELE while
		// the upload was queued). Ack and drop, per spec §4.7 step 3.
		log.WithField("file", task.Filename).Debug("metadata doc missing, dropping task")
		_ = os.Remove(task.LocalPath)
		return
	}

	fileUUID := uuid.New().String()

	f, err := os.Open(task.LocalPath)
	if err != nil {
		log.WithError(err).Warn("cannot open staging file")
		return
	}
	defer f.Close()

	var parts []vfsmodel.ChunkRef
	var partNum uint32
	buf := make([]byte, p.chunkSize)
	for {
		n, rerr := io.ReadFull(f, buf)
		if n == 0 && rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			log.WithError(rerr).Warn("reading staging file failed")
			p.metrics.UploadFailed()
			return
		}

		chunkName := fmt.Sprintf("%s.part_%03d", fileUUID, partNum)
		chunk, sendErr := p.client.SendDocument(ctx, p.target, chunkName, newSeeker(buf[:n]), int64(n))
		if sendErr != nil {
			log.WithError(sendErr).WithField("chunk", chunkName).Warn("chunk upload exhausted retries, abandoning file")
			p.metrics.UploadFailed()
			return
		}

		if p.backupTarget != "" {
			if cerr := p.client.Copy(ctx, chunk.BlobID, p.backupTarget); cerr != nil {
				log.WithError(cerr).WithField("chunk", chunkName).Debug("backup copy failed, ignoring")
			}
		}

		parts = append(parts, vfsmodel.ChunkRef{
			PartID: partNum, BlobID: chunk.BlobID, BlobMsgID: chunk.BlobMsgID,
			Size: uint32(n), ChunkName: chunkName,
		})
		partNum++

		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
	}

	err = p.st.UpdateByID(ctx, doc.ID, map[string]any{
		"size":          fi.Size(),
		"uploaded_at":   time.Now().Unix(),
		"parts":         parts,
		"obfuscated_id": fileUUID,
		"status":        vfsmodel.StatusCompleted,
	}, []string{"local_path"})
	if err != nil {
		log.WithError(err).Warn("metadata swap failed after successful chunk upload")
		p.metrics.UploadFailed()
		return
	}

	_ = os.Remove(task.LocalPath)
	p.metrics.UploadSucceeded(fi.Size())
}

// newSeeker wraps an in-memory block so it satisfies io.ReadSeeker for
// blob.Client.SendDocument, which seeks back to 0 before each retry
// attempt the same way objectChunkWriter.WriteChunk re-seeks its
// reader.
func newSeeker(b []byte) io.ReadSeeker {
	return &byteSeeker{data: b}
}

type byteSeeker struct {
	data []byte
	pos  int
}

func (s *byteSeeker) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *byteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.data))
	}
	s.pos = int(base + offset)
	return int64(s.pos), nil
}
