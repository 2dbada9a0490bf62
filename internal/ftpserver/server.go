// Package ftpserver implements the command dispatcher (component I)
// and the passive data-channel broker (component J): the per-session
// line parser, response writer, command table and handlers, and the
// PASV/EPSV listener lifecycle.
package ftpserver

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nebulaftp/nebulaftp/internal/config"
	"github.com/nebulaftp/nebulaftp/internal/upload"
	"github.com/nebulaftp/nebulaftp/internal/users"
	"github.com/nebulaftp/nebulaftp/internal/vfs"
)

// BlobReader is re-declared here (matching vfs.BlobReader's shape) so
// callers constructing a Server don't need to import the vfs package
// just to name the type.
type BlobReader = vfs.BlobReader

// SessionMetrics is the narrow metrics surface the server reports
// active-session counts through.
type SessionMetrics interface {
	SetActiveSessions(n int)
}

type noopSessionMetrics struct{}

func (noopSessionMetrics) SetActiveSessions(int) {}

// Server accepts FTP control connections and runs one Session per
// connection, gated by a global connection semaphore (spec §5d).
type Server struct {
	cfg     *config.Config
	vfs     *vfs.VFS
	users   *users.Directory
	queue   *upload.Queue
	log     *logrus.Entry
	metrics SessionMetrics
	blob    BlobReader

	sem chan struct{} // global connection cap

	mu       sync.Mutex
	sessions map[*Session]struct{}
	perUser  map[string]int

	listener net.Listener
}

// New builds a Server. blob, if non-nil, is used for chunked reads
// (RETR of a file fully persisted to the blob store); it may be nil in
// tests that never RETR a chunked file.
func New(cfg *config.Config, v *vfs.VFS, dir *users.Directory, queue *upload.Queue, log *logrus.Entry, metrics SessionMetrics, blob BlobReader) *Server {
	if metrics == nil {
		metrics = noopSessionMetrics{}
	}
	return &Server{
		cfg: cfg, vfs: v, users: dir, queue: queue, log: log, metrics: metrics, blob: blob,
		sem:      make(chan struct{}, cfg.MaxConnections),
		sessions: make(map[*Session]struct{}),
		perUser:  make(map[string]int),
	}
}

// ListenAndServe binds the control port and serves until ctx is
// cancelled. It returns once the listener is closed and every session
// has torn down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ListenHost, s.cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.WithField("addr", addr).Info("control channel listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				wg.Wait()
				return nil
			default:
				s.log.WithError(err).Warn("accept failed")
				wg.Wait()
				return err
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	select {
	case s.sem <- struct{}{}:
	default:
		// Busy: cap=N and the (N+1)th connection is rejected at greeting.
		fmt.Fprintf(conn, "421 too many connections\r\n")
		conn.Close()
		return
	}
	defer func() { <-s.sem }()

	sess := newSession(s, conn)
	s.addSession(sess)
	defer s.removeSession(sess)

	sess.run(ctx)
}

func (s *Server) addSession(sess *Session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()
}

func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mu.Unlock()
}

// acquireUserSlot enforces MaxConnectionsPerUser, independent of the
// per-account AvailableConnections counter users.Directory already
// tracks; this is the server-wide knob spec §6 lists alongside the
// global cap.
func (s *Server) acquireUserSlot(login string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.perUser[login] >= s.cfg.MaxConnectionsPerUser {
		return false
	}
	s.perUser[login]++
	return true
}

func (s *Server) releaseUserSlot(login string) {
	s.mu.Lock()
	if s.perUser[login] > 0 {
		s.perUser[login]--
	}
	s.mu.Unlock()
}

// Shutdown closes the listener and every live session's control
// connection, used by the graceful-shutdown sequence in cmd/nebulaftpd.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()
}
