package ftpserver

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/nebulaftp/nebulaftp/internal/ftpconn"
	"github.com/nebulaftp/nebulaftp/internal/users"
)

// Session is one FTP control connection. A response-writer goroutine
// runs alongside the parse-dispatch loop, which runs each command
// handler in turn; data-channel transfers run in their own worker
// goroutines, coordinated over channels rather than the source's
// asyncio.wait(FIRST_COMPLETED).
type Session struct {
	srv  *Server
	conn net.Conn
	r    *bufio.Reader

	conn_ *ftpconn.Connection // the awaitable-slot state machine
	log   *logrus.Entry

	respQueue chan string
	loggedIn  string // login, set once USER takes a per-user slot, for slot release

	mu       sync.Mutex
	abortGen int // incremented by ABOR; workers compare it to the value captured at spawn

	workers sync.WaitGroup // tracks detached STOR/RETR/LIST goroutines
}

// goWorker launches a detached transfer worker (STOR/RETR/LIST) tracked
// by s.workers, so run() can wait for every such goroutine to finish
// before closing respQueue. A worker calling s.reply() after the queue
// is closed would panic the whole process, which is what untracked
// goroutines risked on QUIT or a dropped control connection.
func (s *Session) goWorker(f func()) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		f()
	}()
}

func newSession(srv *Server, conn net.Conn) *Session {
	return &Session{
		srv:       srv,
		conn:      conn,
		r:         bufio.NewReader(conn),
		conn_:     ftpconn.New(),
		log:       srv.log.WithField("remote", conn.RemoteAddr().String()),
		respQueue: make(chan string, 64),
	}
}

// run drives the session end to end: greeting, response-writer
// goroutine, then the parse-dispatch loop, then teardown.
func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		s.writeLoop()
	}()

	s.reply(220, "nebulaftp ready")

	s.dispatchLoop(ctx)

	// QUIT or a dropped control connection can race an in-flight
	// STOR/RETR/LIST worker: bump the abort generation and cancel the
	// session context so gate waits return immediately, close the data
	// connection so any blocked Read/Write unblocks, then wait for every
	// worker to finish before closing respQueue out from under it.
	s.bumpAbortGen()
	cancel()
	if dc := s.conn_.DataConnection(); dc != nil {
		dc.Close()
	}
	s.workers.Wait()

	close(s.respQueue)
	writerWG.Wait()
	s.teardown()
}

func (s *Session) teardown() {
	if ps := s.conn_.PassiveServer(); ps != nil {
		ps.Close()
	}
	if dc := s.conn_.DataConnection(); dc != nil {
		dc.Close()
	}
	if s.loggedIn != "" {
		s.srv.releaseUserSlot(s.loggedIn)
		if u := s.conn_.User(); u != nil {
			users.NotifyLogout(u)
		}
	}
	s.conn.Close()
}

// writeLoop drains respQueue in enqueue order until it is closed.
func (s *Session) writeLoop() {
	for line := range s.respQueue {
		_, err := s.conn.Write([]byte(line))
		if err != nil {
			return
		}
	}
}

// reply enqueues a single-line reply "code message\r\n".
func (s *Session) reply(code int, message string) {
	s.respQueue <- formatSingle(code, message)
}

// replyLines enqueues a multi-line reply: code-first/continuation/
// "code space last", per spec §4.9.
func (s *Session) replyLines(code int, lines []string) {
	s.respQueue <- formatMulti(code, lines)
}

// replyListStyle enqueues a list-style reply: "code-" first/middle
// lines with a leading space on continuations, "code " terminator.
func (s *Session) replyListStyle(code int, header string, items []string, trailer string) {
	s.respQueue <- formatListStyle(code, header, items, trailer)
}

func formatSingle(code int, message string) string {
	return itoa(code) + " " + message + "\r\n"
}

func formatMulti(code int, lines []string) string {
	if len(lines) == 0 {
		return formatSingle(code, "")
	}
	var b strings.Builder
	c := itoa(code)
	for i, l := range lines {
		if i == 0 {
			b.WriteString(c + "-" + l + "\r\n")
		} else if i == len(lines)-1 {
			b.WriteString(c + " " + l + "\r\n")
		} else {
			b.WriteString(" " + l + "\r\n")
		}
	}
	return b.String()
}

func formatListStyle(code int, header string, items []string, trailer string) string {
	var b strings.Builder
	c := itoa(code)
	b.WriteString(c + "-" + header + "\r\n")
	for _, it := range items {
		b.WriteString(" " + it + "\r\n")
	}
	b.WriteString(c + " " + trailer + "\r\n")
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// dispatchLoop reads one command line at a time, looks it up, and runs
// its handler. The handler runs synchronously with respect to parsing
// the *next* line (spec §4.9: "restart the parser" only after spawning
// the handler), but any data-channel streaming it starts is handed to
// its own goroutine so the control channel stays responsive.
func (s *Session) dispatchLoop(ctx context.Context) {
	for {
		line, err := s.readLine()
		if err != nil {
			return
		}
		cmd, rest := splitCommand(line)
		if cmd == "" {
			continue
		}

		handler, ok := commandTable[cmd]
		if !ok {
			s.reply(502, "not implemented")
			continue
		}

		if cmd != "retr" && cmd != "stor" && cmd != "appe" {
			// REST's restart_offset is consumed by STOR/APPE/RETR; any
			// other command resets it, per spec §4.9.
			s.conn_.ResetRestartOffset()
		}

		cont := handler(ctx, s, rest)
		if !cont {
			return
		}
	}
}

// readLine reads one CRLF- or LF-terminated line, decoding UTF-8 with a
// Latin-1 fallback, then NFC-normalizing (spec §4.9 input decoding).
func (s *Session) readLine() (string, error) {
	raw, err := s.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	raw = strings.TrimRight(raw, "\r\n")

	var decoded string
	if utf8.ValidString(raw) {
		decoded = raw
	} else {
		d, derr := charmap.ISO8859_1.NewDecoder().String(raw)
		if derr != nil {
			decoded = raw
		} else {
			decoded = d
		}
	}
	return norm.NFC.String(decoded), nil
}

// splitCommand splits on the first space into a lowercased command verb
// and the remainder.
func splitCommand(line string) (cmd, rest string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return strings.ToLower(line), ""
	}
	return strings.ToLower(line[:i]), line[i+1:]
}

// bumpAbortGen bumps the abort generation, used by cmdABOR; worker
// goroutines check their captured generation before emitting success.
func (s *Session) bumpAbortGen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortGen++
	return s.abortGen
}

func (s *Session) currentAbortGen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortGen
}
