package ftpserver

import (
	"fmt"
	"net"
	"strconv"

	"github.com/nebulaftp/nebulaftp/internal/ftpconn"
)

// bindPassiveListener binds the session's passive listener if one does
// not already exist: iterates the configured port range for the first
// free port, or binds ephemeral port 0 if no range is configured.
func (s *Session) bindPassiveListener() (*ftpconn.PassiveServer, error) {
	if ps := s.conn_.PassiveServer(); ps != nil {
		return ps, nil
	}

	ln, err := s.bindInRange()
	if err != nil {
		return nil, err
	}

	host := s.srv.cfg.MasqueradeAddr
	if host == "" {
		host, _, _ = net.SplitHostPort(s.conn.LocalAddr().String())
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	ps := &ftpconn.PassiveServer{Listener: ln, Host: host, Port: port}
	s.conn_.SetPassiveServer(ps)

	go s.acceptPassive(ps)
	return ps, nil
}

func (s *Session) bindInRange() (net.Listener, error) {
	lo, hi := s.srv.cfg.PassivePortLo, s.srv.cfg.PassivePortHi
	if lo == 0 && hi == 0 {
		return net.Listen("tcp", ":0")
	}
	var lastErr error
	for p := lo; p <= hi; p++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("ftpserver: empty passive port range")
	}
	return nil, lastErr
}

// acceptPassive accepts inbound data connections on ps.Listener. If a
// data connection already exists it closes the new one; otherwise it
// adopts it, fulfilling the data_connection slot.
func (s *Session) acceptPassive(ps *ftpconn.PassiveServer) {
	for {
		conn, err := ps.Listener.Accept()
		if err != nil {
			return
		}
		if existing := s.conn_.DataConnection(); existing != nil {
			conn.Close()
			continue
		}
		s.conn_.SetDataConnection(conn)
	}
}

// pasvReply formats the 227 reply: h1,h2,h3,h4,p1,p2.
func pasvReply(host string, port int) string {
	ip := net.ParseIP(host)
	var quad [4]byte
	if ip != nil {
		if v4 := ip.To4(); v4 != nil {
			copy(quad[:], v4)
		}
	}
	p1, p2 := port/256, port%256
	return fmt.Sprintf("entering pasv (%d,%d,%d,%d,%d,%d)", quad[0], quad[1], quad[2], quad[3], p1, p2)
}

// epsvReply formats the 229 reply: (|||port|).
func epsvReply(port int) string {
	return fmt.Sprintf("entering epsv (|||%d|)", port)
}
