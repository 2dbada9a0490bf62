package ftpconn

import "net"

// PassiveServer is the per-session passive-mode listener state (component
// J owns the bind/accept logic in package ftpserver; this struct is the
// shared shape the Connection slot holds).
type PassiveServer struct {
	Listener net.Listener
	Host     string
	Port     int
}

// Close releases the listener, if any.
func (p *PassiveServer) Close() error {
	if p == nil || p.Listener == nil {
		return nil
	}
	return p.Listener.Close()
}
