package ftpconn

import (
	"net"

	"github.com/nebulaftp/nebulaftp/internal/users"
)

// Connection holds one session's awaitable slots. The slot set is
// fixed and named explicitly (spec §3), not a dynamic map of arbitrary
// keys, so each accessor is typed.
type Connection struct {
	user             *Future // *users.User
	logged           *Future // bool
	currentDirectory *Future // string
	passiveServer    *Future // *PassiveServer (defined in passive.go)
	dataConnection   *Future // net.Conn
	renameFrom       *Future // string
	restartOffset    *Future // int64
}

// New builds a Connection with cwd initialized to "/" and
// restart_offset initialized to 0, matching the slots the source
// always pre-fills versus those that start empty (user/logged/
// passive_server/data_connection/rename_from all start unset).
func New() *Connection {
	c := &Connection{
		user:             NewFuture(),
		logged:           NewFuture(),
		currentDirectory: NewFuture(),
		passiveServer:    NewFuture(),
		dataConnection:   NewFuture(),
		renameFrom:       NewFuture(),
		restartOffset:    NewFuture(),
	}
	c.currentDirectory.Set("/")
	c.restartOffset.Set(int64(0))
	return c
}

func (c *Connection) SetUser(u *users.User)      { c.user.Set(u) }
func (c *Connection) ClearUser()                 { c.user.Delete() }
func (c *Connection) SetLogged(v bool)           { c.logged.Set(v) }
func (c *Connection) ClearLogged()               { c.logged.Delete() }
func (c *Connection) SetCWD(path string)         { c.currentDirectory.Set(path) }
func (c *Connection) SetRenameFrom(path string)  { c.renameFrom.Set(path) }
func (c *Connection) ClearRenameFrom()           { c.renameFrom.Delete() }
func (c *Connection) SetRestartOffset(off int64) { c.restartOffset.Set(off) }
func (c *Connection) ResetRestartOffset()        { c.restartOffset.Set(int64(0)) }
func (c *Connection) SetDataConnection(conn net.Conn) {
	c.dataConnection.Set(conn)
}
func (c *Connection) ClearDataConnection() { c.dataConnection.Delete() }
func (c *Connection) SetPassiveServer(p *PassiveServer) {
	c.passiveServer.Set(p)
}

// User returns the logged-in user, or nil if unset.
func (c *Connection) User() *users.User {
	v, ok := c.user.Peek()
	if !ok {
		return nil
	}
	return v.(*users.User)
}

// Logged reports whether PASS succeeded.
func (c *Connection) Logged() bool {
	v, ok := c.logged.Peek()
	return ok && v.(bool)
}

// CWD returns the current working directory.
func (c *Connection) CWD() string {
	v, _ := c.currentDirectory.Peek()
	if v == nil {
		return "/"
	}
	return v.(string)
}

// RenameFrom returns the path staged by RNFR, or ("", false).
func (c *Connection) RenameFrom() (string, bool) {
	v, ok := c.renameFrom.Peek()
	if !ok {
		return "", false
	}
	return v.(string), true
}

// RestartOffset returns the offset staged by REST (0 if unset).
func (c *Connection) RestartOffset() int64 {
	v, ok := c.restartOffset.Peek()
	if !ok {
		return 0
	}
	return v.(int64)
}

// PassiveServer returns the session's passive listener, or nil.
func (c *Connection) PassiveServer() *PassiveServer {
	v, ok := c.passiveServer.Peek()
	if !ok {
		return nil
	}
	return v.(*PassiveServer)
}

// DataConnection returns the adopted data connection, or nil.
func (c *Connection) DataConnection() net.Conn {
	v, ok := c.dataConnection.Peek()
	if !ok {
		return nil
	}
	return v.(net.Conn)
}

// Futures (exposed for the gate package to Get-with-timeout on).
func (c *Connection) UserFuture() *Future             { return c.user }
func (c *Connection) LoggedFuture() *Future           { return c.logged }
func (c *Connection) RenameFromFuture() *Future       { return c.renameFrom }
func (c *Connection) DataConnectionFuture() *Future   { return c.dataConnection }
func (c *Connection) PassiveServerFuture() *Future    { return c.passiveServer }
