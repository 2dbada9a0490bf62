// Package users implements the user and permission model (spec §4.6):
// credential lookup, per-path permission resolution and a per-user
// connection quota.
package users

import (
	"strings"
	"sync"

	"github.com/nebulaftp/nebulaftp/internal/vpath"
)

// State is the outcome of a GetUser lookup.
type State int

const (
	// PasswordRequired means the login exists and a password should be
	// requested next.
	PasswordRequired State = iota
	// StateError means the login cannot proceed (unknown user, or the
	// per-user connection quota is exhausted).
	StateError
)

// Permission gates read/write access under a path.
type Permission struct {
	Path     string
	Readable bool
	Writable bool
}

// User is one account as held in the credential backend (out of scope
// per spec §6; this package only consumes {login, password,
// permissions}).
type User struct {
	Login       string
	Password    string
	HomePath    string
	Permissions []Permission

	mu                   sync.Mutex
	availableConnections int
}

const defaultAvailableConnections = 100

// NewUser builds a User with the implicit home and root permissions
// spec §3 requires: every user gets {path: home, readable: true,
// writable: true}, and a default {path: "/", readable: true,
// writable: false} if the caller did not declare one for root.
func NewUser(login, password string, perms []Permission) *User {
	home := "/" + login
	u := &User{
		Login:                login,
		Password:             password,
		HomePath:             home,
		availableConnections: defaultAvailableConnections,
	}

	hasHome := false
	hasRoot := false
	for _, p := range perms {
		if p.Path == home {
			hasHome = true
		}
		if p.Path == "/" {
			hasRoot = true
		}
	}
	u.Permissions = append(u.Permissions, perms...)
	if !hasHome {
		u.Permissions = append(u.Permissions, Permission{Path: home, Readable: true, Writable: true})
	}
	if !hasRoot {
		u.Permissions = append(u.Permissions, Permission{Path: "/", Readable: true, Writable: false})
	}
	return u
}

// Directory looks up users by login, standing in for the out-of-scope
// credential backend (spec §6).
type Directory struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewDirectory builds a Directory over users, indexed by login.
func NewDirectory(users []*User) *Directory {
	d := &Directory{users: make(map[string]*User, len(users))}
	for _, u := range users {
		d.users[u.Login] = u
	}
	return d
}

// GetUser looks up login. If found and available connections remain,
// it decrements the counter and returns PasswordRequired; if the
// counter is already zero, it returns StateError without consuming a
// slot. An unknown login also returns StateError.
func (d *Directory) GetUser(login string) (State, *User, string) {
	d.mu.RLock()
	u, ok := d.users[login]
	d.mu.RUnlock()
	if !ok {
		return StateError, nil, "unknown user"
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.availableConnections <= 0 {
		return StateError, nil, "too many connections"
	}
	u.availableConnections--
	return PasswordRequired, u, ""
}

// Authenticate is plain equality, per spec §4.6 ("external concern; not
// hardened here").
func Authenticate(u *User, password string) bool {
	return u.Password == password
}

// NotifyLogout releases one connection slot back to u.
func NotifyLogout(u *User) {
	u.mu.Lock()
	if u.availableConnections < defaultAvailableConnections {
		u.availableConnections++
	}
	u.mu.Unlock()
}

// GetPermissions selects the permission whose Path is the longest
// ancestor of virtualPath (or equal to it); ties are broken by
// declaration order (first wins).
func GetPermissions(u *User, virtualPath string) Permission {
	virtualPath = vpath.Normalize(virtualPath)
	best := -1
	var bestPerm Permission
	for _, p := range u.Permissions {
		if !isAncestorOrSelf(p.Path, virtualPath) {
			continue
		}
		if len(p.Path) > best {
			best = len(p.Path)
			bestPerm = p
		}
	}
	return bestPerm
}

func isAncestorOrSelf(ancestor, path string) bool {
	if ancestor == "/" {
		return true
	}
	if ancestor == path {
		return true
	}
	return strings.HasPrefix(path, ancestor+"/")
}
