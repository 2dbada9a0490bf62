package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserSynthesizesHomeAndRoot(t *testing.T) {
	u := NewUser("alice", "secret", nil)
	assert.Equal(t, "/alice", u.HomePath)

	home := GetPermissions(u, "/alice/docs")
	assert.True(t, home.Readable)
	assert.True(t, home.Writable)

	root := GetPermissions(u, "/other")
	assert.True(t, root.Readable)
	assert.False(t, root.Writable)
}

func TestNewUserRespectsDeclaredRoot(t *testing.T) {
	u := NewUser("bob", "pw", []Permission{{Path: "/", Readable: true, Writable: true}})
	root := GetPermissions(u, "/anywhere")
	assert.True(t, root.Writable)
}

func TestGetPermissionsLongestPrefixWins(t *testing.T) {
	u := NewUser("carol", "pw", []Permission{
		{Path: "/carol/shared", Readable: true, Writable: false},
	})
	shared := GetPermissions(u, "/carol/shared/file.txt")
	assert.False(t, shared.Writable)

	elsewhere := GetPermissions(u, "/carol/private/file.txt")
	assert.True(t, elsewhere.Writable)
}

func TestDirectoryGetUserQuota(t *testing.T) {
	u := NewUser("dave", "pw", nil)
	u.availableConnections = 1
	dir := NewDirectory([]*User{u})

	state, got, _ := dir.GetUser("dave")
	require.Equal(t, PasswordRequired, state)
	assert.Same(t, u, got)

	state, _, msg := dir.GetUser("dave")
	assert.Equal(t, StateError, state)
	assert.NotEmpty(t, msg)

	NotifyLogout(u)
	state, _, _ = dir.GetUser("dave")
	assert.Equal(t, PasswordRequired, state)
}

func TestDirectoryGetUserUnknown(t *testing.T) {
	dir := NewDirectory(nil)
	state, got, msg := dir.GetUser("nobody")
	assert.Equal(t, StateError, state)
	assert.Nil(t, got)
	assert.NotEmpty(t, msg)
}

func TestAuthenticate(t *testing.T) {
	u := NewUser("erin", "correct-horse", nil)
	assert.True(t, Authenticate(u, "correct-horse"))
	assert.False(t, Authenticate(u, "wrong"))
}
