package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"foo", "/foo"},
		{"/foo/", "/foo"},
		{"/foo/bar/", "/foo/bar"},
	} {
		assert.Equal(t, test.want, Normalize(test.in), test.in)
	}
}

func TestSplit(t *testing.T) {
	for _, test := range []struct {
		in         string
		wantParent string
		wantLeaf   string
	}{
		{"/", "/", ""},
		{"/foo", "/", "foo"},
		{"/foo/bar", "/foo", "bar"},
	} {
		parent, leaf := Split(test.in)
		assert.Equal(t, test.wantParent, parent, test.in)
		assert.Equal(t, test.wantLeaf, leaf, test.in)
	}
}

func TestResolve(t *testing.T) {
	for _, test := range []struct {
		cwd   string
		input string
		want  string
	}{
		{"/", "", "/"},
		{"/a/b", "", "/a/b"},
		{"/a/b", "..", "/a"},
		{"/a/b", "../..", "/"},
		{"/a/b", "../../../../..", "/"},
		{"/a", "/x/y", "/x/y"},
		{"/a/b", "c", "/a/b/c"},
		{"/a/b", "./c", "/a/b/c"},
		{"/", "/foo/../bar", "/bar"},
	} {
		assert.Equal(t, test.want, Resolve(test.cwd, test.input), "%s vs %s", test.cwd, test.input)
	}
}

func TestIsPartial(t *testing.T) {
	assert.True(t, IsPartial("foo.partial"))
	assert.False(t, IsPartial("foo"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/a/b", Join("/a", "b"))
	assert.Equal(t, "/b", Join("/", "b"))
}
