// Package vpath normalizes and resolves the POSIX-style virtual paths
// clients send over the FTP control channel.
package vpath

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize NFC-normalizes s, forces a leading "/", and strips any
// trailing "/" except on the root itself.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	if len(s) > 1 && strings.HasSuffix(s, "/") {
		s = strings.TrimRight(s, "/")
		if s == "" {
			s = "/"
		}
	}
	return s
}

// Split returns (parent, leaf) for an already-normalized absolute path.
// Split("/") is ("/", "").
func Split(p string) (parent, leaf string) {
	p = Normalize(p)
	if p == "/" {
		return "/", ""
	}
	parent = path.Dir(p)
	leaf = path.Base(p)
	return parent, leaf
}

// Join joins a parent directory and a leaf name into a normalized path.
func Join(parent, name string) string {
	if parent == "/" {
		return Normalize("/" + name)
	}
	return Normalize(parent + "/" + name)
}

// Resolve lexically resolves userInput (which may be relative or contain
// ".." segments) against cwd, clamping at "/". It never follows symlinks
// because the VFS has no notion of them. The result is always an
// absolute, normalized virtual path.
func Resolve(cwd, userInput string) string {
	if userInput == "" {
		return Normalize(cwd)
	}
	var base string
	if strings.HasPrefix(userInput, "/") {
		base = userInput
	} else {
		base = strings.TrimRight(cwd, "/") + "/" + userInput
	}
	parts := strings.Split(base, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	if len(stack) == 0 {
		return "/"
	}
	return Normalize("/" + strings.Join(stack, "/"))
}

// RealPath forms the on-disk-equivalent "real" identity of a resolved
// virtual path by joining it onto the user's base path. It is used only
// to build a stable key for operations that want a filesystem-looking
// path; the VFS itself is not backed by a real directory tree rooted at
// basePath.
func RealPath(basePath, virtual string) string {
	virtual = Normalize(virtual)
	if virtual == "/" {
		return Normalize(basePath)
	}
	return Normalize(strings.TrimRight(basePath, "/") + virtual)
}

// IsPartial reports whether name ends in the ".partial" convention
// suffix used by some clients during upload.
func IsPartial(name string) bool {
	return strings.HasSuffix(name, ".partial")
}

// HasPartialSuffix reports whether a full virtual path's leaf ends in
// ".partial".
func HasPartialSuffix(p string) bool {
	_, leaf := Split(p)
	return IsPartial(leaf)
}
