// Package vfsmodel defines the document shapes shared by the metadata
// store adapter, the write-through cache, and the VFS layer (spec §3).
package vfsmodel

import "time"

// NodeType distinguishes a directory entry from a file entry.
type NodeType string

const (
	TypeDir  NodeType = "dir"
	TypeFile NodeType = "file"
)

// FileStatus is only meaningful for TypeFile nodes.
type FileStatus string

const (
	StatusStaging   FileStatus = "staging"
	StatusCompleted FileStatus = "completed"
)

// ChunkRef identifies one fixed-size slice of a completed file's bytes
// as it was pushed to the blob backend.
type ChunkRef struct {
	PartID    uint32 `bson:"part_id" json:"part_id"`
	BlobID    string `bson:"blob_id" json:"blob_id"`
	BlobMsgID uint64 `bson:"blob_msg_id" json:"blob_msg_id"`
	Size      uint32 `bson:"size" json:"size"`
	ChunkName string `bson:"chunk_name" json:"chunk_name"`
}

// Node is one VFS entry: a directory or a file, addressed by
// (Parent, Name). Exactly one of LocalPath, Parts is non-empty for a
// completed file; both may coexist transiently while a chunked upload
// is in flight, until the worker's atomic swap (spec §3, I4).
type Node struct {
	ID     any      `bson:"_id,omitempty" json:"-"`
	Type   NodeType `bson:"type" json:"type"`
	Name   string   `bson:"name" json:"name"`
	Parent string   `bson:"parent" json:"parent"`

	CTime int64 `bson:"ctime" json:"ctime"`
	MTime int64 `bson:"mtime" json:"mtime"`
	Size  int64 `bson:"size" json:"size"`

	LocalPath string     `bson:"local_path,omitempty" json:"local_path,omitempty"`
	Parts     []ChunkRef `bson:"parts,omitempty" json:"parts,omitempty"`

	Status      FileStatus `bson:"status,omitempty" json:"status,omitempty"`
	UploadedAt  int64      `bson:"uploaded_at,omitempty" json:"uploaded_at,omitempty"`
	ObfuscatedID string    `bson:"obfuscated_id,omitempty" json:"obfuscated_id,omitempty"`
}

// Path is the full virtual path this node resolves to.
func (n *Node) Path() string {
	if n.Parent == "/" {
		return "/" + n.Name
	}
	return n.Parent + "/" + n.Name
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.Type == TypeDir }

// IsFile reports whether the node is a file.
func (n *Node) IsFile() bool { return n.Type == TypeFile }

// NewDir builds an in-memory directory node with timestamps set to now.
func NewDir(parent, name string) *Node {
	now := time.Now().Unix()
	return &Node{Type: TypeDir, Name: name, Parent: parent, CTime: now, MTime: now}
}

// NewEmptyFile builds an in-memory file node ready to receive bytes,
// with size 0 and no parts, as produced by VFS open(path, "wb").
func NewEmptyFile(parent, name string) *Node {
	now := time.Now().Unix()
	return &Node{Type: TypeFile, Name: name, Parent: parent, CTime: now, MTime: now, Parts: []ChunkRef{}}
}

// RootNode is the synthetic node returned for "/" or ".".
func RootNode() *Node {
	return &Node{Type: TypeDir, Name: "", Parent: "/"}
}

// SumPartsSize sums the declared size of every chunk, used to enforce
// invariant I4 (sum(parts[i].size) == node.size for completed files).
func SumPartsSize(parts []ChunkRef) int64 {
	var total int64
	for _, p := range parts {
		total += int64(p.Size)
	}
	return total
}
