// Package fs defines the filesystem abstraction used by the backup engine.
// It provides the FS interface, the FileInfo type shared across the system,
// and retrying wrappers for the operations that mutate the backup directory.
package fs

import (
	"context"
	"io"
	"os"
	"time"
)

type FileInfo struct {
	Path  string
	Size  int64
	MTime time.Time
	Mode  os.FileMode
	ID    FileID
}

// FileID identifies a file independently of the path used to reach it.
// The zero value means the platform could not tell.
type FileID struct {
	Dev uint64
	Ino uint64
}

func (id FileID) Known() bool { return id != FileID{} }

// CopyResult describes one CopyInto call.
type CopyResult struct {
	Bytes   int64
	Before  FileInfo
	Changed bool // size, mtime or identity differed after the read
}

type FS interface {
	Stat(path string) (FileInfo, error)
	CopyInto(ctx context.Context, src string, w io.Writer) (CopyResult, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	Remove(ctx context.Context, path string) error
	MkdirAll(path string) error
}
