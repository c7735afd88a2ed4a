//go:build windows

package fs

import "os"

// Windows does not expose POSIX inodes through os.FileInfo.
// Callers fall back to resolved paths when the identity is unknown.

// IDOf returns the zero FileID on Windows.
func IDOf(info os.FileInfo) FileID {
	_ = info
	return FileID{}
}
