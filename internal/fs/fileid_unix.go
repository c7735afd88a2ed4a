//go:build unix

package fs

import (
	"os"
	"syscall"
)

// fileid_unix.go extracts device and inode numbers from syscall.Stat_t.
// They detect symlink cycles during scans and files replaced mid-copy.

// IDOf returns the identity of the file described by info.
func IDOf(info os.FileInfo) FileID {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return FileID{}
	}
	return FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
}
