package fs

import (
	"context"
	"io"
	"os"
)

type OSFS struct{}

// the concrete implementation of FS backed by the local OS filesystem.
// Platform-specific details (such as file identity) are handled in build-tagged files.

func New() *OSFS {
	return &OSFS{}
}

// FromOS converts an os.FileInfo into a FileInfo for path.
func FromOS(path string, st os.FileInfo) FileInfo {
	return FileInfo{
		Path:  path,
		Size:  st.Size(),
		MTime: st.ModTime(),
		Mode:  st.Mode(),
		ID:    IDOf(st),
	}
}

func (o *OSFS) Stat(path string) (FileInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FromOS(path, st), nil
}

func (o *OSFS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (o *OSFS) CopyInto(ctx context.Context, src string, w io.Writer) (CopyResult, error) {
	return copyInto(ctx, o, src, w)
}

func (o *OSFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return renameWithRetry(ctx, oldPath, newPath)
}

func (o *OSFS) Remove(ctx context.Context, path string) error {
	return removeWithRetry(ctx, path)
}
