package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"
)

// wraps os.Rename and os.Remove with retry logic.
// Rename finalizes archives atomically; Remove is used by retention and
// explicit deletes, where a file held briefly by a scanner or AV is common.

func renameWithRetry(ctx context.Context, oldPath, newPath string) error {
	return retry(ctx, "rename", func() error {
		return os.Rename(oldPath, newPath)
	})
}

func removeWithRetry(ctx context.Context, path string) error {
	return retry(ctx, "remove", func() error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}
