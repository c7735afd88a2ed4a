// Package retention deletes the oldest archives beyond the configured count.
package retention

import (
	"context"
	"errors"
	"fmt"

	"github.com/raoulx24/backup-archiver/internal/archive"
	bfs "github.com/raoulx24/backup-archiver/internal/fs"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/types"
)

type Engine struct {
	fs  bfs.FS
	log logging.Logger
}

// New creates a retention engine. filesystem may be nil for the OS filesystem.
func New(filesystem bfs.FS, log logging.Logger) *Engine {
	if filesystem == nil {
		filesystem = bfs.New()
	}
	return &Engine{fs: filesystem, log: log}
}

// Prune keeps the keep newest archives in dir and deletes the rest, oldest
// first. keep < 1 is treated as 1. It returns the names it deleted. A failed
// deletion is logged and joined into the returned error; the remaining
// candidates are still tried.
func (e *Engine) Prune(ctx context.Context, dir string, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}

	archives, err := archive.List(dir)
	if err != nil {
		return nil, err
	}
	if len(archives) <= keep {
		e.log.Debug("retention: nothing to prune", "dir", dir, "archives", len(archives), "keep", keep)
		return nil, nil
	}

	// List is oldest first
	toDelete := archives[:len(archives)-keep]

	var deleted []string
	var errs []error
	for _, a := range toDelete {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := e.fs.Remove(ctx, a.Path); err != nil {
			e.log.Error("retention: delete failed", "archive", a.Name, "error", err)
			errs = append(errs, fmt.Errorf("%w: %s: %v", types.ErrRetentionDelete, a.Name, err))
			continue
		}
		e.log.Info("retention: deleted old backup", "archive", a.Name)
		deleted = append(deleted, a.Name)
	}

	return deleted, errors.Join(errs...)
}
