// Package lock keeps at most one backup run active on a host.
//
// The guard creates a lock artifact exclusively and holds an OS advisory
// lock on it for the lifetime of the run. An artifact that exists but is not
// locked was left behind by a process that died; it is taken over.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/gofrs/flock"

	bfs "github.com/raoulx24/backup-archiver/internal/fs"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Guard is cross-process mutual exclusion for backup runs.
type Guard interface {
	Acquire() (*Handle, error)
	Release(h *Handle) error
}

// Handle is a held guard. The zero value and nil are valid, unheld handles.
type Handle struct {
	mu   sync.Mutex
	path string
	fl   *flock.Flock
}

// Held reports whether h still holds the lock.
func (h *Handle) Held() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fl != nil
}

// FileGuard implements Guard with a lock file plus flock/LockFileEx.
type FileGuard struct {
	path string
	log  logging.Logger

	locked func() // test hook run between TryLock and the identity check
}

// NewFileGuard returns a guard over the artifact at path.
func NewFileGuard(path string, log logging.Logger) *FileGuard {
	if log == nil {
		log = logging.Nop()
	}
	return &FileGuard{path: path, log: log}
}

// Acquire takes the guard or fails fast with types.ErrLockContention.
func (g *FileGuard) Acquire() (*Handle, error) {
	created := true
	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	switch {
	case err == nil:
		_ = f.Close()
	case errors.Is(err, fs.ErrExist):
		created = false
	default:
		return nil, fmt.Errorf("creating lock file %s: %w", g.path, err)
	}

	before, statErr := os.Stat(g.path)

	fl := flock.New(g.path)
	ok, err := fl.TryLock()
	if err != nil || !ok {
		_ = fl.Close()
		if created {
			// lost a race between our create and someone else's lock
			g.log.Debug("lock: advisory lock unavailable on fresh artifact", "path", g.path)
		}
		if err != nil {
			g.log.Debug("lock: trylock failed", "path", g.path, "error", err)
		}
		return nil, fmt.Errorf("%w (lock file %s)", types.ErrLockContention, g.path)
	}

	if g.locked != nil {
		g.locked()
	}

	// A releasing holder unlinks the artifact before unlocking it. If we
	// locked that unlinked inode, someone else may hold a fresh artifact.
	if statErr != nil || !sameFile(before, g.path) {
		_ = fl.Unlock()
		_ = fl.Close()
		g.log.Debug("lock: artifact replaced while locking", "path", g.path)
		return nil, fmt.Errorf("%w (lock file %s)", types.ErrLockContention, g.path)
	}

	if !created {
		g.log.Warn("lock: taking over stale lock file", "path", g.path)
	}

	// Best effort: the PID only helps humans reading the artifact.
	_ = os.WriteFile(g.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)

	g.log.Debug("lock: acquired", "path", g.path)
	return &Handle{path: g.path, fl: fl}, nil
}

// Release removes the artifact and drops the advisory lock. Releasing a nil,
// unheld or already released handle is a no-op.
func (g *FileGuard) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fl == nil {
		return nil
	}

	// Remove while still holding the lock so a waiting process creates a
	// fresh artifact instead of locking the one being unlinked.
	rmErr := os.Remove(h.path)

	unlockErr := h.fl.Unlock()
	_ = h.fl.Close()
	h.fl = nil

	// Windows refuses to delete a file that is open; retry once it is closed.
	if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		rmErr = os.Remove(h.path)
	}
	if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		g.log.Warn("lock: removing lock file", "path", h.path, "error", rmErr)
		return fmt.Errorf("removing lock file %s: %w", h.path, rmErr)
	}
	if unlockErr != nil {
		return fmt.Errorf("unlocking %s: %w", h.path, unlockErr)
	}

	g.log.Debug("lock: released", "path", h.path)
	return nil
}

// sameFile reports whether path still names the file described by before.
// Platforms without file identity cannot unlink an open file, so the check
// passes there as long as path exists.
func sameFile(before os.FileInfo, path string) bool {
	now, err := os.Stat(path)
	if err != nil {
		return false
	}
	a, b := bfs.IDOf(before), bfs.IDOf(now)
	if !a.Known() || !b.Known() {
		return true
	}
	return a == b
}
