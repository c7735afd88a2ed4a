// Package watcher monitors the configuration file and reports changes so the
// daemon can reload without a restart.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/raoulx24/backup-archiver/internal/config"
	"github.com/raoulx24/backup-archiver/internal/fsprobe"
	"github.com/raoulx24/backup-archiver/internal/logging"
)

// Watcher observes one file and calls onChange when its content changes.
type Watcher struct {
	mu sync.RWMutex

	path     string
	interval time.Duration
	mode     string
	debounce time.Duration

	log logging.Logger

	lastModTime time.Time
	lastSize    int64

	onChange func()
}

// New creates a watcher for the file at path using the reload settings.
func New(path string, cfg config.ReloadConfig, log logging.Logger, onChange func()) *Watcher {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Watcher{
		path:     path,
		interval: cfg.PollInterval,
		mode:     cfg.Method,
		debounce: cfg.DebounceWindow,
		log:      log,
		onChange: onChange,
	}
}

// Start chooses the correct watching strategy based on config and blocks
// until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.prime()

	w.mu.RLock()
	mode := w.mode
	dir := filepath.Dir(w.path)
	w.mu.RUnlock()

	switch mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto", "":
		res := fsprobe.Probe(dir)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("fsnotify disabled, polling config", "reason", res.Reason)
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("unknown config reload method %q", mode)
	}
}
