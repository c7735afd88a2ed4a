package watcher

import (
	"github.com/raoulx24/backup-archiver/internal/config"
)

// UpdateConfig updates watcher fields atomically for hot-reload. Method and
// poll interval apply from the next Start; the watched path never changes.
func (w *Watcher) UpdateConfig(cfg config.ReloadConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.interval = cfg.PollInterval
	w.mode = cfg.Method
	w.debounce = cfg.DebounceWindow
}
