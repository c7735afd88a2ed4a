package watcher

import (
	"os"
)

// prime records the current state of the file so only later edits count.
func (w *Watcher) prime() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
	}
}

// detect calls onChange if the file's mtime or size moved since last seen.
// A missing file is ignored; editors that replace files briefly remove them.
func (w *Watcher) detect() {
	w.mu.RLock()
	path := w.path
	lastMod := w.lastModTime
	lastSize := w.lastSize
	w.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		w.log.Debug("config file not readable", "path", path, "error", err)
		return
	}
	if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
		return
	}

	w.mu.Lock()
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	w.mu.Unlock()

	w.log.Info("config file changed", "path", path)
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("config reload panic", "panic", r)
		}
	}()
	w.onChange()
}
