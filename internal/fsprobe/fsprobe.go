// Package fsprobe checks whether fsnotify works reliably for a directory.
// It performs a real create+rename test to ensure events are delivered;
// network and FUSE filesystems often accept the watch and then stay silent.
package fsprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWait is how long Probe waits for the first event.
const DefaultWait = 200 * time.Millisecond

// Result reports whether fsnotify is usable and why.
type Result struct {
	FsnotifySupported bool   // true if events are delivered
	Reason            string // explanation when unsupported
}

func unsupported(format string, args ...any) Result {
	return Result{FsnotifySupported: false, Reason: fmt.Sprintf(format, args...)}
}

// Probe tests whether fsnotify reliably reports rename events in dir.
func Probe(dir string) Result {
	return ProbeWait(dir, DefaultWait)
}

// ProbeWait is Probe with an explicit wait for the event.
func ProbeWait(dir string, wait time.Duration) Result {
	st, err := os.Stat(dir)
	if err != nil {
		return unsupported("stat failed: %v", err)
	}
	if !st.IsDir() {
		return unsupported("not a directory")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return unsupported("fsnotify unavailable: %v", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return unsupported("cannot watch directory: %v", err)
	}

	f, err := os.CreateTemp(dir, ".fsprobe-*.tmp")
	if err != nil {
		return unsupported("cannot create temp file: %v", err)
	}
	tmp := f.Name()
	_ = f.Close()

	// rename tmp -> final to trigger a rename event
	final := tmp + ".final"
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return unsupported("rename failed: %v", err)
	}
	defer os.Remove(final)

	timeout := time.After(wait)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return unsupported("event channel closed")
			}
			if filepath.Dir(ev.Name) == filepath.Clean(dir) && ev.Op&(fsnotify.Rename|fsnotify.Create|fsnotify.Write) != 0 {
				return Result{FsnotifySupported: true}
			}
		case err := <-w.Errors:
			return unsupported("fsnotify error: %v", err)
		case <-timeout:
			return unsupported("no events received (rename not reported)")
		}
	}
}
