package watcher

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/raoulx24/backup-archiver/internal/config"
	"github.com/raoulx24/backup-archiver/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeConfig(t *testing.T, p, content string) {
	t.Helper()
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, n *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for n.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("onChange called %d times, want %d", n.Load(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func run(t *testing.T, w *Watcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	return func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Start() error = %v", err)
		}
	}
}

func TestPollDetectsChange(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, p, "mode: full\n")

	var calls atomic.Int32
	w := New(p, config.ReloadConfig{Method: "poll", PollInterval: 10 * time.Millisecond}, logging.Nop(), func() { calls.Add(1) })
	stop := run(t, w)
	defer stop()

	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("onChange called for an unchanged file")
	}

	writeConfig(t, p, "mode: incremental\n")
	waitFor(t, &calls, 1)
}

func TestFsnotifyDebouncesBursts(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on inotify")
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	writeConfig(t, p, "a")

	var calls atomic.Int32
	w := New(p, config.ReloadConfig{Method: "fsnotify", DebounceWindow: 200 * time.Millisecond}, logging.Nop(), func() { calls.Add(1) })
	stop := run(t, w)
	defer stop()
	// let the watch get registered
	time.Sleep(100 * time.Millisecond)

	// unrelated files in the same directory are ignored
	writeConfig(t, filepath.Join(dir, "other.yaml"), "x")
	for i := 1; i <= 3; i++ {
		writeConfig(t, p, strings.Repeat("b", i+1))
	}

	waitFor(t, &calls, 1)
	time.Sleep(400 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("onChange called %d times, want 1", got)
	}
}

func TestUnknownMethod(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "c.yaml"), config.ReloadConfig{Method: "carrier-pigeon"}, logging.Nop(), func() {})
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("Start() accepted an unknown method")
	}
}

func TestPanickingCallbackIsContained(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, p, "1")

	var calls atomic.Int32
	w := New(p, config.ReloadConfig{Method: "poll", PollInterval: 10 * time.Millisecond}, logging.Nop(), func() {
		calls.Add(1)
		panic("bad reload")
	})
	stop := run(t, w)
	defer stop()

	writeConfig(t, p, "22")
	waitFor(t, &calls, 1)
	writeConfig(t, p, "333")
	waitFor(t, &calls, 2)
}
