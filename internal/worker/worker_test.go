package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/raoulx24/backup-archiver/internal/backup"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/mailbox"
	"github.com/raoulx24/backup-archiver/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gateRunner blocks each run until released and records the modes it ran.
type gateRunner struct {
	mu      sync.Mutex
	modes   []types.Mode
	started chan struct{}
	release chan struct{}
}

func (g *gateRunner) Run(_ context.Context, mode types.Mode) backup.Outcome {
	g.started <- struct{}{}
	<-g.release
	g.mu.Lock()
	g.modes = append(g.modes, mode)
	g.mu.Unlock()
	return backup.Outcome{Kind: backup.Success, Mode: mode}
}

func TestWorkerCoalescesJobsDuringRun(t *testing.T) {
	r := &gateRunner{started: make(chan struct{}, 4), release: make(chan struct{})}
	w := New(r, mailbox.New[Job](), logging.Nop())

	finished := make(chan backup.Outcome, 4)
	w.OnDone(func(_ Job, o backup.Outcome) { finished <- o })

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()

	w.Submit(Job{Mode: types.ModeFull, Trigger: TriggerManual})
	<-r.started

	// three fires while the first run is busy collapse into the last one
	w.Submit(Job{Mode: types.ModeFull, Trigger: TriggerSchedule})
	w.Submit(Job{Mode: types.ModeFull, Trigger: TriggerSchedule})
	w.Submit(Job{Mode: types.ModeIncremental, Trigger: TriggerSchedule})

	r.release <- struct{}{}
	<-finished
	<-r.started
	r.release <- struct{}{}
	<-finished

	select {
	case <-r.started:
		t.Fatal("a third run started")
	case <-time.After(30 * time.Millisecond):
	}

	cancel()
	<-stopped

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.modes) != 2 || r.modes[0] != types.ModeFull || r.modes[1] != types.ModeIncremental {
		t.Fatalf("modes = %v", r.modes)
	}
}

func TestWorkerStopsOnCancelWhileIdle(t *testing.T) {
	w := New(&gateRunner{}, mailbox.New[Job](), logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if w.Submit(Job{}) {
		t.Fatal("Submit() accepted after stop")
	}
}
