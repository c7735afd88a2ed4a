// Package worker runs backup jobs one at a time from a latest-wins mailbox.
package worker

import (
	"context"
	"time"

	"github.com/raoulx24/backup-archiver/internal/backup"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/mailbox"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Runner performs one backup.
type Runner interface {
	Run(ctx context.Context, mode types.Mode) backup.Outcome
}

// Worker takes jobs from the mailbox and runs them sequentially. Requests
// arriving while a run is in progress coalesce into a single pending job.
type Worker struct {
	runner Runner
	log    logging.Logger
	mb     *mailbox.Mailbox[Job]
	done   func(Job, backup.Outcome)
}

// New creates a worker using the runner and mailbox.
func New(r Runner, mb *mailbox.Mailbox[Job], log logging.Logger) *Worker {
	log.Debug("creating worker")
	return &Worker{runner: r, log: log, mb: mb}
}

// OnDone registers fn to be called after every run, from the worker goroutine.
func (w *Worker) OnDone(fn func(Job, backup.Outcome)) *Worker {
	w.done = fn
	return w
}

// Submit queues a job, replacing any job still waiting.
func (w *Worker) Submit(j Job) bool {
	if j.RequestedAt.IsZero() {
		j.RequestedAt = time.Now()
	}
	if w.mb.HasJob() {
		w.log.Info("worker: replacing pending job", "trigger", j.Trigger)
	}
	return w.mb.Put(j)
}

// Start runs the worker loop until ctx is done or the mailbox is closed.
// A run in progress when ctx ends is passed the cancelled context and
// Start returns once it has finished.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("starting worker")
	stop := context.AfterFunc(ctx, w.mb.Close)
	defer stop()

	for {
		job, ok := w.mb.Take()
		if !ok {
			w.log.Info("worker stopped")
			return
		}
		w.log.Debug("worker: job taken", "trigger", job.Trigger, "requested", job.RequestedAt)

		out := w.runner.Run(ctx, job.Mode)
		w.log.Info("worker: run finished", "trigger", job.Trigger, "outcome", out.Kind.String(), "run", out.RunID)
		if w.done != nil {
			w.done(job, out)
		}
	}
}
