// Package backup runs one backup end to end: guard, scan, archive, prune,
// report.
package backup

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/raoulx24/backup-archiver/internal/archive"
	"github.com/raoulx24/backup-archiver/internal/config"
	bfs "github.com/raoulx24/backup-archiver/internal/fs"
	"github.com/raoulx24/backup-archiver/internal/lock"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/metrics"
	"github.com/raoulx24/backup-archiver/internal/notify"
	"github.com/raoulx24/backup-archiver/internal/progress"
	"github.com/raoulx24/backup-archiver/internal/retention"
	"github.com/raoulx24/backup-archiver/internal/scan"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Settings is the part of the configuration a run reads. It is swapped as a
// whole on reload; a run in progress keeps the copy it started with.
type Settings struct {
	Sources       []string
	BackupDir     string
	Mode          types.Mode
	MaxBackups    int
	Exclude       []string
	Symlinks      scan.SymlinkPolicy
	ProgressEvery int
	Compression   int // deflate level, 0 for the library default
}

// SettingsFrom extracts run settings from a validated config.
func SettingsFrom(cfg *config.Config) Settings {
	s := Settings{
		Sources:       append([]string(nil), cfg.Sources...),
		BackupDir:     cfg.BackupDir,
		Mode:          cfg.BackupMode(),
		MaxBackups:    cfg.MaxBackups,
		Exclude:       append([]string(nil), cfg.Exclude...),
		ProgressEvery: cfg.ProgressEvery,
		Compression:   cfg.Compression,
	}
	if !cfg.Follow() {
		s.Symlinks = scan.Skip
	}
	return s
}

type Orchestrator struct {
	mu       sync.RWMutex
	settings Settings

	guard    lock.Guard
	fs       bfs.FS
	clock    clock.Clock
	log      logging.Logger
	progress progress.Sink
	notifier notify.Notifier
	metrics  *metrics.Recorder
	newID    func() string
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithFS(f bfs.FS) Option { return func(o *Orchestrator) { o.fs = f } }

func WithProgress(s progress.Sink) Option {
	return func(o *Orchestrator) { o.progress = progress.Or(s) }
}

// WithNotifier sets who is told about finished runs. Delivery is bounded by
// timeout; a slow or failing notifier never changes the outcome.
func WithNotifier(n notify.Notifier, timeout time.Duration) Option {
	return func(o *Orchestrator) { o.notifier = notify.WithTimeout(n, timeout) }
}

func WithMetrics(m *metrics.Recorder) Option { return func(o *Orchestrator) { o.metrics = m } }

func New(s Settings, guard lock.Guard, log logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings: s,
		guard:    guard,
		fs:       bfs.New(),
		clock:    clock.WallClock,
		log:      log,
		progress: progress.Nop,
		notifier: notify.Nop,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Update replaces the settings used by subsequent runs.
func (o *Orchestrator) Update(s Settings) {
	o.mu.Lock()
	o.settings = s
	o.mu.Unlock()
	o.log.Info("backup: settings updated", "sources", len(s.Sources), "dir", s.BackupDir, "mode", s.Mode)
}

func (o *Orchestrator) Settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// Run performs one backup. An empty mode uses the configured one. Run never
// panics and never returns without releasing the guard; every problem ends
// up in the Outcome.
func (o *Orchestrator) Run(ctx context.Context, mode types.Mode) (out Outcome) {
	s := o.Settings()
	if mode == "" {
		mode = s.Mode
	}
	start := o.clock.Now()
	out = Outcome{RunID: o.newID(), Mode: mode, StartedAt: start}
	log := logging.With(o.log, "run", out.RunID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("backup: panic during run", "panic", r, "stack", string(debug.Stack()))
			out.Kind = Failure
			out.Reason = fmt.Errorf("internal error: %v", r)
		}
		out.Duration = o.clock.Now().Sub(start)
		o.report(ctx, log, out)
	}()

	o.progress.Report(fmt.Sprintf("Starting backup at %s", start.Format("2006-01-02 15:04:05")))
	log.Info("backup: starting", "mode", mode, "dir", s.BackupDir)

	h, err := o.guard.Acquire()
	if err != nil {
		return failed(out, err)
	}
	defer func() {
		if err := o.guard.Release(h); err != nil {
			log.Warn("backup: releasing guard", "error", err)
			out.Issues = append(out.Issues, err)
		}
	}()

	return o.run(ctx, log, s, out)
}

func (o *Orchestrator) run(ctx context.Context, log logging.Logger, s Settings, out Outcome) Outcome {
	roots, err := scan.ResolveRoots(s.Sources, log)
	if err != nil {
		return failed(out, err)
	}
	rules, err := scan.CompileRules(s.Exclude)
	if err != nil {
		return failed(out, err)
	}

	var cutoff time.Time
	if out.Mode == types.ModeIncremental {
		c, ok, err := archive.Cutoff(s.BackupDir)
		if err != nil {
			return failed(out, err)
		}
		if ok {
			cutoff = c
			log.Info("backup: changes since last backup", "cutoff", cutoff)
		}
	}

	scanner := scan.New(log, scan.WithProgress(o.progress), scan.WithSymlinks(s.Symlinks))
	var files []string
	for f, err := range scanner.Scan(ctx, scan.Request{
		Roots:  roots,
		Rules:  rules,
		Mode:   out.Mode,
		Cutoff: cutoff,
		Prune:  []string{s.BackupDir},
	}) {
		if err != nil {
			if ctx.Err() != nil {
				return failed(out, ctx.Err())
			}
			out.Issues = append(out.Issues, err)
			continue
		}
		files = append(files, f.Path)
	}
	log.Info("backup: scan finished", "files", len(files), "issues", len(out.Issues))

	if len(files) == 0 {
		out.Kind = NoChanges
		return out
	}

	o.progress.Report(fmt.Sprintf("Creating backup with %d files...", len(files)))
	bopts := []archive.BuilderOption{archive.WithProgress(o.progress, s.ProgressEvery)}
	if s.Compression != 0 {
		bopts = append(bopts, archive.WithLevel(s.Compression))
	}
	builder := archive.NewBuilder(o.fs, log, bopts...)
	arc, err := builder.Build(ctx, archive.BuildRequest{
		Files:     files,
		Roots:     roots,
		Dir:       s.BackupDir,
		StartedAt: out.StartedAt,
	})
	if err != nil {
		return failed(out, err)
	}
	out.Archive = arc
	out.FileCount = arc.FileCount
	for _, f := range arc.Failed {
		out.Issues = append(out.Issues, fmt.Errorf("%s: %w", f.Path, f.Err))
	}

	pruned, err := retention.New(o.fs, log).Prune(ctx, s.BackupDir, s.MaxBackups)
	out.Pruned = pruned
	if err != nil {
		out.Issues = append(out.Issues, err)
	}

	out.Kind = Success
	return out
}

func failed(out Outcome, err error) Outcome {
	out.Kind = Failure
	out.Reason = err
	return out
}

// report tells the progress sink, the metrics and the notifier how the run
// ended.
func (o *Orchestrator) report(ctx context.Context, log logging.Logger, out Outcome) {
	msg := out.Message()
	o.progress.Report(msg)

	switch out.Kind {
	case Failure:
		log.Error("backup: failed", "error", out.Reason, "duration", out.Duration)
	default:
		log.Info("backup: "+out.Kind.String(), "files", out.FileCount, "issues", len(out.Issues), "pruned", len(out.Pruned), "duration", out.Duration)
	}

	if o.metrics != nil {
		run := metrics.Run{
			Outcome:  out.Kind.String(),
			At:       out.StartedAt,
			Files:    out.FileCount,
			Duration: out.Duration,
			Pruned:   len(out.Pruned),
		}
		if out.Archive != nil {
			run.Bytes = out.Archive.Size
		}
		if err := o.metrics.Observe(run); err != nil {
			log.Warn("backup: recording metrics", "error", err)
		}
	}

	subject, body := out.Notification()
	if err := o.notifier.Notify(context.WithoutCancel(ctx), subject, body); err != nil {
		log.Warn("backup: notification failed", "error", err)
	}
}

// DeleteArchive removes one archive from the backup directory while holding
// the guard.
func (o *Orchestrator) DeleteArchive(ctx context.Context, name string) error {
	s := o.Settings()
	h, err := o.guard.Acquire()
	if err != nil {
		return err
	}
	defer o.release(h)

	if err := archive.Delete(ctx, o.fs, s.BackupDir, name); err != nil {
		return err
	}
	o.log.Info("backup: archive deleted", "archive", name)
	return nil
}

// Prune applies retention now, while holding the guard.
func (o *Orchestrator) Prune(ctx context.Context) ([]string, error) {
	s := o.Settings()
	h, err := o.guard.Acquire()
	if err != nil {
		return nil, err
	}
	defer o.release(h)

	return retention.New(o.fs, o.log).Prune(ctx, s.BackupDir, s.MaxBackups)
}

func (o *Orchestrator) release(h *lock.Handle) {
	if err := o.guard.Release(h); err != nil {
		o.log.Warn("backup: releasing guard", "error", err)
	}
}
