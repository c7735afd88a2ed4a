package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raoulx24/backup-archiver/internal/backup"
	"github.com/raoulx24/backup-archiver/internal/config"
	"github.com/raoulx24/backup-archiver/internal/mailbox"
	"github.com/raoulx24/backup-archiver/internal/schedule"
	"github.com/raoulx24/backup-archiver/internal/types"
	"github.com/raoulx24/backup-archiver/internal/watcher"
	"github.com/raoulx24/backup-archiver/internal/worker"
)

func scheduleCmd(a *app) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run a backup every day at the configured time",
		Long: `Stays in the foreground and starts a backup every day at the time set by
"schedule" (HH:MM, 24h, local time). SIGHUP or an edit of the config file
reloads sources, exclusions, retention and the schedule time.
SIGINT or SIGTERM stops the scheduler, cancels a running backup and waits
for it to wind down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			return a.daemon(cmd.Context(), runNow)
		},
	}

	cmd.Flags().BoolVar(&runNow, "now", false, "Also run one backup right away")
	return cmd
}

// daemon wires scheduler, worker and config watcher and blocks until a
// termination signal arrives.
func (a *app) daemon(parent context.Context, runNow bool) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch := a.orchestrator(os.Stdout)

	// mailbox for backup jobs; bursts of triggers coalesce
	mb := mailbox.New[worker.Job]()
	w := worker.New(orch, mb, a.log).OnDone(func(j worker.Job, out backup.Outcome) {
		a.log.Debug("schedule: job done", "trigger", j.Trigger, "outcome", out.Kind.String())
	})

	sched := schedule.New(func() {
		w.Submit(worker.Job{Trigger: worker.TriggerSchedule})
	}, a.log)
	if err := sched.Arm(a.cfg.Schedule); err != nil {
		return withCode(types.ExitConfigError, err)
	}
	a.printNext(sched)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Start(ctx)
	}()

	if runNow {
		w.Submit(worker.Job{Trigger: worker.TriggerManual})
	}

	var (
		mu    sync.Mutex
		watch *watcher.Watcher
	)
	reload := func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		a.reload(reason, orch, sched)
		if watch != nil {
			watch.UpdateConfig(a.cfg.ConfigReload)
		}
	}

	if a.cfg.ConfigReload.Enabled {
		watch = watcher.New(a.cfgPath, a.cfg.ConfigReload, a.log, func() { reload("file changed") })
		go func() {
			if err := watch.Start(ctx); err != nil {
				a.log.Error("config watcher stopped", "error", err)
			}
		}()
	}

	// Hot reload on SIGHUP
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			reload("SIGHUP")
		case <-ctx.Done():
			a.log.Info("shutting down...")
			<-sched.Disarm().Done()
			<-workerDone
			a.log.Info("exit complete")
			return nil
		}
	}
}

// reload applies a freshly loaded config. A config that fails to load or
// carries a bad schedule leaves the running settings untouched.
func (a *app) reload(reason string, orch *backup.Orchestrator, sched *schedule.Scheduler) {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		a.log.Error("config reload failed", "reason", reason, "error", err)
		return
	}

	spec, err := schedule.ParseSpec(cfg.Schedule)
	if err != nil {
		a.log.Error("config reload failed", "reason", reason, "error", err)
		return
	}

	orch.Update(backup.SettingsFrom(cfg))
	if cur, ok := sched.Spec(); !ok || cur != spec {
		if err := sched.Arm(cfg.Schedule); err != nil {
			a.log.Error("re-arming schedule", "error", err)
		} else {
			a.printNext(sched)
		}
	}

	a.cfg = cfg
	a.log.Info("config reloaded", "reason", reason)
}

func (a *app) printNext(sched *schedule.Scheduler) {
	next, ok := sched.Next()
	if !ok {
		return
	}
	fmt.Printf("Next backup at %s (%s)\n", next.Format("2006-01-02 15:04"), humanize.Time(next))
	a.log.Info("next backup", "at", next.Format(time.RFC3339))
}
