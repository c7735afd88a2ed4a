package main

import (
	"fmt"
	"io"
	"time"

	"github.com/raoulx24/backup-archiver/internal/backup"
	"github.com/raoulx24/backup-archiver/internal/config"
	"github.com/raoulx24/backup-archiver/internal/lock"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/metrics"
	"github.com/raoulx24/backup-archiver/internal/notify"
	"github.com/raoulx24/backup-archiver/internal/progress"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// app holds the global flags and what load builds from them.
type app struct {
	cfgPath  string
	logLevel string

	cfg *config.Config
	log *logging.ZapLogger
}

// load reads the config file and builds the logger.
func (a *app) load() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return withCode(types.ExitConfigError, fmt.Errorf("loading %s: %w", a.cfgPath, err))
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	log, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return withCode(types.ExitConfigError, fmt.Errorf("logging: %w", err))
	}

	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) close() {
	if a.log != nil {
		_ = a.log.Close()
	}
}

// orchestrator wires the engine from the loaded config. Progress lines go
// to out.
func (a *app) orchestrator(out io.Writer) *backup.Orchestrator {
	guard := lock.NewFileGuard(a.cfg.LockFile, a.log)
	return backup.New(backup.SettingsFrom(a.cfg), guard, a.log,
		backup.WithProgress(printer(out)),
		backup.WithNotifier(notifierFrom(a.cfg, a.log), a.cfg.Notify.Timeout),
		backup.WithMetrics(metrics.New(a.cfg.Metrics.Textfile, a.log)),
	)
}

func printer(out io.Writer) progress.Sink {
	return progress.Func(func(msg string) { fmt.Fprintln(out, msg) })
}

// notifierFrom builds the configured notifiers. Every outcome is also logged.
func notifierFrom(cfg *config.Config, log logging.Logger) notify.Notifier {
	n := notify.Multi{notify.Log(log)}

	e := cfg.Notify.Email
	if e.Enabled {
		loc, err := time.LoadLocation(e.Timezone)
		if err != nil {
			log.Warn("notify: unknown timezone, using UTC", "timezone", e.Timezone, "error", err)
			loc = time.UTC
		}
		n = append(n, notify.NewEmail(notify.EmailConfig{
			Server:   e.Server,
			Port:     e.Port,
			User:     e.User,
			Password: e.Password,
			From:     e.From,
			To:       notify.ParseRecipients(e.To),
			Location: loc,
		}))
	}
	return n
}
