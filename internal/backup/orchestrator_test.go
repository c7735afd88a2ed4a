package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"go.uber.org/goleak"

	"github.com/raoulx24/backup-archiver/internal/archive"
	"github.com/raoulx24/backup-archiver/internal/config"
	bfs "github.com/raoulx24/backup-archiver/internal/fs"
	"github.com/raoulx24/backup-archiver/internal/lock"
	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/metrics"
	"github.com/raoulx24/backup-archiver/internal/notify"
	"github.com/raoulx24/backup-archiver/internal/progress"
	"github.com/raoulx24/backup-archiver/internal/scan"
	"github.com/raoulx24/backup-archiver/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)

type env struct {
	base  string
	roots []string
	dest  string
	guard *lock.FileGuard
	clock *testclock.Clock
}

func newEnv(t *testing.T, roots ...string) *env {
	t.Helper()
	base := t.TempDir()
	e := &env{
		base:  base,
		dest:  filepath.Join(base, "backups"),
		guard: lock.NewFileGuard(filepath.Join(base, "backup.lock"), logging.Nop()),
		clock: testclock.NewClock(t0),
	}
	for _, r := range roots {
		p := filepath.Join(base, r)
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
		e.roots = append(e.roots, p)
	}
	return e
}

func (e *env) settings(mode types.Mode, keep int, exclude ...string) Settings {
	return Settings{
		Sources:       e.roots,
		BackupDir:     e.dest,
		Mode:          mode,
		MaxBackups:    keep,
		Exclude:       exclude,
		ProgressEvery: 100,
	}
}

func (e *env) write(t *testing.T, rel string, mtime time.Time) string {
	t.Helper()
	p := filepath.Join(e.base, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(rel), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return p
}

func entries(t *testing.T, arc *archive.Archive) []string {
	t.Helper()
	list, err := archive.NewInspector(logging.Nop()).List(arc.Path)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range list {
		out = append(out, e.Path)
	}
	slices.Sort(out)
	return out
}

func TestIncrementalIncludesOnlyFilesNewerThanLastArchive(t *testing.T) {
	e := newEnv(t, "src")
	old := t0.Add(-24 * time.Hour)
	e.write(t, "src/unchanged.txt", old)
	e.write(t, "src/docs/edited.txt", old)

	o := New(e.settings(types.ModeIncremental, 5), e.guard, logging.Nop(), WithClock(e.clock))

	first := o.Run(context.Background(), types.ModeFull)
	if first.Kind != Success || first.Archive.Name != "backup_20240301_100000.zip" {
		t.Fatalf("first run = %+v", first)
	}
	if got := entries(t, first.Archive); !slices.Equal(got, []string{"docs/edited.txt", "unchanged.txt"}) {
		t.Fatalf("full archive = %v", got)
	}

	e.write(t, "src/docs/edited.txt", t0.Add(30*time.Minute))
	e.write(t, "src/new.txt", t0.Add(45*time.Minute))
	e.write(t, "src/same-second.txt", t0)
	e.clock.Advance(time.Hour)

	second := o.Run(context.Background(), "")
	if second.Kind != Success || second.Mode != types.ModeIncremental {
		t.Fatalf("second run = %+v", second)
	}
	if second.Archive.Name != "backup_20240301_110000.zip" {
		t.Fatalf("second archive = %s", second.Archive.Name)
	}
	if got := entries(t, second.Archive); !slices.Equal(got, []string{"docs/edited.txt", "new.txt"}) {
		t.Fatalf("incremental archive = %v", got)
	}
}

func TestExcludedFilesNeverArchived(t *testing.T) {
	e := newEnv(t, "a", "b")
	e.write(t, "a/keep.txt", t0)
	e.write(t, "a/sub/scratch.TMP", t0)
	e.write(t, "b/report.doc", t0)
	e.write(t, "b/Thumbs.db", t0)
	e.write(t, "b/tmp/inside-tmp-dir.txt", t0)

	o := New(e.settings(types.ModeFull, 5, "*.tmp", "thumbs.db"), e.guard, logging.Nop(), WithClock(e.clock))
	out := o.Run(context.Background(), "")
	if out.Kind != Success {
		t.Fatalf("Run() = %+v", out)
	}
	want := []string{"keep.txt", "report.doc", "tmp/inside-tmp-dir.txt"}
	if got := entries(t, out.Archive); !slices.Equal(got, want) {
		t.Fatalf("archive = %v, want %v", got, want)
	}
}

func TestRetentionKeepsNewestAfterManyRuns(t *testing.T) {
	e := newEnv(t, "src")
	o := New(e.settings(types.ModeFull, 2), e.guard, logging.Nop(), WithClock(e.clock))

	var names []string
	for i := 0; i < 5; i++ {
		e.write(t, "src/f.txt", e.clock.Now())
		out := o.Run(context.Background(), "")
		if out.Kind != Success {
			t.Fatalf("run %d = %+v", i, out)
		}
		names = append(names, out.Archive.Name)
		e.clock.Advance(time.Minute)
	}

	all, err := archive.List(e.dest)
	if err != nil {
		t.Fatal(err)
	}
	var left []string
	for _, a := range all {
		left = append(left, a.Name)
	}
	if !slices.Equal(left, names[3:]) {
		t.Fatalf("remaining = %v, want %v", left, names[3:])
	}
}

func TestNoChangesWritesNothingAndKeepsArchives(t *testing.T) {
	e := newEnv(t, "src")
	if err := os.MkdirAll(e.dest, 0o755); err != nil {
		t.Fatal(err)
	}
	// more archives than retention allows; a no-op run must not prune
	seeded := []string{"backup_20240101_000000.zip", "backup_20240102_000000.zip", "backup_20240201_000000.zip"}
	for _, n := range seeded {
		if err := os.WriteFile(filepath.Join(e.dest, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e.write(t, "src/old.txt", time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local))

	var msgs []string
	o := New(e.settings(types.ModeIncremental, 1), e.guard, logging.Nop(),
		WithClock(e.clock),
		WithProgress(progress.Func(func(m string) { msgs = append(msgs, m) })))

	out := o.Run(context.Background(), "")
	if out.Kind != NoChanges || out.ExitCode() != types.ExitSuccess {
		t.Fatalf("Run() = %+v", out)
	}
	if msgs[len(msgs)-1] != "No new files to backup" {
		t.Fatalf("progress = %q", msgs)
	}
	all, _ := archive.List(e.dest)
	if len(all) != len(seeded) {
		t.Fatalf("archives = %+v", all)
	}
}

func TestLockContentionIsAFailureNotACrash(t *testing.T) {
	e := newEnv(t, "src")
	e.write(t, "src/f.txt", t0)

	h, err := e.guard.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer e.guard.Release(h)

	o := New(e.settings(types.ModeFull, 5), e.guard, logging.Nop(), WithClock(e.clock))
	out := o.Run(context.Background(), "")
	if out.Kind != Failure || !errors.Is(out.Reason, types.ErrLockContention) {
		t.Fatalf("Run() = %+v", out)
	}
	if out.ExitCode() != types.ExitLockContention {
		t.Fatalf("ExitCode() = %d", out.ExitCode())
	}
	if _, err := os.Stat(e.dest); !os.IsNotExist(err) {
		t.Fatalf("backup dir touched without the guard: %v", err)
	}
}

func TestNotifierFailureDoesNotChangeOutcome(t *testing.T) {
	e := newEnv(t, "src")
	e.write(t, "src/f.txt", t0)

	var subjects []string
	n := notify.Func(func(_ context.Context, subject, _ string) error {
		subjects = append(subjects, subject)
		return errors.New("smtp: connection refused")
	})
	o := New(e.settings(types.ModeFull, 5), e.guard, logging.Nop(), WithClock(e.clock), WithNotifier(n, time.Second))

	out := o.Run(context.Background(), "")
	if out.Kind != Success {
		t.Fatalf("Run() = %+v", out)
	}
	if len(subjects) != 1 || subjects[0] != "Backup Success - backup_20240301_100000" {
		t.Fatalf("subjects = %q", subjects)
	}
}

type panickyFS struct{ bfs.FS }

func (panickyFS) CopyInto(context.Context, string, io.Writer) (bfs.CopyResult, error) {
	panic("disk on fire")
}

func TestPanicBecomesFailureAndReleasesGuard(t *testing.T) {
	e := newEnv(t, "src")
	e.write(t, "src/f.txt", t0)

	var body string
	n := notify.Func(func(_ context.Context, _, b string) error { body = b; return nil })
	o := New(e.settings(types.ModeFull, 5), e.guard, logging.Nop(),
		WithClock(e.clock), WithFS(panickyFS{bfs.New()}), WithNotifier(n, time.Second))

	out := o.Run(context.Background(), "")
	if out.Kind != Failure || !strings.Contains(out.Reason.Error(), "disk on fire") {
		t.Fatalf("Run() = %+v", out)
	}
	if !strings.Contains(body, "disk on fire") {
		t.Fatalf("notification body = %q", body)
	}

	h, err := e.guard.Acquire()
	if err != nil {
		t.Fatalf("guard still held after panic: %v", err)
	}
	_ = e.guard.Release(h)
}

func TestRunReportsProgressInOrder(t *testing.T) {
	e := newEnv(t, "src")
	e.write(t, "src/a.txt", t0)
	e.write(t, "src/b.txt", t0)

	var msgs []string
	o := New(e.settings(types.ModeFull, 5), e.guard, logging.Nop(),
		WithClock(e.clock), WithProgress(progress.Func(func(m string) { msgs = append(msgs, m) })))
	if out := o.Run(context.Background(), ""); out.Kind != Success {
		t.Fatalf("Run() = %+v", out)
	}

	want := []string{
		"Starting backup at 2024-03-01 10:00:00",
		"Scanning " + e.roots[0] + "...",
		"Creating backup with 2 files...",
		"Created backup: backup_20240301_100000.zip (2 files)",
		"Backup completed: backup_20240301_100000.zip (2 files, 0.0s)",
	}
	if !slices.Equal(msgs, want) {
		t.Fatalf("progress =\n%q\nwant\n%q", msgs, want)
	}
}

func TestNoValidSourcesFails(t *testing.T) {
	e := newEnv(t)
	e.roots = []string{filepath.Join(e.base, "missing")}
	o := New(e.settings(types.ModeFull, 5), e.guard, logging.Nop(), WithClock(e.clock))
	out := o.Run(context.Background(), "")
	if out.Kind != Failure || !errors.Is(out.Reason, types.ErrConfigurationInvalid) {
		t.Fatalf("Run() = %+v", out)
	}
	if out.ExitCode() != types.ExitConfigError {
		t.Fatalf("ExitCode() = %d, want %d", out.ExitCode(), types.ExitConfigError)
	}
}

func TestMetricsRecordedAfterRun(t *testing.T) {
	e := newEnv(t, "src")
	e.write(t, "src/a.txt", t0)
	textfile := filepath.Join(e.base, "metrics", "backup.prom")

	o := New(e.settings(types.ModeFull, 5), e.guard, logging.Nop(),
		WithClock(e.clock), WithMetrics(metrics.New(textfile, logging.Nop())))
	o.Run(context.Background(), "")

	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `backup_runs_total{outcome="success"} 1`) || !strings.Contains(string(data), "backup_last_files 1") {
		t.Fatalf("textfile:\n%s", data)
	}
}

func TestDeleteArchiveAndPrune(t *testing.T) {
	e := newEnv(t, "src")
	o := New(e.settings(types.ModeFull, 1), e.guard, logging.Nop(), WithClock(e.clock))
	if err := os.MkdirAll(e.dest, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{"backup_20240101_000000.zip", "backup_20240102_000000.zip", "backup_20240103_000000.zip"} {
		if err := os.WriteFile(filepath.Join(e.dest, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := o.DeleteArchive(context.Background(), "../backup.lock"); err == nil {
		t.Fatal("DeleteArchive() accepted a path outside the backup dir")
	}
	if err := o.DeleteArchive(context.Background(), "backup_20240102_000000.zip"); err != nil {
		t.Fatalf("DeleteArchive() error = %v", err)
	}

	pruned, err := o.Prune(context.Background())
	if err != nil || !slices.Equal(pruned, []string{"backup_20240101_000000.zip"}) {
		t.Fatalf("Prune() = %v, %v", pruned, err)
	}
	all, _ := archive.List(e.dest)
	if len(all) != 1 || all[0].Name != "backup_20240103_000000.zip" {
		t.Fatalf("remaining = %+v", all)
	}
}

func TestSettingsSwap(t *testing.T) {
	e := newEnv(t, "src")
	o := New(e.settings(types.ModeFull, 5), e.guard, logging.Nop())
	next := e.settings(types.ModeIncremental, 3)
	o.Update(next)
	if got := o.Settings(); got.Mode != types.ModeIncremental || got.MaxBackups != 3 {
		t.Fatalf("Settings() = %+v", got)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("sources: [/data]\nmode: full\ncompressionLevel: 9\nfollowSymlinks: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	s := SettingsFrom(cfg)
	if s.Mode != types.ModeFull || s.Compression != 9 || s.Symlinks != scan.Skip || s.MaxBackups != 5 {
		t.Fatalf("SettingsFrom() = %+v", s)
	}

	e := newEnv(t, "src")
	e.write(t, "src/a.txt", t0.Add(-time.Hour))
	st := e.settings(types.ModeFull, 5)
	st.Compression = 1
	out := New(st, e.guard, logging.Nop(), WithClock(e.clock)).Run(context.Background(), "")
	if out.Kind != Success {
		t.Fatalf("Run() with compression 1 = %+v", out)
	}
}
