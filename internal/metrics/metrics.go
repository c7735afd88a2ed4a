// Package metrics records backup run statistics in a Prometheus registry and
// optionally writes them to a node_exporter textfile.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/raoulx24/backup-archiver/internal/logging"
)

// Run is what the recorder needs to know about a finished run.
type Run struct {
	Outcome  string // "success", "no_changes", "failure"
	At       time.Time
	Files    int
	Bytes    int64
	Duration time.Duration
	Pruned   int
}

type Recorder struct {
	reg      *prometheus.Registry
	textfile string
	log      logging.Logger

	runs        *prometheus.CounterVec
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	files       prometheus.Gauge
	bytes       prometheus.Gauge
	duration    prometheus.Gauge
	pruned      prometheus.Counter
}

// New creates a recorder with its own registry. textfile may be empty, in
// which case Observe only updates the registry.
func New(textfile string, log logging.Logger) *Recorder {
	r := &Recorder{
		reg:      prometheus.NewRegistry(),
		textfile: textfile,
		log:      log,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backup_runs_total",
			Help: "Backup runs by outcome.",
		}, []string{"outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backup_last_run_timestamp_seconds",
			Help: "Start time of the last backup run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backup_last_success_timestamp_seconds",
			Help: "Start time of the last run that did not fail.",
		}),
		files: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backup_last_files",
			Help: "Files written by the last run.",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backup_last_archive_bytes",
			Help: "Size of the archive written by the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backup_last_duration_seconds",
			Help: "Duration of the last run.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backup_archives_pruned_total",
			Help: "Archives deleted by retention.",
		}),
	}
	r.reg.MustRegister(r.runs, r.lastRun, r.lastSuccess, r.files, r.bytes, r.duration, r.pruned)
	for _, o := range []string{"success", "no_changes", "failure"} {
		r.runs.WithLabelValues(o)
	}
	return r
}

// Registry exposes the underlying registry, for tests and an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Observe records run and rewrites the textfile when one is configured.
func (r *Recorder) Observe(run Run) error {
	r.runs.WithLabelValues(run.Outcome).Inc()
	r.lastRun.Set(float64(run.At.Unix()))
	r.duration.Set(run.Duration.Seconds())
	if run.Outcome != "failure" {
		r.lastSuccess.Set(float64(run.At.Unix()))
		r.files.Set(float64(run.Files))
		r.bytes.Set(float64(run.Bytes))
	}
	r.pruned.Add(float64(run.Pruned))

	if r.textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.textfile), 0o755); err != nil {
		return errors.Annotate(err, "create metrics directory")
	}
	// WriteToTextfile renames a temp file into place
	if err := prometheus.WriteToTextfile(r.textfile, r.reg); err != nil {
		return errors.Annotatef(err, "write metrics textfile %s", r.textfile)
	}
	r.log.Debug("metrics: textfile written", "path", r.textfile)
	return nil
}
