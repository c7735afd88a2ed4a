package backup

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/raoulx24/backup-archiver/internal/archive"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Kind is how a run ended.
type Kind int

const (
	Success Kind = iota
	NoChanges
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case NoChanges:
		return "no_changes"
	default:
		return "failure"
	}
}

// Outcome is the result of one Run.
type Outcome struct {
	Kind      Kind
	RunID     string
	Mode      types.Mode
	StartedAt time.Time
	Duration  time.Duration

	Archive   *archive.Archive // Success only
	FileCount int
	Pruned    []string

	// Reason is why the run failed.
	Reason error
	// Issues are problems that did not fail the run: files that could not
	// be scanned or read, archives retention could not delete.
	Issues []error
}

// ExitCode maps the outcome to the CLI exit status.
func (o Outcome) ExitCode() types.ExitCode {
	switch {
	case o.Kind != Failure:
		return types.ExitSuccess
	case errors.Is(o.Reason, types.ErrLockContention):
		return types.ExitLockContention
	case errors.Is(o.Reason, types.ErrConfigurationInvalid):
		return types.ExitConfigError
	default:
		return types.ExitFailure
	}
}

// Message is the one line summary reported to the progress sink.
func (o Outcome) Message() string {
	switch o.Kind {
	case Success:
		return fmt.Sprintf("Backup completed: %s (%d files, %.1fs)", o.Archive.Name, o.FileCount, o.Duration.Seconds())
	case NoChanges:
		if o.Mode == types.ModeIncremental {
			return "No new files to backup"
		}
		return "No files to backup"
	default:
		return fmt.Sprintf("Backup failed: %v", o.Reason)
	}
}

// Notification returns the subject and body sent to the notifier.
func (o Outcome) Notification() (subject, body string) {
	var b strings.Builder
	switch o.Kind {
	case Success:
		subject = "Backup Success - " + strings.TrimSuffix(o.Archive.Name, archive.Ext)
		b.WriteString("Backup completed successfully\n\n")
		fmt.Fprintf(&b, "Files: %d\n", o.FileCount)
		fmt.Fprintf(&b, "Size: %s\n", humanize.Bytes(uint64(o.Archive.Size)))
		fmt.Fprintf(&b, "Duration: %.1f seconds\n", o.Duration.Seconds())
		fmt.Fprintf(&b, "Location: %s\n", o.Archive.Path)
		if len(o.Pruned) > 0 {
			fmt.Fprintf(&b, "Old backups removed: %d\n", len(o.Pruned))
		}
	case NoChanges:
		subject = "Backup - nothing to do"
		b.WriteString(o.Message() + "\n")
	default:
		subject = "Backup Failed"
		fmt.Fprintf(&b, "%v\n", o.Reason)
	}

	fmt.Fprintf(&b, "\nMode: %s\nStarted: %s\nRun: %s\n", o.Mode, o.StartedAt.Format("2006-01-02 15:04:05"), o.RunID)
	if len(o.Issues) > 0 {
		fmt.Fprintf(&b, "\n%d issue(s):\n", len(o.Issues))
		for _, err := range o.Issues {
			fmt.Fprintf(&b, "- %v\n", err)
		}
	}
	return subject, b.String()
}
