// Package types defines the values and error kinds shared by the engine packages.
package types

import (
	"strings"

	"github.com/juju/errors"
)

// Mode selects between a full and an incremental backup.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// ParseMode accepts "full" or "incremental" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFull:
		return ModeFull, nil
	case ModeIncremental:
		return ModeIncremental, nil
	}
	return "", errors.Errorf("unknown backup mode %q", s)
}

func (m Mode) String() string { return string(m) }

// Error kinds. Callers match them with errors.Is.
const (
	// ErrConfigurationInvalid: no usable source roots or bad exclusion patterns.
	ErrConfigurationInvalid = errors.ConstError("configuration invalid")

	// ErrLockContention: another backup instance holds the guard.
	ErrLockContention = errors.ConstError("another backup instance is already running")

	// ErrScanIO: a single file could not be examined during a scan.
	ErrScanIO = errors.ConstError("scan i/o error")

	// ErrArchiveWrite: a file could not be added, or the container could not be written.
	ErrArchiveWrite = errors.ConstError("archive write error")

	// ErrRetentionDelete: an archive could not be deleted while pruning.
	ErrRetentionDelete = errors.ConstError("retention delete error")

	// ErrInvalidScheduleFormat: schedule time is not HH:MM (24h).
	ErrInvalidScheduleFormat = errors.ConstError("invalid schedule format")

	// ErrCorruptArchive: an archive could not be opened or read as zip.
	ErrCorruptArchive = errors.ConstError("corrupt archive")
)

// ExitCode is the process exit status of the CLI.
type ExitCode int

const (
	ExitSuccess        ExitCode = 0
	ExitFailure        ExitCode = 1
	ExitLockContention ExitCode = 2
	ExitConfigError    ExitCode = 3
)

func (e ExitCode) Int() int { return int(e) }
