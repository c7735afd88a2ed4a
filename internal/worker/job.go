package worker

import (
	"time"

	"github.com/raoulx24/backup-archiver/internal/types"
)

// Trigger says what asked for a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Job represents a backup run request submitted to the worker.
type Job struct {
	Mode        types.Mode // empty: the configured mode
	Trigger     Trigger
	RequestedAt time.Time
}
