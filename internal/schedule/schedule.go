// Package schedule fires a callback once a day at a configured local time.
package schedule

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raoulx24/backup-archiver/internal/logging"
	"github.com/raoulx24/backup-archiver/internal/types"
)

// Spec is a time of day, 24h.
type Spec struct {
	Hour   int
	Minute int
}

var specPattern = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})$`)

// ParseSpec parses "HH:MM". Single digit hours and minutes are accepted.
func ParseSpec(s string) (Spec, error) {
	m := specPattern.FindStringSubmatch(s)
	if m == nil {
		return Spec{}, fmt.Errorf("%w: %q", types.ErrInvalidScheduleFormat, s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return Spec{}, fmt.Errorf("%w: %q out of range", types.ErrInvalidScheduleFormat, s)
	}
	return Spec{Hour: h, Minute: mm}, nil
}

func (s Spec) String() string { return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute) }

// CronExpr is the five field cron expression firing daily at s.
func (s Spec) CronExpr() string { return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour) }

type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Scheduler owns at most one daily schedule at a time.
type Scheduler struct {
	mu   sync.Mutex
	fire func()
	log  logging.Logger
	loc  *time.Location

	c    *cron.Cron
	id   cron.EntryID
	spec Spec
}

type Option func(*Scheduler)

// WithLocation sets the zone fire times are computed in. Default time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.loc = loc }
}

// New returns an idle scheduler that calls fire at every scheduled instant.
// Fires never overlap: one arriving while the previous call is still
// running is dropped. A panic in fire is logged and swallowed.
func New(fire func(), log logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{fire: fire, log: log, loc: time.Local}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Arm validates spec and starts firing daily at it, replacing any previous
// schedule. The previous loop is stopped before the new one starts.
func (s *Scheduler) Arm(spec string) error {
	sp, err := ParseSpec(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}

	cl := logging.CronLogger{L: s.log}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := c.AddFunc(sp.CronExpr(), s.fire)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidScheduleFormat, err)
	}
	c.Start()

	s.c, s.id, s.spec = c, id, sp
	s.log.Info("schedule: armed", "at", sp.String(), "next", c.Entry(id).Next)
	return nil
}

// Disarm stops the schedule. The returned context is done once a fire that
// was already running has returned. Disarming an idle scheduler returns a
// done context.
func (s *Scheduler) Disarm() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.c.Stop()
	s.c = nil
	s.log.Info("schedule: disarmed")
	return ctx
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return Idle
	}
	return Armed
}

// Next returns the next fire instant while armed.
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}, false
	}
	return s.c.Entry(s.id).Next, true
}

// Spec returns the armed time of day.
func (s *Scheduler) Spec() (Spec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec, s.c != nil
}
