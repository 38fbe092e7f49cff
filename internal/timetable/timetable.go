package timetable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrPastFireTime = errors.New("timetable: fire time is not in the future")
	ErrStopped      = errors.New("timetable: stopped")
)

// Option customizes a Timetable.
type Option func(*Timetable)

// WithClock overrides the clock used to validate fire times.
func WithClock(now func() time.Time) Option {
	return func(t *Timetable) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Timetable) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithLocation sets the location used for daily jobs.
func WithLocation(loc *time.Location) Option {
	return func(t *Timetable) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// Timetable keeps at most one live job per JobKey and runs every job through
// a single cron run loop. One-shot jobs are unregistered before their handler runs.
type Timetable struct {
	handler Handler
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
	cron    *cron.Cron

	runCtx    context.Context
	cancelRun context.CancelFunc

	mu      sync.Mutex
	entries map[JobKey]*registration
	started bool
	stopped bool
}

type registration struct {
	id       cron.EntryID
	schedule cron.Schedule
	oneShot  *oneShot
}

// oneShot fires once at `at`. The run loop asks for the next activation when
// the entry is armed and again after every run, so only the first answer may
// be non-zero once `at` is due. After claim it reports no further activations.
type oneShot struct {
	at      time.Time
	issued  atomic.Bool
	claimed atomic.Bool
}

func (s *oneShot) Next(t time.Time) time.Time {
	if s.claimed.Load() {
		return time.Time{}
	}
	if s.at.After(t) {
		s.issued.Store(true)
		return s.at
	}
	// Already due when armed: fire on the next loop pass, exactly once.
	if s.issued.CompareAndSwap(false, true) {
		return t
	}
	return time.Time{}
}

func (s *oneShot) claim() bool { return s.claimed.CompareAndSwap(false, true) }

// New creates a Timetable that dispatches every due job to handler.
func New(handler Handler, opts ...Option) *Timetable {
	t := &Timetable{
		handler: handler,
		logger:  zap.NewNop(),
		loc:     time.Local,
		now:     time.Now,
		entries: make(map[JobKey]*registration),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.runCtx, t.cancelRun = context.WithCancel(context.Background())
	cronLogger := cron.PrintfLogger(zap.NewStdLog(t.logger.Named("cron")))
	t.cron = cron.New(
		cron.WithLocation(t.loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	return t
}

// Schedule registers a one-shot job, replacing any live job with the same key.
// Fire times at or before now are dropped and ErrPastFireTime is returned.
func (t *Timetable) Schedule(key JobKey, fireAt time.Time) error {
	now := t.now()
	if !fireAt.After(now) {
		t.logger.Info("job dropped, fire time already passed",
			zap.String("job", key.String()),
			zap.Time("fire_at", fireAt),
		)
		return ErrPastFireTime
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrStopped
	}

	shot := &oneShot{at: fireAt}
	reg := &registration{schedule: shot, oneShot: shot}
	t.replaceLocked(key, reg)
	t.logger.Debug("job scheduled", zap.String("job", key.String()), zap.Time("fire_at", fireAt))
	return nil
}

// ScheduleDaily registers a recurring job at the given HH:MM in the timetable location.
func (t *Timetable) ScheduleDaily(key JobKey, timeStr string) error {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return err
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse daily spec %q: %w", spec, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrStopped
	}
	t.replaceLocked(key, &registration{schedule: schedule})
	return nil
}

func (t *Timetable) replaceLocked(key JobKey, reg *registration) {
	if prev, ok := t.entries[key]; ok {
		t.unregisterLocked(prev)
	}
	reg.id = t.cron.Schedule(reg.schedule, cron.FuncJob(func() { t.fire(key, reg) }))
	t.entries[key] = reg
}

func (t *Timetable) unregisterLocked(reg *registration) {
	if reg.oneShot != nil {
		reg.oneShot.claim()
	}
	t.cron.Remove(reg.id)
}

// Cancel removes a live job. It reports whether one existed.
// A handler that is already running is not interrupted.
func (t *Timetable) Cancel(key JobKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	reg, ok := t.entries[key]
	if !ok {
		return false
	}
	t.unregisterLocked(reg)
	delete(t.entries, key)
	return true
}

// List returns live jobs ordered by fire time.
func (t *Timetable) List() []Job {
	now := t.now().In(t.loc)
	t.mu.Lock()
	jobs := make([]Job, 0, len(t.entries))
	for key, reg := range t.entries {
		fireAt := reg.schedule.Next(now)
		if reg.oneShot != nil {
			fireAt = reg.oneShot.at
		}
		jobs = append(jobs, newJob(key, fireAt))
	}
	t.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].FireAt.Equal(jobs[j].FireAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].FireAt.Before(jobs[j].FireAt)
	})
	return jobs
}

// Len returns the number of live jobs.
func (t *Timetable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Running reports whether the dispatch loop is active.
func (t *Timetable) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped
}

// Start launches the dispatch loop. Jobs registered earlier become active.
func (t *Timetable) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	t.cron.Start()
	t.logger.Info("timetable started", zap.Int("jobs", len(t.entries)))
}

// Stop halts the dispatch loop and waits for running handlers until ctx is done.
// Handlers still running at that point get their context canceled.
func (t *Timetable) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	started := t.started
	t.mu.Unlock()

	defer t.cancelRun()
	if !started {
		return nil
	}

	drained := t.cron.Stop()
	select {
	case <-drained.Done():
		t.logger.Info("timetable stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timetable: handlers still running after grace period: %w", ctx.Err())
	}
}

func (t *Timetable) fire(key JobKey, reg *registration) {
	if reg.oneShot != nil {
		if !reg.oneShot.claim() {
			return
		}
		t.mu.Lock()
		if cur, ok := t.entries[key]; ok && cur == reg {
			delete(t.entries, key)
		}
		t.cron.Remove(reg.id)
		t.mu.Unlock()
	}

	start := time.Now()
	if err := t.handler.Fire(t.runCtx, key); err != nil {
		t.logger.Error("job failed", zap.String("job", key.String()), zap.Error(err))
		return
	}
	t.logger.Debug("job done", zap.String("job", key.String()), zap.Duration("took", time.Since(start)))
}

// buildDailySpec converts HH:MM into a standard five-field cron spec.
func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// minute hour dom month dow
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
