package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"personal-assistant/internal/model"
	"personal-assistant/internal/timetable"
)

const defaultReminderLead = 15 * time.Minute

// ReminderConfig tunes the reminder engine.
type ReminderConfig struct {
	Lead     time.Duration
	Location *time.Location
	Now      func() time.Time
}

// ReminderEngine binds tasks to SMS and voice call jobs and fires them.
type ReminderEngine struct {
	store    TaskStore
	jobs     Scheduler
	notifier Notifier
	lead     time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
	locks    taskLocks
}

func NewReminderEngine(store TaskStore, jobs Scheduler, notifier Notifier, cfg ReminderConfig, logger *zap.Logger) *ReminderEngine {
	if cfg.Lead <= 0 {
		cfg.Lead = defaultReminderLead
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderEngine{
		store:    store,
		jobs:     jobs,
		notifier: notifier,
		lead:     cfg.Lead,
		loc:      cfg.Location,
		now:      cfg.Now,
		logger:   logger,
		locks:    taskLocks{m: make(map[uint]*taskLock)},
	}
}

// ScheduleTaskReminders registers the SMS job at DueAt-lead and the voice job at DueAt.
// Each job is registered only if its fire time is still ahead. It returns the number of jobs registered.
func (e *ReminderEngine) ScheduleTaskReminders(task *model.Task) int {
	if task == nil {
		return 0
	}
	if task.IsCompleted {
		e.CancelTaskReminders(task.ID)
		return 0
	}

	now := e.now()
	registered := 0

	reminderAt := task.DueAt.Add(-e.lead)
	if reminderAt.After(now) {
		if e.register(timetable.SMSReminder(task.ID), reminderAt) {
			registered++
		}
	} else {
		e.jobs.Cancel(timetable.SMSReminder(task.ID))
	}

	if task.DueAt.After(now) {
		if e.register(timetable.VoiceCall(task.ID), task.DueAt) {
			registered++
		}
	} else {
		e.jobs.Cancel(timetable.VoiceCall(task.ID))
	}

	e.logger.Info("task reminders scheduled",
		zap.Uint("task_id", task.ID),
		zap.Time("sms_at", reminderAt),
		zap.Time("call_at", task.DueAt),
		zap.Int("jobs", registered),
	)
	return registered
}

func (e *ReminderEngine) register(key timetable.JobKey, fireAt time.Time) bool {
	if err := e.jobs.Schedule(key, fireAt); err != nil {
		e.logger.Warn("job not registered", zap.String("job", key.String()), zap.Error(err))
		return false
	}
	return true
}

// CancelTaskReminders drops both jobs of a task. It returns how many existed.
func (e *ReminderEngine) CancelTaskReminders(taskID uint) int {
	canceled := 0
	if e.jobs.Cancel(timetable.SMSReminder(taskID)) {
		canceled++
	}
	if e.jobs.Cancel(timetable.VoiceCall(taskID)) {
		canceled++
	}
	if canceled > 0 {
		e.logger.Info("task reminders canceled", zap.Uint("task_id", taskID), zap.Int("jobs", canceled))
	}
	return canceled
}

// RescheduleAll rebuilds the jobs of every open task due in the future.
// Calling it twice registers nothing new because keys are replaced.
func (e *ReminderEngine) RescheduleAll(ctx context.Context) (int, error) {
	tasks, err := e.store.ListPending(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("load pending tasks: %w", err)
	}
	jobs := 0
	for i := range tasks {
		jobs += e.ScheduleTaskReminders(&tasks[i])
	}
	e.logger.Info("pending tasks rescheduled", zap.Int("tasks", len(tasks)), zap.Int("jobs", jobs))
	return jobs, nil
}

// ListJobs returns the live jobs ordered by fire time.
func (e *ReminderEngine) ListJobs() []timetable.Job {
	return e.jobs.List()
}

// Scheduled reports which reminder jobs of a task are live.
func (e *ReminderEngine) Scheduled(taskID uint) (sms, call bool) {
	for _, job := range e.ListJobs() {
		switch job.Key {
		case timetable.SMSReminder(taskID):
			sms = true
		case timetable.VoiceCall(taskID):
			call = true
		}
	}
	return sms, call
}

// FireSMSReminder sends the reminder SMS unless the task is gone, done or already reminded.
func (e *ReminderEngine) FireSMSReminder(ctx context.Context, taskID uint) error {
	return e.fire(ctx, taskID, timetable.KindSMSReminder)
}

// FireVoiceCall places the voice call unless the task is gone, done or already called.
func (e *ReminderEngine) FireVoiceCall(ctx context.Context, taskID uint) error {
	return e.fire(ctx, taskID, timetable.KindVoiceCall)
}

func (e *ReminderEngine) fire(ctx context.Context, taskID uint, kind timetable.Kind) error {
	unlock := e.locks.lock(taskID)
	defer unlock()

	log := e.logger.With(zap.Uint("task_id", taskID), zap.Stringer("kind", kind))

	task, err := e.store.Get(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Info("task gone, notification skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %d: %w", taskID, err)
	}

	var (
		done   bool
		send   func() error
		markFn func(context.Context, uint) (bool, error)
	)
	switch kind {
	case timetable.KindSMSReminder:
		done = task.IsReminded
		when := task.DueAt.In(e.loc).Format("2006-01-02 15:04")
		send = func() error { return e.notifier.SendReminder(ctx, task.Description, when) }
		markFn = e.store.MarkReminded
	case timetable.KindVoiceCall:
		done = task.IsCalled
		send = func() error { return e.notifier.PlaceVoiceCall(ctx, task.Description) }
		markFn = e.store.MarkCalled
	default:
		return fmt.Errorf("unexpected job kind %s", kind)
	}

	if task.IsCompleted || done {
		log.Info("notification skipped", zap.Bool("completed", task.IsCompleted), zap.Bool("already_sent", done))
		return nil
	}

	if err := send(); err != nil {
		log.Error("notification failed", zap.Error(err))
		return nil
	}

	changed, err := markFn(ctx, taskID)
	if err != nil {
		return fmt.Errorf("flag task %d after %s: %w", taskID, kind, err)
	}
	log.Info("notification sent", zap.Bool("flagged", changed))
	return nil
}

// taskLocks serializes work on the same task id.
type taskLocks struct {
	mu sync.Mutex
	m  map[uint]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

func (l *taskLocks) lock(id uint) func() {
	l.mu.Lock()
	tl, ok := l.m[id]
	if !ok {
		tl = &taskLock{}
		l.m[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
