package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"personal-assistant/internal/model"
	"personal-assistant/internal/repository"
)

var ErrEmptyInput = errors.New("task input is empty")

// TaskConfig tunes task operations.
type TaskConfig struct {
	DefaultDueOffset time.Duration
	Location         *time.Location
	Now              func() time.Time
}

// TaskUpdate lists the fields a caller wants to change. Nil fields are kept.
type TaskUpdate struct {
	Description *string
	DueAt       *time.Time
}

// QueryWindow names the set of tasks a question is about.
type QueryWindow string

const (
	WindowToday    QueryWindow = "today"
	WindowTomorrow QueryWindow = "tomorrow"
	WindowPending  QueryWindow = "pending"
)

// TaskService wraps task-related business logic and keeps reminder jobs in step with the store.
// Every mutation commits to the store first and then adjusts the jobs of the affected ids.
type TaskService struct {
	store     TaskStore
	reminders *ReminderEngine
	oracle    Oracle
	dueOffset time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

func NewTaskService(store TaskStore, reminders *ReminderEngine, oracle Oracle, cfg TaskConfig, logger *zap.Logger) *TaskService {
	if cfg.DefaultDueOffset <= 0 {
		cfg.DefaultDueOffset = time.Hour
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
	return &TaskService{
		store:     store,
		reminders: reminders,
		oracle:    oracle,
		dueOffset: cfg.DefaultDueOffset,
		loc:       cfg.Location,
		now:       cfg.Now,
		logger:    logger,
	}
}

// Draft turns free text into a task draft. Oracle failures fall back to the raw
// text due after the default offset, so Draft never fails on non-empty input.
func (s *TaskService) Draft(ctx context.Context, input string) (model.TaskDraft, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return model.TaskDraft{}, ErrEmptyInput
	}
	now := s.now()

	draft, err := s.oracle.ExtractTask(ctx, input, now)
	if err != nil {
		s.logger.Warn("task extraction failed, using raw input", zap.Error(err))
		draft = model.TaskDraft{}
	}
	if strings.TrimSpace(draft.Description) == "" {
		draft.Description = input
	}
	if draft.DueAt.IsZero() {
		draft.DueAt = now.Add(s.dueOffset)
	}
	return draft, nil
}

// Create persists a drafted task and schedules its reminders.
func (s *TaskService) Create(ctx context.Context, userID, input string, draft model.TaskDraft) (*model.Task, error) {
	task := &model.Task{
		UserID:        userID,
		Description:   strings.TrimSpace(draft.Description),
		OriginalInput: input,
		DueAt:         draft.DueAt,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}
	jobs := s.reminders.ScheduleTaskReminders(task)
	s.logger.Info("task created", zap.Uint("task_id", task.ID), zap.String("user_id", userID), zap.Int("jobs", jobs))
	return task, nil
}

// CreateFromText drafts and creates a task in one step.
func (s *TaskService) CreateFromText(ctx context.Context, userID, input string) (*model.Task, error) {
	draft, err := s.Draft(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, userID, input, draft)
}

// Get returns a task owned by userID.
func (s *TaskService) Get(ctx context.Context, userID string, taskID uint) (*model.Task, error) {
	return s.store.FindByID(ctx, userID, taskID)
}

// List returns tasks of userID matching filter.
func (s *TaskService) List(ctx context.Context, userID string, filter repository.TaskFilter) ([]model.Task, error) {
	return s.store.List(ctx, userID, filter)
}

// Pending returns open tasks due in the future, soonest first.
func (s *TaskService) Pending(ctx context.Context, userID string, limit int) ([]model.Task, error) {
	return s.store.ListUpcoming(ctx, userID, s.now(), limit)
}

// Complete marks a task done and cancels its reminders.
func (s *TaskService) Complete(ctx context.Context, userID string, taskID uint) (*model.Task, error) {
	unlock := s.reminders.locks.lock(taskID)
	defer unlock()

	task, err := s.store.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkCompleted(ctx, task); err != nil {
		return nil, err
	}
	s.reminders.CancelTaskReminders(taskID)
	s.logger.Info("task completed", zap.Uint("task_id", taskID))
	return task, nil
}

// Cancel deletes a task and its reminders. The deleted task is returned.
func (s *TaskService) Cancel(ctx context.Context, userID string, taskID uint) (*model.Task, error) {
	unlock := s.reminders.locks.lock(taskID)
	defer unlock()

	task, err := s.store.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, userID, taskID); err != nil {
		return nil, err
	}
	s.reminders.CancelTaskReminders(taskID)
	s.logger.Info("task canceled", zap.Uint("task_id", taskID))
	return task, nil
}

// CompleteAll marks every open task of userID done. Tasks are committed one by one,
// so on error the returned count says how many were already completed.
func (s *TaskService) CompleteAll(ctx context.Context, userID string) (int, error) {
	return s.forEachOpen(ctx, userID, func(task *model.Task) error {
		_, err := s.Complete(ctx, userID, task.ID)
		return err
	})
}

// CancelAll deletes every open task of userID.
func (s *TaskService) CancelAll(ctx context.Context, userID string) (int, error) {
	return s.forEachOpen(ctx, userID, func(task *model.Task) error {
		_, err := s.Cancel(ctx, userID, task.ID)
		return err
	})
}

func (s *TaskService) forEachOpen(ctx context.Context, userID string, fn func(*model.Task) error) (int, error) {
	open := false
	tasks, err := s.store.List(ctx, userID, repository.TaskFilter{Completed: &open})
	if err != nil {
		return 0, err
	}
	done := 0
	for i := range tasks {
		if err := fn(&tasks[i]); err != nil {
			return done, fmt.Errorf("task %d: %w", tasks[i].ID, err)
		}
		done++
	}
	return done, nil
}

// Update changes description or due time. A new due time replaces the reminder jobs.
func (s *TaskService) Update(ctx context.Context, userID string, taskID uint, upd TaskUpdate) (*model.Task, error) {
	unlock := s.reminders.locks.lock(taskID)
	defer unlock()

	task, err := s.store.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		if desc == "" {
			return nil, ErrEmptyInput
		}
		task.Description = desc
	}
	if upd.DueAt != nil {
		task.DueAt = upd.DueAt.UTC()
	}
	if err := s.store.Update(ctx, task); err != nil {
		return nil, err
	}
	if upd.DueAt != nil {
		s.reminders.ScheduleTaskReminders(task)
	}
	return task, nil
}

// WindowFor picks the task window a question refers to.
func WindowFor(message string) QueryWindow {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "today"):
		return WindowToday
	case strings.Contains(lower, "tomorrow"):
		return WindowTomorrow
	default:
		return WindowPending
	}
}

// Query returns the tasks of userID in the window the message refers to.
func (s *TaskService) Query(ctx context.Context, userID, message string) (QueryWindow, []model.Task, error) {
	window := WindowFor(message)
	now := s.now().In(s.loc)
	start := startOfDay(now)

	var (
		tasks []model.Task
		err   error
	)
	switch window {
	case WindowToday:
		tasks, err = s.store.List(ctx, userID, repository.TaskFilter{DueFrom: start, DueTo: start.AddDate(0, 0, 1)})
	case WindowTomorrow:
		from := start.AddDate(0, 0, 1)
		tasks, err = s.store.List(ctx, userID, repository.TaskFilter{DueFrom: from, DueTo: from.AddDate(0, 0, 1)})
	default:
		tasks, err = s.store.ListUpcoming(ctx, userID, now, 0)
	}
	if err != nil {
		return window, nil, err
	}
	return window, tasks, nil
}

// Answer replies to a question about tasks. The oracle phrases the answer;
// if it fails the tasks are listed plainly.
func (s *TaskService) Answer(ctx context.Context, userID, message string) (string, []model.Task, error) {
	_, tasks, err := s.Query(ctx, userID, message)
	if err != nil {
		return "", nil, err
	}
	if len(tasks) == 0 {
		return msgNoTasksScheduled, tasks, nil
	}
	text, err := s.oracle.Summarize(ctx, message, tasks)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			s.logger.Warn("task summary failed, listing tasks", zap.Error(err))
		}
		return "Here are your tasks:\n" + model.TaskLines(tasks, s.loc), tasks, nil
	}
	return strings.TrimSpace(text), tasks, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
