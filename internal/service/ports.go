package service

import (
	"context"
	"time"

	"personal-assistant/internal/model"
	"personal-assistant/internal/repository"
	"personal-assistant/internal/timetable"
)

// TaskStore is the durable task storage used by every service.
// Not-found lookups return gorm.ErrRecordNotFound.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, userID string, taskID uint) (*model.Task, error)
	Get(ctx context.Context, taskID uint) (*model.Task, error)
	List(ctx context.Context, userID string, filter repository.TaskFilter) ([]model.Task, error)
	ListUpcoming(ctx context.Context, userID string, now time.Time, limit int) ([]model.Task, error)
	ListPending(ctx context.Context, now time.Time) ([]model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	MarkCompleted(ctx context.Context, task *model.Task) error
	MarkReminded(ctx context.Context, taskID uint) (bool, error)
	MarkCalled(ctx context.Context, taskID uint) (bool, error)
	Delete(ctx context.Context, userID string, taskID uint) error
}

// Scheduler registers future jobs.
type Scheduler interface {
	Schedule(key timetable.JobKey, fireAt time.Time) error
	ScheduleDaily(key timetable.JobKey, timeStr string) error
	Cancel(key timetable.JobKey) bool
	List() []timetable.Job
}

// Notifier delivers SMS and voice alerts. Implementations do not retry.
type Notifier interface {
	SendSMS(ctx context.Context, text string) error
	SendReminder(ctx context.Context, description, whenText string) error
	PlaceVoiceCall(ctx context.Context, campaign string) error
}

// Oracle answers the natural-language questions the assistant cannot settle locally.
type Oracle interface {
	Classify(ctx context.Context, text string) (bool, error)
	ExtractTask(ctx context.Context, text string, now time.Time) (model.TaskDraft, error)
	Summarize(ctx context.Context, query string, tasks []model.Task) (string, error)
	DailySummary(ctx context.Context, slot string, tasks []model.Task) (string, error)
	Chat(ctx context.Context, text string) (string, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Button is an inline action attached to an outgoing message.
type Button struct {
	Label string
	Data  string
}

// Channel sends messages back to a user. Text is HTML formatted.
type Channel interface {
	Send(ctx context.Context, userID, text string, buttons [][]Button) error
}

// AudioSource fetches a voice note into a local file.
// cleanup removes the file and is never nil when err is nil.
type AudioSource func(ctx context.Context) (path string, cleanup func(), err error)
