package timetable

import (
	"context"
	"fmt"
	"time"
)

// Kind tells the dispatcher which action a job performs.
type Kind int

const (
	KindSMSReminder Kind = iota + 1
	KindVoiceCall
	KindDailyCheckin
)

func (k Kind) String() string {
	switch k {
	case KindSMSReminder:
		return "sms_reminder"
	case KindVoiceCall:
		return "voice_call"
	case KindDailyCheckin:
		return "daily_checkin"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// JobKey identifies a job. Task jobs carry TaskID, check-in jobs carry Slot.
// Build keys with SMSReminder, VoiceCall or DailyCheckin.
type JobKey struct {
	Kind   Kind
	TaskID uint
	Slot   string
}

func SMSReminder(taskID uint) JobKey { return JobKey{Kind: KindSMSReminder, TaskID: taskID} }

func VoiceCall(taskID uint) JobKey { return JobKey{Kind: KindVoiceCall, TaskID: taskID} }

func DailyCheckin(slot string) JobKey { return JobKey{Kind: KindDailyCheckin, Slot: slot} }

func (k JobKey) String() string {
	if k.Kind == KindDailyCheckin {
		return fmt.Sprintf("%s:%s", k.Kind, k.Slot)
	}
	return fmt.Sprintf("%s:%d", k.Kind, k.TaskID)
}

// Job is a registered future action.
type Job struct {
	Key    JobKey    `json:"-"`
	ID     string    `json:"id"`
	Kind   string    `json:"kind"`
	TaskID uint      `json:"task_id,omitempty"`
	Slot   string    `json:"slot,omitempty"`
	FireAt time.Time `json:"next_run_time"`
}

func newJob(key JobKey, fireAt time.Time) Job {
	return Job{
		Key:    key,
		ID:     key.String(),
		Kind:   key.Kind.String(),
		TaskID: key.TaskID,
		Slot:   key.Slot,
		FireAt: fireAt,
	}
}

// Handler runs a due job. One handler serves every job kind.
type Handler interface {
	Fire(ctx context.Context, key JobKey) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, key JobKey) error

func (f HandlerFunc) Fire(ctx context.Context, key JobKey) error { return f(ctx, key) }
