package service

import (
	"context"
	"fmt"
	"sync"

	"personal-assistant/internal/timetable"
)

// Dispatcher is the single timetable handler. It routes each job by kind.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[timetable.Kind]timetable.Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[timetable.Kind]timetable.Handler)}
}

// Handle sets the handler for a job kind, replacing any previous one.
func (d *Dispatcher) Handle(kind timetable.Kind, h timetable.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Bind wires the reminder and check-in handlers.
func (d *Dispatcher) Bind(reminders *ReminderEngine, checkins *CheckinService) {
	d.Handle(timetable.KindSMSReminder, timetable.HandlerFunc(func(ctx context.Context, key timetable.JobKey) error {
		return reminders.FireSMSReminder(ctx, key.TaskID)
	}))
	d.Handle(timetable.KindVoiceCall, timetable.HandlerFunc(func(ctx context.Context, key timetable.JobKey) error {
		return reminders.FireVoiceCall(ctx, key.TaskID)
	}))
	if checkins != nil {
		d.Handle(timetable.KindDailyCheckin, timetable.HandlerFunc(func(ctx context.Context, key timetable.JobKey) error {
			return checkins.Fire(ctx, key.Slot)
		}))
	}
}

func (d *Dispatcher) Fire(ctx context.Context, key timetable.JobKey) error {
	d.mu.RLock()
	h, ok := d.handlers[key.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for %s", key)
	}
	return h.Fire(ctx, key)
}
