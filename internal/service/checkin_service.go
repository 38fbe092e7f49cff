package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"personal-assistant/internal/model"
	"personal-assistant/internal/repository"
	"personal-assistant/internal/timetable"
)

const (
	SlotMorning   = "morning"
	SlotAfternoon = "afternoon"
	SlotEvening   = "evening"
	SlotNight     = "night"

	checkinLimit    = 10
	checkinLookback = time.Hour
)

// CheckinSlot is a daily check-in time in HH:MM.
type CheckinSlot struct {
	Name string
	At   string
}

// DefaultSlots are the four daily check-ins.
var DefaultSlots = []CheckinSlot{
	{Name: SlotMorning, At: "08:00"},
	{Name: SlotAfternoon, At: "12:00"},
	{Name: SlotEvening, At: "16:00"},
	{Name: SlotNight, At: "21:00"},
}

// CheckinConfig tunes the daily check-ins.
type CheckinConfig struct {
	UserID    string
	OwnerName string
	Slots     []CheckinSlot
	Location  *time.Location
	Now       func() time.Time
}

// CheckinService sends the daily task summaries. It only reads tasks.
type CheckinService struct {
	store   TaskStore
	oracle  Oracle
	channel Channel
	userID  string
	owner   string
	slots   []CheckinSlot
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

func NewCheckinService(store TaskStore, oracle Oracle, channel Channel, cfg CheckinConfig, logger *zap.Logger) *CheckinService {
	if len(cfg.Slots) == 0 {
		cfg.Slots = DefaultSlots
	}
	if strings.TrimSpace(cfg.OwnerName) == "" {
		cfg.OwnerName = "there"
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
	return &CheckinService{
		store:   store,
		oracle:  oracle,
		channel: channel,
		userID:  cfg.UserID,
		owner:   cfg.OwnerName,
		slots:   cfg.Slots,
		loc:     cfg.Location,
		now:     cfg.Now,
		logger:  logger,
	}
}

// Register adds one recurring job per slot.
func (c *CheckinService) Register(jobs Scheduler) error {
	for _, slot := range c.slots {
		if err := jobs.ScheduleDaily(timetable.DailyCheckin(slot.Name), slot.At); err != nil {
			return fmt.Errorf("schedule %s check-in: %w", slot.Name, err)
		}
	}
	c.logger.Info("daily check-ins scheduled", zap.Int("slots", len(c.slots)))
	return nil
}

// Window returns the tasks a check-in covers. The night check-in covers all of
// today; the others cover open tasks due no more than an hour ago.
func (c *CheckinService) Window(ctx context.Context, slot string) ([]model.Task, error) {
	now := c.now().In(c.loc)
	if slot == SlotNight {
		start := startOfDay(now)
		return c.store.List(ctx, c.userID, repository.TaskFilter{DueFrom: start, DueTo: start.AddDate(0, 0, 1)})
	}
	open := false
	return c.store.List(ctx, c.userID, repository.TaskFilter{
		Completed: &open,
		DueFrom:   now.Add(-checkinLookback),
		Limit:     checkinLimit,
	})
}

// Summary renders the check-in text for the given tasks.
func (c *CheckinService) Summary(ctx context.Context, slot string, tasks []model.Task) string {
	if len(tasks) == 0 {
		return checkinGreeting(slot, c.owner)
	}
	text, err := c.oracle.DailySummary(ctx, slot, tasks)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			c.logger.Warn("check-in summary failed, using digest", zap.String("slot", slot), zap.Error(err))
		}
		return checkinFallback(slot, tasks, c.loc)
	}
	return strings.TrimSpace(text)
}

// Fire runs one check-in. Errors are returned to the timetable, which logs them.
func (c *CheckinService) Fire(ctx context.Context, slot string) error {
	tasks, err := c.Window(ctx, slot)
	if err != nil {
		return fmt.Errorf("%s check-in: %w", slot, err)
	}
	text := c.Summary(ctx, slot, tasks)
	if err := c.channel.Send(ctx, c.userID, escape(text), nil); err != nil {
		return fmt.Errorf("%s check-in: send: %w", slot, err)
	}
	c.logger.Info("check-in sent", zap.String("slot", slot), zap.Int("tasks", len(tasks)))
	return nil
}
