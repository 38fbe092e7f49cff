package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"personal-assistant/internal/model"
	"personal-assistant/internal/repository"
	"personal-assistant/internal/timetable"
)

const testUser = "42"

var errDown = errors.New("service unavailable")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeNotifier struct {
	mu        sync.Mutex
	sms       []string
	reminders []string
	calls     []string

	smsErr      error
	reminderErr error
	callErr     error
}

func (n *fakeNotifier) SendSMS(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.smsErr != nil {
		return n.smsErr
	}
	n.sms = append(n.sms, text)
	return nil
}

func (n *fakeNotifier) SendReminder(_ context.Context, description, whenText string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.reminderErr != nil {
		return n.reminderErr
	}
	n.reminders = append(n.reminders, description+" @ "+whenText)
	return nil
}

func (n *fakeNotifier) PlaceVoiceCall(_ context.Context, campaign string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.callErr != nil {
		return n.callErr
	}
	n.calls = append(n.calls, campaign)
	return nil
}

func (n *fakeNotifier) counts() (sms, reminders, calls int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sms), len(n.reminders), len(n.calls)
}

type fakeOracle struct {
	mu            sync.Mutex
	classifyCalls int
	summaryCalls  int

	isTask      bool
	classifyErr error
	draft       model.TaskDraft
	extractErr  error
	summary     string
	summaryErr  error
	daily       string
	dailyErr    error
	chat        string
	chatErr     error
	transcript  string
	transErr    error
}

func (o *fakeOracle) Classify(context.Context, string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.classifyCalls++
	return o.isTask, o.classifyErr
}

func (o *fakeOracle) ExtractTask(context.Context, string, time.Time) (model.TaskDraft, error) {
	return o.draft, o.extractErr
}

func (o *fakeOracle) Summarize(context.Context, string, []model.Task) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaryCalls++
	return o.summary, o.summaryErr
}

func (o *fakeOracle) DailySummary(context.Context, string, []model.Task) (string, error) {
	return o.daily, o.dailyErr
}

func (o *fakeOracle) Chat(context.Context, string) (string, error) {
	return o.chat, o.chatErr
}

func (o *fakeOracle) Transcribe(context.Context, string) (string, error) {
	return o.transcript, o.transErr
}

type sentMessage struct {
	userID  string
	text    string
	buttons [][]Button
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (c *recordingChannel) Send(_ context.Context, userID, text string, buttons [][]Button) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{userID: userID, text: text, buttons: buttons})
	return nil
}

func (c *recordingChannel) last(t *testing.T) sentMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no message sent")
	}
	return c.sent[len(c.sent)-1]
}

func (c *recordingChannel) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.sent {
		if strings.Contains(m.text, substr) {
			return true
		}
	}
	return false
}

type harness struct {
	clock    *testClock
	store    *repository.TaskRepository
	jobs     *timetable.Timetable
	notifier *fakeNotifier
	oracle   *fakeOracle
	channel  *recordingChannel
	engine   *ReminderEngine
	tasks    *TaskService
	router   *Router
	checkins *CheckinService
}

type harnessOptions struct {
	now  time.Time
	lead time.Duration
	// realTime drives every component from the wall clock and starts the timetable.
	realTime bool
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "tasks.db"), nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	if opts.now.IsZero() {
		opts.now = time.Date(2030, 5, 14, 10, 0, 0, 0, time.UTC)
	}
	clock := &testClock{t: opts.now}
	now := clock.Now
	if opts.realTime {
		now = time.Now
	}

	h := &harness{
		clock:    clock,
		store:    repository.NewTaskRepository(db),
		notifier: &fakeNotifier{},
		oracle:   &fakeOracle{},
		channel:  &recordingChannel{},
	}

	dispatcher := NewDispatcher()
	h.jobs = timetable.New(dispatcher, timetable.WithClock(now), timetable.WithLocation(time.UTC))
	h.engine = NewReminderEngine(h.store, h.jobs, h.notifier, ReminderConfig{Lead: opts.lead, Location: time.UTC, Now: now}, nil)
	h.tasks = NewTaskService(h.store, h.engine, h.oracle, TaskConfig{Location: time.UTC, Now: now}, nil)
	h.router = NewRouter(h.tasks, h.oracle, h.notifier, h.channel, RouterConfig{AuthorizedUserID: testUser, Location: time.UTC}, nil)
	h.checkins = NewCheckinService(h.store, h.oracle, h.channel, CheckinConfig{UserID: testUser, OwnerName: "Sam", Location: time.UTC, Now: now}, nil)
	dispatcher.Bind(h.engine, h.checkins)

	if opts.realTime {
		h.jobs.Start()
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = h.jobs.Stop(ctx)
		})
	}
	return h
}

func (h *harness) addTask(t *testing.T, desc string, due time.Time) *model.Task {
	t.Helper()
	task := &model.Task{UserID: testUser, Description: desc, OriginalInput: desc, DueAt: due}
	if err := h.store.Create(context.Background(), task); err != nil {
		t.Fatalf("create %q: %v", desc, err)
	}
	return task
}

func (h *harness) reload(t *testing.T, id uint) *model.Task {
	t.Helper()
	task, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("reload task %d: %v", id, err)
	}
	return task
}

func jobIDs(jobs []timetable.Job) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
