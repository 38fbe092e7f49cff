package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"personal-assistant/internal/model"
	"personal-assistant/internal/repository"
)

func draftAt(desc string, due time.Time) model.TaskDraft {
	return model.TaskDraft{Description: desc, DueAt: due}
}

func TestCreateFromTextDefaultsDueTime(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.oracle.draft = model.TaskDraft{Description: "Buy milk"}

	task, err := h.tasks.CreateFromText(context.Background(), testUser, "buy milk")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if want := h.clock.Now().Add(time.Hour); !task.DueAt.Equal(want) {
		t.Fatalf("due = %v, want %v", task.DueAt, want)
	}
	if task.Description != "Buy milk" || task.OriginalInput != "buy milk" {
		t.Fatalf("unexpected task %+v", task)
	}
	if jobs := h.engine.ListJobs(); len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %v", jobIDs(jobs))
	}
}

func TestCreateFromTextFallsBackOnOracleError(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.oracle.extractErr = errDown

	task, err := h.tasks.CreateFromText(context.Background(), testUser, "  renew passport ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Description != "renew passport" {
		t.Fatalf("description = %q", task.Description)
	}
	if want := h.clock.Now().Add(time.Hour); !task.DueAt.Equal(want) {
		t.Fatalf("due = %v, want %v", task.DueAt, want)
	}

	if _, err := h.tasks.CreateFromText(context.Background(), testUser, "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestCompleteAndCancelChecksOwner(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	task, err := h.tasks.Create(ctx, testUser, "gym", draftAt("gym", h.clock.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := h.tasks.Complete(ctx, "someone-else", task.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
	if _, err := h.tasks.Cancel(ctx, "someone-else", task.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for another user, got %v", err)
	}
	if len(h.engine.ListJobs()) != 2 {
		t.Fatal("jobs must survive a rejected mutation")
	}

	canceled, err := h.tasks.Cancel(ctx, testUser, task.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Description != "gym" {
		t.Fatalf("cancel returned %+v", canceled)
	}
	if len(h.engine.ListJobs()) != 0 {
		t.Fatal("jobs left after cancel")
	}
	if _, err := h.store.Get(ctx, task.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("task still stored: %v", err)
	}
}

func TestBulkOperationsLeaveNoJobs(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	now := h.clock.Now()

	for _, d := range []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour} {
		if _, err := h.tasks.Create(ctx, testUser, "t", draftAt("t", now.Add(d))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if len(h.engine.ListJobs()) != 6 {
		t.Fatalf("expected 6 jobs, got %d", len(h.engine.ListJobs()))
	}

	n, err := h.tasks.CompleteAll(ctx, testUser)
	if err != nil || n != 3 {
		t.Fatalf("complete all: n=%d err=%v", n, err)
	}
	if len(h.engine.ListJobs()) != 0 {
		t.Fatalf("jobs left: %v", jobIDs(h.engine.ListJobs()))
	}
	if n, _ := h.tasks.CompleteAll(ctx, testUser); n != 0 {
		t.Fatalf("second complete all touched %d tasks", n)
	}

	if _, err := h.tasks.Create(ctx, testUser, "late", draftAt("late", now.Add(5*time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err = h.tasks.CancelAll(ctx, testUser)
	if err != nil || n != 1 {
		t.Fatalf("cancel all: n=%d err=%v", n, err)
	}
	if len(h.engine.ListJobs()) != 0 {
		t.Fatalf("jobs left: %v", jobIDs(h.engine.ListJobs()))
	}
	all, err := h.tasks.List(ctx, testUser, repository.TaskFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("completed tasks must stay, canceled ones go: got %d", len(all))
	}
}

func TestUpdateReschedulesReminders(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	now := h.clock.Now()
	task, err := h.tasks.Create(ctx, testUser, "report", draftAt("report", now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	soon := now.Add(10 * time.Minute)
	desc := "final report"
	updated, err := h.tasks.Update(ctx, testUser, task.ID, TaskUpdate{Description: &desc, DueAt: &soon})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != desc || !updated.DueAt.Equal(soon) {
		t.Fatalf("unexpected update result %+v", updated)
	}
	jobs := h.engine.ListJobs()
	if len(jobs) != 1 || jobs[0].Kind != "voice_call" || !jobs[0].FireAt.Equal(soon) {
		t.Fatalf("expected only the voice job at the new time, got %+v", jobs)
	}

	blank := " "
	if _, err := h.tasks.Update(ctx, testUser, task.ID, TaskUpdate{Description: &blank}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestQueryWindows(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	now := h.clock.Now() // 10:00

	earlier := h.addTask(t, "breakfast", now.Add(-2*time.Hour))
	later := h.addTask(t, "lunch", now.Add(2*time.Hour))
	tomorrow := h.addTask(t, "flight", now.Add(24*time.Hour))
	if err := h.store.MarkCompleted(ctx, earlier); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cases := []struct {
		message string
		window  QueryWindow
		want    []uint
	}{
		{"what do I have today?", WindowToday, []uint{earlier.ID, later.ID}},
		{"anything TOMORROW", WindowTomorrow, []uint{tomorrow.ID}},
		{"what tasks are left", WindowPending, []uint{later.ID, tomorrow.ID}},
	}
	for _, tc := range cases {
		window, tasks, err := h.tasks.Query(ctx, testUser, tc.message)
		if err != nil {
			t.Fatalf("%q: %v", tc.message, err)
		}
		if window != tc.window {
			t.Fatalf("%q: window %s, want %s", tc.message, window, tc.window)
		}
		if len(tasks) != len(tc.want) {
			t.Fatalf("%q: got %d tasks, want %d", tc.message, len(tasks), len(tc.want))
		}
		for i, id := range tc.want {
			if tasks[i].ID != id {
				t.Fatalf("%q: position %d is task %d, want %d", tc.message, i, tasks[i].ID, id)
			}
		}
	}
}

func TestAnswerFallsBackToPlainList(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	text, _, err := h.tasks.Answer(ctx, testUser, "what tasks")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if text != msgNoTasksScheduled {
		t.Fatalf("empty answer = %q", text)
	}
	if h.oracle.summaryCalls != 0 {
		t.Fatal("oracle asked to summarize nothing")
	}

	h.addTask(t, "yoga", h.clock.Now().Add(90*time.Minute))
	h.oracle.summaryErr = errDown
	text, tasks, err := h.tasks.Answer(ctx, testUser, "what tasks")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	want := "Here are your tasks:\n- yoga (scheduled for 2030-05-14 11:30, pending)"
	if text != want || len(tasks) != 1 {
		t.Fatalf("fallback answer = %q", text)
	}

	h.oracle.summaryErr = nil
	h.oracle.summary = "  You have yoga at 11:30.  "
	text, _, _ = h.tasks.Answer(ctx, testUser, "what tasks")
	if !strings.HasPrefix(text, "You have yoga") {
		t.Fatalf("oracle answer = %q", text)
	}
}
