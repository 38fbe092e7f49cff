package timetable

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan JobKey, timeout time.Duration) JobKey {
	t.Helper()
	select {
	case key := <-ch:
		return key
	case <-time.After(timeout):
		t.Fatal("timed out waiting for job")
		return JobKey{}
	}
}

func stopNow(t *testing.T, tt *Timetable) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tt.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestScheduleRejectsPastFireTime(t *testing.T) {
	tt := New(HandlerFunc(func(context.Context, JobKey) error { return nil }))

	if err := tt.Schedule(SMSReminder(1), time.Now().Add(-time.Second)); !errors.Is(err, ErrPastFireTime) {
		t.Fatalf("expected ErrPastFireTime, got %v", err)
	}
	if tt.Len() != 0 {
		t.Fatalf("past job must not be registered, got %d", tt.Len())
	}
}

func TestScheduleUsesInjectedClock(t *testing.T) {
	base := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	tt := New(HandlerFunc(func(context.Context, JobKey) error { return nil }), WithClock(func() time.Time { return base }))

	if err := tt.Schedule(VoiceCall(3), base); !errors.Is(err, ErrPastFireTime) {
		t.Fatalf("fire time equal to now must be dropped, got %v", err)
	}
	if err := tt.Schedule(VoiceCall(3), base.Add(time.Second)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	jobs := tt.List()
	if len(jobs) != 1 || !jobs[0].FireAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if jobs[0].ID != "voice_call:3" || jobs[0].TaskID != 3 {
		t.Fatalf("unexpected job identity: %+v", jobs[0])
	}
}

func TestJobFiresOnceAndIsRemovedBeforeHandler(t *testing.T) {
	fired := make(chan JobKey, 4)
	var remaining atomic.Int64
	var tt *Timetable
	tt = New(HandlerFunc(func(_ context.Context, key JobKey) error {
		remaining.Store(int64(tt.Len()))
		fired <- key
		return nil
	}))
	tt.Start()
	defer stopNow(t, tt)

	if err := tt.Schedule(SMSReminder(7), time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	key := waitFor(t, fired, 2*time.Second)
	if key != SMSReminder(7) {
		t.Fatalf("unexpected key %v", key)
	}
	if remaining.Load() != 0 {
		t.Fatalf("entry still registered while handler ran: %d", remaining.Load())
	}

	select {
	case extra := <-fired:
		t.Fatalf("job fired twice: %v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestScheduleReplacesExisting(t *testing.T) {
	fired := make(chan JobKey, 4)
	tt := New(HandlerFunc(func(_ context.Context, key JobKey) error {
		fired <- key
		return nil
	}))
	tt.Start()
	defer stopNow(t, tt)

	if err := tt.Schedule(VoiceCall(1), time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	soon := time.Now().Add(40 * time.Millisecond)
	if err := tt.Schedule(VoiceCall(1), soon); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if tt.Len() != 1 {
		t.Fatalf("expected one live job, got %d", tt.Len())
	}
	if jobs := tt.List(); !jobs[0].FireAt.Equal(soon) {
		t.Fatalf("replacement did not take effect: %+v", jobs)
	}

	waitFor(t, fired, 2*time.Second)
	select {
	case extra := <-fired:
		t.Fatalf("replaced job fired too: %v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCancelPreventsFire(t *testing.T) {
	var calls atomic.Int32
	tt := New(HandlerFunc(func(context.Context, JobKey) error {
		calls.Add(1)
		return nil
	}))
	tt.Start()
	defer stopNow(t, tt)

	if err := tt.Schedule(SMSReminder(2), time.Now().Add(50*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !tt.Cancel(SMSReminder(2)) {
		t.Fatal("expected cancel to report an existing job")
	}
	if tt.Cancel(SMSReminder(2)) {
		t.Fatal("second cancel must be a no-op")
	}

	time.Sleep(200 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("canceled job fired %d times", calls.Load())
	}
}

func TestHandlerPanicAndErrorKeepLoopAlive(t *testing.T) {
	fired := make(chan JobKey, 4)
	tt := New(HandlerFunc(func(_ context.Context, key JobKey) error {
		switch key.TaskID {
		case 1:
			panic("boom")
		case 2:
			return errors.New("gateway down")
		}
		fired <- key
		return nil
	}))
	tt.Start()
	defer stopNow(t, tt)

	now := time.Now()
	for id, delay := range map[uint]time.Duration{1: 20, 2: 30, 3: 80} {
		if err := tt.Schedule(SMSReminder(id), now.Add(delay*time.Millisecond)); err != nil {
			t.Fatalf("schedule %d: %v", id, err)
		}
	}

	if key := waitFor(t, fired, 2*time.Second); key.TaskID != 3 {
		t.Fatalf("unexpected key %v", key)
	}
	if tt.Len() != 0 {
		t.Fatalf("failed jobs left stale entries: %+v", tt.List())
	}
}

func TestHandlerCanRescheduleSameKey(t *testing.T) {
	fired := make(chan JobKey, 4)
	var runs atomic.Int32
	var tt *Timetable
	tt = New(HandlerFunc(func(_ context.Context, key JobKey) error {
		if runs.Add(1) == 1 {
			if err := tt.Schedule(key, time.Now().Add(30*time.Millisecond)); err != nil {
				return err
			}
		}
		fired <- key
		return nil
	}))
	tt.Start()
	defer stopNow(t, tt)

	if err := tt.Schedule(VoiceCall(9), time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	waitFor(t, fired, 2*time.Second)
	waitFor(t, fired, 2*time.Second)
	if runs.Load() != 2 {
		t.Fatalf("expected two runs, got %d", runs.Load())
	}
}

func TestListIsOrderedByFireTime(t *testing.T) {
	tt := New(HandlerFunc(func(context.Context, JobKey) error { return nil }))
	now := time.Now()

	_ = tt.Schedule(VoiceCall(1), now.Add(3*time.Hour))
	_ = tt.Schedule(SMSReminder(1), now.Add(2*time.Hour))
	_ = tt.Schedule(SMSReminder(2), now.Add(time.Hour))

	jobs := tt.List()
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	want := []string{"sms_reminder:2", "sms_reminder:1", "voice_call:1"}
	for i, id := range want {
		if jobs[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, jobs[i].ID)
		}
	}
}

func TestScheduleDaily(t *testing.T) {
	base := time.Date(2030, 3, 10, 9, 30, 0, 0, time.UTC)
	tt := New(HandlerFunc(func(context.Context, JobKey) error { return nil }),
		WithClock(func() time.Time { return base }),
		WithLocation(time.UTC),
	)

	if err := tt.ScheduleDaily(DailyCheckin("morning"), "08:00"); err != nil {
		t.Fatalf("schedule daily: %v", err)
	}
	if err := tt.ScheduleDaily(DailyCheckin("night"), "21:00"); err != nil {
		t.Fatalf("schedule daily: %v", err)
	}
	if err := tt.ScheduleDaily(DailyCheckin("bad"), "25:00"); err == nil {
		t.Fatal("expected invalid hour error")
	}

	jobs := tt.List()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "daily_checkin:night" || !jobs[0].FireAt.Equal(time.Date(2030, 3, 10, 21, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first job %+v", jobs[0])
	}
	if !jobs[1].FireAt.Equal(time.Date(2030, 3, 11, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("morning check-in should roll to the next day: %+v", jobs[1])
	}
}

func TestBuildDailySpec(t *testing.T) {
	cases := map[string]string{"08:00": "0 8 * * *", "21:05": "5 21 * * *", " 7:30 ": "30 7 * * *"}
	for in, want := range cases {
		got, err := buildDailySpec(in)
		if err != nil || got != want {
			t.Fatalf("buildDailySpec(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "8", "24:00", "12:60", "aa:bb"} {
		if _, err := buildDailySpec(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestStopHasBoundedGrace(t *testing.T) {
	started := make(chan struct{})
	released := make(chan struct{})
	tt := New(HandlerFunc(func(ctx context.Context, _ JobKey) error {
		close(started)
		<-ctx.Done()
		close(released)
		return ctx.Err()
	}))
	tt.Start()

	if err := tt.Schedule(VoiceCall(5), time.Now().Add(10*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tt.Stop(ctx); err == nil {
		t.Fatal("expected grace period error")
	}
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("in-flight handler context was not canceled")
	}

	if err := tt.Schedule(VoiceCall(6), time.Now().Add(time.Hour)); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after stop, got %v", err)
	}
}

func TestOneShotHandsOutSingleActivation(t *testing.T) {
	at := time.Date(2030, 5, 14, 10, 0, 0, 0, time.UTC)

	onTime := &oneShot{at: at}
	if got := onTime.Next(at.Add(-time.Minute)); !got.Equal(at) {
		t.Fatalf("armed early: Next = %v, want %v", got, at)
	}
	if got := onTime.Next(at.Add(-time.Second)); !got.Equal(at) {
		t.Fatalf("re-armed early: Next = %v, want %v", got, at)
	}
	// Recomputed right after the run loop started the job.
	if got := onTime.Next(at); !got.IsZero() {
		t.Fatalf("after run: Next = %v, want zero", got)
	}

	overdue := &oneShot{at: at}
	now := at.Add(time.Second)
	if got := overdue.Next(now); !got.Equal(now) {
		t.Fatalf("overdue: Next = %v, want %v", got, now)
	}
	for i := 0; i < 3; i++ {
		if got := overdue.Next(now.Add(time.Duration(i) * time.Millisecond)); !got.IsZero() {
			t.Fatalf("overdue pass %d: Next = %v, want zero", i, got)
		}
	}

	claimed := &oneShot{at: at}
	claimed.claim()
	if got := claimed.Next(at.Add(-time.Hour)); !got.IsZero() {
		t.Fatalf("claimed: Next = %v, want zero", got)
	}
}

func TestOverdueJobRunsOnceWhenLoopStarts(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	var fired atomic.Int32
	tt := New(HandlerFunc(func(context.Context, JobKey) error {
		fired.Add(1)
		return nil
	}), WithClock(clock))

	// Registered while the loop is down, due by the time it starts.
	if err := tt.Schedule(SMSReminder(9), time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	tt.Start()
	defer stopNow(t, tt)

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}
	if tt.Len() != 0 {
		t.Fatalf("overdue job still listed: %d", tt.Len())
	}
}
