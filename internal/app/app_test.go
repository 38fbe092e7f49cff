package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	apiHandler "personal-assistant/internal/api/handler"
	"personal-assistant/internal/bot"
	"personal-assistant/internal/lifecycle"
	"personal-assistant/internal/notify"
	"personal-assistant/internal/oracle"
	"personal-assistant/internal/timetable"
)

func TestChecksReportMissingCredentials(t *testing.T) {
	ctx := context.Background()

	if err := oracleCheck(oracle.New(oracle.Config{}, nil))(ctx); !errors.Is(err, apiHandler.ErrNotConfigured) {
		t.Fatalf("oracle check = %v, want ErrNotConfigured", err)
	}
	if err := gatewayCheck(notify.NewMnotify(notify.Config{APIKey: "k"}, nil))(ctx); !errors.Is(err, apiHandler.ErrNotConfigured) {
		t.Fatalf("gateway check = %v, want ErrNotConfigured", err)
	}
}

func TestGatewayCheckQueriesBalance(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/balance" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(`{"status":"success","balance":"3.00"}`))
	}))
	defer srv.Close()

	check := gatewayCheck(notify.NewMnotify(notify.Config{
		APIKey:    "k",
		BaseURL:   srv.URL + "/api",
		Recipient: "233200000000",
	}, nil))
	if err := check(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}

	status = http.StatusUnauthorized
	if err := check(context.Background()); err == nil || errors.Is(err, apiHandler.ErrNotConfigured) {
		t.Fatalf("check = %v, want gateway failure", err)
	}
}

// stuckPoller stands in for a Telegram long poll that ignores cancellation.
type stuckPoller struct {
	release chan struct{}
	err     error
}

func (p stuckPoller) Start(context.Context, bot.Handler) error {
	<-p.release
	return p.err
}

func TestShutdownDrainsTimetableBeforeBotAndDatabase(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan error, 1)
	jobs := timetable.New(timetable.HandlerFunc(func(ctx context.Context, _ timetable.JobKey) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished <- ctx.Err()
		return nil
	}))

	a := &App{
		logger:   zap.NewNop(),
		jobs:     jobs,
		manager:  lifecycle.New(500*time.Millisecond, nil),
		botGrace: 50 * time.Millisecond,
	}
	var (
		handlerErr error
		handlerRan bool
	)
	a.manager.Add("database", func(context.Context) error {
		select {
		case handlerErr = <-finished:
			handlerRan = true
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	defer close(release)

	if err := jobs.Schedule(timetable.VoiceCall(1), time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	a.launch(ctx, cancel, stuckPoller{release: release})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job never started")
	}
	cancel()

	err := a.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !handlerRan {
		t.Fatal("database closed before the in-flight job finished")
	}
	if handlerErr != nil {
		t.Fatalf("in-flight job context canceled: %v", handlerErr)
	}
	if jobs.Running() {
		t.Fatal("timetable still running")
	}
}

func TestBotFailureRequestsStop(t *testing.T) {
	a := &App{
		logger:   zap.NewNop(),
		jobs:     timetable.New(timetable.HandlerFunc(func(context.Context, timetable.JobKey) error { return nil })),
		manager:  lifecycle.New(time.Second, nil),
		botGrace: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	close(release)
	a.launch(ctx, cancel, stuckPoller{release: release, err: errors.New("unauthorized")})

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bot failure did not cancel the app context")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
