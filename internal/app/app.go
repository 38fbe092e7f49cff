package app

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"personal-assistant/internal/api"
	apiHandler "personal-assistant/internal/api/handler"
	"personal-assistant/internal/bot"
	"personal-assistant/internal/config"
	"personal-assistant/internal/httpcontext"
	"personal-assistant/internal/lifecycle"
	"personal-assistant/internal/notify"
	"personal-assistant/internal/oracle"
	"personal-assistant/internal/repository"
	"personal-assistant/internal/service"
	"personal-assistant/internal/timetable"
)

const (
	// oracleRetries covers transient OpenAI failures.
	oracleRetries = 2
	// botStopGrace bounds the wait for the Telegram long poll, which cannot be
	// interrupted once a getUpdates request is in flight.
	botStopGrace = 5 * time.Second
)

// poller delivers inbound updates to a handler until ctx is canceled.
type poller interface {
	Start(ctx context.Context, h bot.Handler) error
}

// App owns every long-lived component. It is built once at startup and
// replaces process-wide singletons.
type App struct {
	cfg    config.Config
	loc    *time.Location
	logger *zap.Logger

	db        *gorm.DB
	tasks     *repository.TaskRepository
	jobs      *timetable.Timetable
	gateway   *notify.Mnotify
	oracle    *oracle.OpenAI
	reminders *service.ReminderEngine
	taskOps   *service.TaskService
	router    *service.Router
	checkins  *service.CheckinService
	bot       *bot.Bot
	server    *fasthttp.Server

	manager  *lifecycle.Manager
	botGrace time.Duration
}

// New opens the database and constructs every component. Nothing runs until Start.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	a := &App{
		cfg:      cfg,
		loc:      loc,
		logger:   logger,
		manager:  lifecycle.New(cfg.ShutdownTimeout, logger),
		botGrace: botStopGrace,
	}

	a.db, err = repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.manager.Add("database", a.closeDB)
	a.tasks = repository.NewTaskRepository(a.db)

	dispatcher := service.NewDispatcher()
	a.jobs = timetable.New(dispatcher,
		timetable.WithLogger(logger.Named("timetable")),
		timetable.WithLocation(loc),
	)

	a.gateway = notify.NewMnotify(notify.Config{
		APIKey:        cfg.Mnotify.APIKey,
		BaseURL:       cfg.Mnotify.BaseURL,
		Recipient:     cfg.Mnotify.PhoneNumber,
		Sender:        cfg.Mnotify.Sender,
		RecordingPath: cfg.Mnotify.RecordingPath,
		Lead:          cfg.Reminder.Lead,
		SMSTimeout:    cfg.Mnotify.SMSTimeout,
		VoiceTimeout:  cfg.Mnotify.VoiceTimeout,
	}, logger)
	if !a.gateway.Configured() {
		logger.Warn("mNotify is not configured, SMS and voice reminders will fail")
	}

	a.oracle = oracle.New(oracle.Config{
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.OpenAI.Model,
		BaseURL:    cfg.OpenAI.BaseURL,
		Timeout:    cfg.OpenAI.Timeout,
		OwnerName:  cfg.OwnerName,
		Location:   loc,
		MaxRetries: oracleRetries,
	}, logger)
	if !a.oracle.Enabled() {
		logger.Warn("OpenAI is not configured, falling back to keyword routing")
	}

	a.reminders = service.NewReminderEngine(a.tasks, a.jobs, a.gateway, service.ReminderConfig{
		Lead:     cfg.Reminder.Lead,
		Location: loc,
	}, logger.Named("reminders"))
	a.taskOps = service.NewTaskService(a.tasks, a.reminders, a.oracle, service.TaskConfig{
		DefaultDueOffset: cfg.Reminder.DefaultDueOffset,
		Location:         loc,
	}, logger.Named("tasks"))

	a.bot, err = bot.New(cfg.TelegramToken, logger)
	if err != nil {
		_ = a.closeDB(context.Background())
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a.router = service.NewRouter(a.taskOps, a.oracle, a.gateway, a.bot, service.RouterConfig{
		AuthorizedUserID: cfg.AuthorizedUserID,
		Location:         loc,
	}, logger.Named("router"))
	a.checkins = service.NewCheckinService(a.tasks, a.oracle, a.bot, service.CheckinConfig{
		UserID:    cfg.AuthorizedUserID,
		OwnerName: cfg.OwnerName,
		Location:  loc,
	}, logger.Named("checkins"))
	dispatcher.Bind(a.reminders, a.checkins)

	if cfg.HTTP.Enabled {
		a.server = a.newServer()
	}
	return a, nil
}

func (a *App) newServer() *fasthttp.Server {
	ctxAdapter := httpcontext.NewAdapter(a.cfg.HTTP.RequestTimeout)
	handlers := api.Handlers{
		Health: apiHandler.NewHealthHandler(apiHandler.Checks{
			Database:  a.tasks.Ping,
			OpenAI:    oracleCheck(a.oracle),
			Mnotify:   gatewayCheck(a.gateway),
			Telegram:  a.bot.Running,
			Scheduler: a.jobs.Running,
		}, ctxAdapter, a.logger),
		Scheduler: apiHandler.NewSchedulerHandler(a.reminders, ctxAdapter, a.logger),
		Task:      apiHandler.NewTaskHandler(a.taskOps, ctxAdapter, a.logger),
		Gateway:   apiHandler.NewGatewayHandler(a.gateway, a.loc, ctxAdapter, a.logger),
	}
	r := api.New(handlers)

	return &fasthttp.Server{
		Handler:      api.AccessLog(r.Handler, a.logger.Named("http")),
		ReadTimeout:  a.cfg.HTTP.RequestTimeout,
		WriteTimeout: a.cfg.HTTP.RequestTimeout,
		IdleTimeout:  time.Minute,
		Name:         "personal-assistant",
	}
}

// Start restores reminder jobs from the store, registers the daily check-ins
// and launches the timetable, the bot and the HTTP server. A failing bot or
// server calls stop.
func (a *App) Start(ctx context.Context, stop context.CancelFunc) error {
	restored, err := a.reminders.RescheduleAll(ctx)
	if err != nil {
		a.logger.Error("restore reminders", zap.Error(err))
	} else {
		a.logger.Info("reminders restored", zap.Int("jobs", restored))
	}
	if err := a.checkins.Register(a.jobs); err != nil {
		return fmt.Errorf("check-ins: %w", err)
	}

	a.launch(ctx, stop, a.bot)
	a.logger.Info("assistant started", zap.String("timezone", a.loc.String()))
	return nil
}

// launch starts the background components. The timetable is added last so it
// drains first, while the bot and the database its handlers need are still up.
// Shutdown then stops the HTTP server, the bot and the database.
func (a *App) launch(ctx context.Context, stop context.CancelFunc, updates poller) {
	a.manager.Go("telegram_bot",
		func() error { return updates.Start(ctx, a.router) },
		func(err error) {
			a.logger.Error("telegram bot stopped", zap.Error(err))
			stop()
		},
		lifecycle.WithGrace(a.botGrace),
	)

	if a.server != nil {
		addr := a.cfg.Address()
		go func() {
			a.logger.Info("server started", zap.String("address", addr))
			if err := a.server.ListenAndServe(addr); err != nil {
				a.logger.Error("server crashed", zap.Error(err))
				stop()
			}
		}()
		a.manager.Add("http_server", a.server.ShutdownWithContext)
	}

	a.jobs.Start()
	a.manager.Add("timetable", a.jobs.Stop)
}

// WithSignals returns a context canceled on SIGINT or SIGTERM.
func (a *App) WithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return a.manager.WithSignals(parent)
}

// Shutdown stops every started component, timetable first and database last.
func (a *App) Shutdown(ctx context.Context) error {
	return a.manager.Shutdown(ctx)
}

func (a *App) closeDB(context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func oracleCheck(o *oracle.OpenAI) func(context.Context) error {
	return func(ctx context.Context) error {
		if !o.Enabled() {
			return apiHandler.ErrNotConfigured
		}
		return o.Ping(ctx)
	}
}

func gatewayCheck(m *notify.Mnotify) func(context.Context) error {
	return func(ctx context.Context) error {
		if !m.Configured() {
			return apiHandler.ErrNotConfigured
		}
		_, err := m.Balance(ctx)
		return err
	}
}
