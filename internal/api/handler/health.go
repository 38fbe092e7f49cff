package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"personal-assistant/internal/api/transport"
	"personal-assistant/internal/httpcontext"
)

const checkTimeout = 10 * time.Second

// ErrNotConfigured is returned by a check whose dependency is switched off.
var ErrNotConfigured = errors.New("not configured")

// Checks report the state of each dependency. Nil checks are reported as unknown.
type Checks struct {
	Database  func(ctx context.Context) error
	OpenAI    func(ctx context.Context) error
	Mnotify   func(ctx context.Context) error
	Telegram  func() bool
	Scheduler func() bool
}

type HealthHandler struct {
	baseHandler
	checks Checks
	now    func() time.Time
}

func NewHealthHandler(checks Checks, adapter *httpcontext.Adapter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		checks:      checks,
		now:         time.Now,
	}
}

// Check reports every dependency. Only a failed database makes the service unhealthy.
func (h *HealthHandler) Check(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()
	stdCtx, stop := context.WithTimeout(stdCtx, checkTimeout)
	defer stop()

	services := map[string]string{
		"database":     connection(stdCtx, h.checks.Database, "disconnected"),
		"openai":       connection(stdCtx, h.checks.OpenAI, "error"),
		"mnotify":      connection(stdCtx, h.checks.Mnotify, "disconnected"),
		"telegram_bot": running(h.checks.Telegram),
		"scheduler":    running(h.checks.Scheduler),
	}
	payload := transport.HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
		Services:  services,
	}

	if services["database"] == "connected" {
		h.respondSuccess(ctx, http.StatusOK, payload)
		return
	}
	payload.Status = "degraded"
	h.respondJSON(ctx, http.StatusServiceUnavailable, transport.NewError(codeDegraded, "dependencies unhealthy", payload))
}

func connection(ctx context.Context, check func(context.Context) error, failed string) string {
	if check == nil {
		return "unknown"
	}
	if err := check(ctx); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return "not_configured"
		}
		return failed
	}
	return "connected"
}

func running(check func() bool) string {
	if check == nil {
		return "unknown"
	}
	if check() {
		return "running"
	}
	return "stopped"
}
