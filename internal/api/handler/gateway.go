package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"personal-assistant/internal/api/transport"
	"personal-assistant/internal/httpcontext"
	appLogger "personal-assistant/internal/logger"
	"personal-assistant/internal/service"
)

const defaultTestMessage = "Test message from Personal Assistant Bot"

// GatewayHandler triggers the notification gateway by hand.
type GatewayHandler struct {
	baseHandler
	notifier service.Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewGatewayHandler(notifier service.Notifier, loc *time.Location, adapter *httpcontext.Adapter, logger *zap.Logger) *GatewayHandler {
	if loc == nil {
		loc = time.Local
	}
	return &GatewayHandler{
		baseHandler: newBaseHandler(adapter, logger),
		notifier:    notifier,
		loc:         loc,
		now:         time.Now,
	}
}

// TestSMS sends a reminder SMS for message, stamped with the current time.
func (h *GatewayHandler) TestSMS(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	message := param(ctx, "message")
	if message == "" {
		message = defaultTestMessage
	}
	stamp := h.now().In(h.loc).Format("2006-01-02 15:04")
	if err := h.notifier.SendReminder(stdCtx, message, stamp); err != nil {
		h.gatewayError(ctx, stdCtx, "test sms", err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.MessageResponse{Message: "SMS sent"})
}

// TestCall places a voice call with the configured recording.
func (h *GatewayHandler) TestCall(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.notifier.PlaceVoiceCall(stdCtx, ""); err != nil {
		h.gatewayError(ctx, stdCtx, "test call", err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.MessageResponse{Message: "Voice call placed"})
}

func (h *GatewayHandler) gatewayError(ctx *fasthttp.RequestCtx, stdCtx context.Context, op string, err error) {
	appLogger.FromContext(stdCtx, h.logger).Warn(op+" failed", zap.Error(err))
	h.respondJSON(ctx, http.StatusBadGateway, transport.NewError(codeGateway, err.Error(), nil))
}
