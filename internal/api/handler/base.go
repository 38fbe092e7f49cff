package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"personal-assistant/internal/api/transport"
	"personal-assistant/internal/httpcontext"
	appLogger "personal-assistant/internal/logger"
	"personal-assistant/internal/service"
)

const (
	codeInvalid  = "INVALID"
	codeNotFound = "NOT_FOUND"
	codeGateway  = "GATEWAY_ERROR"
	codeInternal = "INTERNAL"
	codeDegraded = "DEGRADED"
)

// errInvalid marks a bad request parameter.
type errInvalid string

func (e errInvalid) Error() string { return string(e) }

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, stdCtx context.Context, err error) {
	status, code := mapError(err)
	if status >= http.StatusInternalServerError {
		appLogger.FromContext(stdCtx, h.logger).Error("request failed",
			zap.String("path", string(ctx.Path())), zap.Error(err))
	}
	h.respondJSON(ctx, status, transport.NewError(code, err.Error(), nil))
}

func mapError(err error) (int, string) {
	var invalid errInvalid
	switch {
	case errors.As(err, &invalid), errors.Is(err, service.ErrEmptyInput):
		return http.StatusBadRequest, codeInvalid
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// param reads name from the query string, then a JSON body, then a form body.
func param(ctx *fasthttp.RequestCtx, name string) string {
	if v := ctx.QueryArgs().Peek(name); len(v) > 0 {
		return strings.TrimSpace(string(v))
	}
	body := ctx.PostBody()
	if len(body) > 0 && gjson.ValidBytes(body) {
		if v := gjson.GetBytes(body, name); v.Exists() {
			return strings.TrimSpace(v.String())
		}
	}
	return strings.TrimSpace(string(ctx.PostArgs().Peek(name)))
}

func requireParam(ctx *fasthttp.RequestCtx, name string) (string, error) {
	v := param(ctx, name)
	if v == "" {
		return "", errInvalid("missing " + name)
	}
	return v, nil
}

func pathID(ctx *fasthttp.RequestCtx) (uint, error) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errInvalid("invalid task id " + strconv.Quote(raw))
	}
	return uint(id), nil
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
