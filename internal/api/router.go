package api

import (
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "personal-assistant/internal/api/handler"
	"personal-assistant/internal/httpcontext"
)

type Handlers struct {
	Health    *apiHandler.HealthHandler
	Scheduler *apiHandler.SchedulerHandler
	Task      *apiHandler.TaskHandler
	Gateway   *apiHandler.GatewayHandler
}

func New(handlers Handlers) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	r.GET("/scheduler/jobs", handlers.Scheduler.Jobs)

	r.GET("/tasks", handlers.Task.GetTasks)
	r.POST("/tasks/create", handlers.Task.CreateTask)
	r.POST("/tasks/query", handlers.Task.QueryTasks)
	r.GET("/tasks/{id}", handlers.Task.GetTask)
	r.PUT("/tasks/{id}/complete", handlers.Task.CompleteTask)
	r.DELETE("/tasks/{id}", handlers.Task.DeleteTask)

	r.POST("/test/sms", handlers.Gateway.TestSMS)
	r.POST("/test/call", handlers.Gateway.TestCall)

	return r
}

// AccessLog stamps X-Request-ID on every response, unmatched routes included,
// and logs one line per request.
func AccessLog(next fasthttp.RequestHandler, logger *zap.Logger) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)

		reqID := httpcontext.RequestID(ctx)
		ctx.Response.Header.Set(httpcontext.HeaderRequestID, reqID)
		logger.Info("http request",
			zap.String("request_id", reqID),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("took", time.Since(start)),
		)
	}
}
