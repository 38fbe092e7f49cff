package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"personal-assistant/internal/api/transport"
	"personal-assistant/internal/httpcontext"
	"personal-assistant/internal/model"
	"personal-assistant/internal/repository"
)

const defaultListLimit = 50

// TaskOperations is the task surface the HTTP API needs.
type TaskOperations interface {
	List(ctx context.Context, userID string, filter repository.TaskFilter) ([]model.Task, error)
	Get(ctx context.Context, userID string, taskID uint) (*model.Task, error)
	CreateFromText(ctx context.Context, userID, input string) (*model.Task, error)
	Answer(ctx context.Context, userID, message string) (string, []model.Task, error)
	Complete(ctx context.Context, userID string, taskID uint) (*model.Task, error)
	Cancel(ctx context.Context, userID string, taskID uint) (*model.Task, error)
}

type TaskHandler struct {
	baseHandler
	tasks TaskOperations
}

func NewTaskHandler(tasks TaskOperations, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		tasks:       tasks,
	}
}

// GetTasks lists a user's tasks, newest due time first.
func (h *TaskHandler) GetTasks(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, err := requireParam(ctx, "user_id")
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	filter := repository.TaskFilter{
		Limit:  parseInt(param(ctx, "limit"), defaultListLimit),
		Newest: true,
	}
	if raw := param(ctx, "completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(ctx, stdCtx, errInvalid("completed must be true or false"))
			return
		}
		filter.Completed = &completed
	}

	tasks, err := h.tasks.List(stdCtx, userID, filter)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, tasks)
}

func (h *TaskHandler) GetTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, id, err := h.owned(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	task, err := h.tasks.Get(stdCtx, userID, id)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, task)
}

// CreateTask creates a task from natural-language input and schedules its reminders.
func (h *TaskHandler) CreateTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, err := requireParam(ctx, "user_id")
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	input, err := requireParam(ctx, "user_input")
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	task, err := h.tasks.CreateFromText(stdCtx, userID, input)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, task)
}

// QueryTasks answers a natural-language question about the user's tasks.
func (h *TaskHandler) QueryTasks(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, err := requireParam(ctx, "user_id")
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	query, err := requireParam(ctx, "query")
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	answer, tasks, err := h.tasks.Answer(stdCtx, userID, query)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.QueryResponse{
		Query:     query,
		Response:  answer,
		TaskCount: len(tasks),
	})
}

func (h *TaskHandler) CompleteTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, id, err := h.owned(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	task, err := h.tasks.Complete(stdCtx, userID, id)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.MessageResponse{Message: "Task marked as completed", Task: task})
}

func (h *TaskHandler) DeleteTask(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	userID, id, err := h.owned(ctx)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	if _, err := h.tasks.Cancel(stdCtx, userID, id); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.MessageResponse{Message: "Task deleted successfully"})
}

func (h *TaskHandler) owned(ctx *fasthttp.RequestCtx) (string, uint, error) {
	id, err := pathID(ctx)
	if err != nil {
		return "", 0, err
	}
	userID, err := requireParam(ctx, "user_id")
	if err != nil {
		return "", 0, err
	}
	return userID, id, nil
}
