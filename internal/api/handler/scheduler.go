package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"personal-assistant/internal/api/transport"
	"personal-assistant/internal/httpcontext"
	"personal-assistant/internal/timetable"
)

// JobLister exposes the live reminder and check-in jobs.
type JobLister interface {
	ListJobs() []timetable.Job
}

type SchedulerHandler struct {
	baseHandler
	jobs JobLister
}

func NewSchedulerHandler(jobs JobLister, adapter *httpcontext.Adapter, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		baseHandler: newBaseHandler(adapter, logger),
		jobs:        jobs,
	}
}

// Jobs lists every pending job ordered by next run time.
func (h *SchedulerHandler) Jobs(ctx *fasthttp.RequestCtx) {
	jobs := h.jobs.ListJobs()
	out := transport.JobsResponse{Jobs: make([]transport.JobInfo, 0, len(jobs)), TotalJobs: len(jobs)}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, transport.JobInfo{ID: j.ID, NextRunTime: j.FireAt, FuncName: j.Kind})
	}
	h.respondSuccess(ctx, http.StatusOK, out)
}
