package transport

import (
	"encoding/json"
	"time"
)

// Envelope wraps every API response.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "error",
		Code:   code,
		Error:  err,
		Meta:   meta,
	}
}

// String returns the JSON form for logging.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// JobInfo describes one scheduled job.
type JobInfo struct {
	ID          string    `json:"id"`
	NextRunTime time.Time `json:"next_run_time"`
	FuncName    string    `json:"func_name"`
}

type JobsResponse struct {
	Jobs      []JobInfo `json:"jobs"`
	TotalJobs int       `json:"total_jobs"`
}

type QueryResponse struct {
	Query     string `json:"query"`
	Response  string `json:"response"`
	TaskCount int    `json:"task_count"`
}

// MessageResponse carries a human-readable result and an optional task.
type MessageResponse struct {
	Message string      `json:"message"`
	Task    interface{} `json:"task,omitempty"`
}
