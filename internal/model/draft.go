package model

import "time"

// TaskDraft is a task parsed out of free text, before it is stored.
// A zero DueAt means the text named no time.
type TaskDraft struct {
	Description string    `json:"task_description"`
	DueAt       time.Time `json:"scheduled_time"`
}
