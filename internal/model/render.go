package model

import (
	"fmt"
	"strings"
	"time"
)

// TaskLines renders one plain line per task, e.g.
// "- pay rent (scheduled for 2030-05-14 11:00, pending)".
func TaskLines(tasks []Task, loc *time.Location) string {
	lines := make([]string, 0, len(tasks))
	for _, task := range tasks {
		state := "pending"
		if task.IsCompleted {
			state = "completed"
		}
		lines = append(lines, fmt.Sprintf("- %s (scheduled for %s, %s)",
			task.Description, task.DueAt.In(loc).Format("2006-01-02 15:04"), state))
	}
	return strings.Join(lines, "\n")
}

// Digest lists pending tasks with their due time and counts the completed ones.
func Digest(tasks []Task, loc *time.Location) string {
	var (
		sb        strings.Builder
		completed int
	)
	for _, task := range tasks {
		if task.IsCompleted {
			completed++
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("Pending tasks:\n")
		}
		sb.WriteString(fmt.Sprintf("• %s (due: %s)\n", task.Description, task.DueAt.In(loc).Format("15:04")))
	}
	if completed > 0 {
		sb.WriteString(fmt.Sprintf("\nCompleted today: %d tasks ✅", completed))
	}
	return strings.TrimSpace(sb.String())
}
