package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"personal-assistant/internal/model"
)

const (
	msgUnauthorized     = "Sorry, you are not authorized to use this bot."
	msgNoTasksScheduled = "You don't have any tasks scheduled."
	msgNoPendingTasks   = "You have no pending tasks! 🎉"
	msgChatFallback     = "I'm here to help! You can create tasks by telling me what you need to do, or just chat with me."
	msgProcessingTask   = "🤔 Processing your task..."
	msgTaskFailed       = "❌ Sorry, I had trouble processing your task. Please try again or use the format: 'Task description at time'"
	msgQueryFailed      = "❌ Sorry, I had trouble retrieving your tasks. Please try again."
	msgListFailed       = "❌ Error loading tasks."
	msgTaskNotFound     = "❌ Task not found or doesn't belong to you."
	msgInvalidTaskID    = "❌ Invalid task ID. Please provide a number."
	msgVoiceUnclear     = "🎤❌ I couldn't understand your voice message. Please try again or type your message instead."
	msgVoiceFailed      = "❌ Sorry, I had trouble processing your voice message. Please try again or type your message."
	msgUnknownCommand   = "Unknown command. Use /help to see what I can do."

	// pendingListLimit caps the interactive task list.
	pendingListLimit = 10
)

// checkinGreeting is sent when a check-in window holds no tasks.
func checkinGreeting(slot, owner string) string {
	switch slot {
	case SlotMorning:
		return fmt.Sprintf("Good morning, %s! 🌅 You have no tasks scheduled for today. Enjoy your free day!", owner)
	case SlotAfternoon:
		return fmt.Sprintf("Good afternoon, %s! ☀️ No tasks on your schedule right now. Perfect time to relax or plan ahead.", owner)
	case SlotEvening:
		return fmt.Sprintf("Good evening, %s! 🌆 No pending tasks for today. You're all caught up!", owner)
	case SlotNight:
		return fmt.Sprintf("Good night, %s! 🌙 No incomplete tasks today. Great job staying on top of things!", owner)
	default:
		return "You have no tasks scheduled."
	}
}

// checkinFallback is the summary used when the oracle is unavailable.
func checkinFallback(slot string, tasks []model.Task, loc *time.Location) string {
	title := slot
	if title != "" {
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	return fmt.Sprintf("%s update:\n%s", title, model.Digest(tasks, loc))
}

// formatTaskList renders the interactive pending list with one button row per task.
func formatTaskList(tasks []model.Task, now time.Time) (string, [][]Button) {
	var sb strings.Builder
	sb.WriteString("📋 <b>Your Pending Tasks:</b>\n\n")

	buttons := make([][]Button, 0, len(tasks))
	for i, task := range tasks {
		n := i + 1
		sb.WriteString(formatTask(n, task, now))
		buttons = append(buttons, []Button{
			{Label: fmt.Sprintf("✅ Complete #%d", n), Data: fmt.Sprintf("%s%d", cbCompletePrefix, task.ID)},
			{Label: fmt.Sprintf("❌ Cancel #%d", n), Data: fmt.Sprintf("%s%d", cbCancelPrefix, task.ID)},
		})
	}
	return strings.TrimSpace(sb.String()), buttons
}

func formatTask(n int, task model.Task, now time.Time) string {
	due := task.DueAt.In(now.Location())

	icon := "🟢"
	switch {
	case now.After(due):
		icon = "⚠️"
	case due.Sub(now) <= time.Hour:
		icon = "⏳"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d. %s <b>%s</b>\n", n, icon, escape(task.Description)))
	sb.WriteString(fmt.Sprintf("   ⏰ Due: %s\n\n", due.Format("01/02 15:04")))
	return sb.String()
}

// formatCreated confirms a new task and lists the reminder jobs that are live for it.
func formatCreated(task *model.Task, lead time.Duration, loc *time.Location, sms, call bool, smsStatus string) string {
	due := task.DueAt.In(loc)
	var sb strings.Builder
	sb.WriteString("✅ <b>Task Added Successfully!</b>\n\n")
	sb.WriteString(fmt.Sprintf("📝 <b>Task</b>: %s\n", escape(task.Description)))
	sb.WriteString(fmt.Sprintf("⏰ <b>Scheduled</b>: %s\n", due.Format("2006-01-02 at 15:04")))
	sb.WriteString(fmt.Sprintf("🆔 <b>Task ID</b>: %d\n\n", task.ID))

	if !sms && !call {
		sb.WriteString("⚠️ No reminders scheduled, the task time has already passed.\n\n")
		sb.WriteString("📲 " + smsStatus)
		return sb.String()
	}
	sb.WriteString("📱 <b>Reminders scheduled:</b>\n")
	if sms {
		sb.WriteString(fmt.Sprintf("• SMS reminder %s before (%s)\n", humanizeLead(lead), due.Add(-lead).Format("15:04")))
	} else {
		sb.WriteString(fmt.Sprintf("• No SMS reminder, the task is less than %s away\n", humanizeLead(lead)))
	}
	if call {
		sb.WriteString(fmt.Sprintf("• Voice call at task time (%s)\n", due.Format("15:04")))
	}
	sb.WriteString("\n📲 " + smsStatus)
	return sb.String()
}

// confirmationSMS is texted to the user after a task is created.
func confirmationSMS(task *model.Task, loc *time.Location) string {
	return fmt.Sprintf("Task created: '%s' scheduled for %s. You'll get reminders via SMS and voice call.",
		task.Description, task.DueAt.In(loc).Format("01/02 at 15:04"))
}

func humanizeLead(lead time.Duration) string {
	if lead%time.Hour == 0 {
		h := int(lead / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(lead/time.Minute))
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
