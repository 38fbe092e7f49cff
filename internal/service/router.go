package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	cbCompletePrefix = "complete_"
	cbCancelPrefix   = "cancel_"
	cbShowTasks      = "show_tasks"
)

// ErrUnauthorized is returned to the channel for callbacks from unknown users.
var ErrUnauthorized = errors.New("not authorized")

// RouterConfig carries the router settings.
type RouterConfig struct {
	AuthorizedUserID string
	Location         *time.Location
}

// Router classifies inbound messages and dispatches them to task operations or chat.
// It keeps no state between messages.
type Router struct {
	tasks      *TaskService
	oracle     Oracle
	notifier   Notifier
	channel    Channel
	authorized string
	loc        *time.Location
	logger     *zap.Logger
}

func NewRouter(tasks *TaskService, oracle Oracle, notifier Notifier, channel Channel, cfg RouterConfig, logger *zap.Logger) *Router {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		tasks:      tasks,
		oracle:     oracle,
		notifier:   notifier,
		channel:    channel,
		authorized: strings.TrimSpace(cfg.AuthorizedUserID),
		loc:        cfg.Location,
		logger:     logger,
	}
}

// Authorized reports whether userID may use the assistant.
func (r *Router) Authorized(userID string) bool {
	return r.authorized != "" && userID == r.authorized
}

// HandleText routes a free-text message.
func (r *Router) HandleText(ctx context.Context, userID, text string) error {
	if !r.Authorized(userID) {
		r.logger.Warn("unauthorized message", zap.String("user_id", userID))
		return r.send(ctx, userID, msgUnauthorized)
	}
	return r.process(ctx, userID, text)
}

func (r *Router) process(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	switch literalIntent(text) {
	case intentCancelAll:
		return r.cancelAll(ctx, userID)
	case intentCompleteAll:
		return r.completeAll(ctx, userID)
	case intentListTasks:
		return r.showTasks(ctx, userID)
	case intentQuery:
		return r.query(ctx, userID, text)
	}

	isTask, err := r.oracle.Classify(ctx, text)
	if err != nil {
		isTask = LooksLikeTask(text)
		r.logger.Warn("classification failed, using keywords", zap.Bool("task", isTask), zap.Error(err))
	}
	if isTask {
		return r.createTask(ctx, userID, text)
	}
	return r.chat(ctx, userID, text)
}

func (r *Router) createTask(ctx context.Context, userID, text string) error {
	if err := r.send(ctx, userID, msgProcessingTask); err != nil {
		r.logger.Warn("progress message failed", zap.Error(err))
	}

	task, err := r.tasks.CreateFromText(ctx, userID, text)
	if err != nil {
		r.logger.Error("create task", zap.Error(err))
		return r.send(ctx, userID, msgTaskFailed)
	}

	smsStatus := "✅ SMS confirmation sent"
	if err := r.notifier.SendSMS(ctx, confirmationSMS(task, r.loc)); err != nil {
		r.logger.Warn("sms confirmation failed", zap.Uint("task_id", task.ID), zap.Error(err))
		smsStatus = "❌ SMS confirmation failed"
	}

	sms, call := r.tasks.reminders.Scheduled(task.ID)
	return r.send(ctx, userID, formatCreated(task, r.tasks.reminders.lead, r.loc, sms, call, smsStatus))
}

func (r *Router) query(ctx context.Context, userID, text string) error {
	answer, _, err := r.tasks.Answer(ctx, userID, text)
	if err != nil {
		r.logger.Error("query tasks", zap.Error(err))
		return r.send(ctx, userID, msgQueryFailed)
	}
	return r.send(ctx, userID, escape(answer))
}

func (r *Router) chat(ctx context.Context, userID, text string) error {
	answer, err := r.oracle.Chat(ctx, text)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			r.logger.Warn("chat failed", zap.Error(err))
		}
		answer = msgChatFallback
	}
	return r.send(ctx, userID, escape(answer))
}

func (r *Router) showTasks(ctx context.Context, userID string) error {
	tasks, err := r.tasks.Pending(ctx, userID, pendingListLimit)
	if err != nil {
		r.logger.Error("list tasks", zap.Error(err))
		return r.send(ctx, userID, msgListFailed)
	}
	if len(tasks) == 0 {
		return r.send(ctx, userID, msgNoPendingTasks)
	}
	text, buttons := formatTaskList(tasks, r.tasks.now().In(r.loc))
	return r.channel.Send(ctx, userID, text, buttons)
}

func (r *Router) cancelAll(ctx context.Context, userID string) error {
	n, err := r.tasks.CancelAll(ctx, userID)
	if err != nil {
		r.logger.Error("bulk cancel", zap.Int("canceled", n), zap.Error(err))
		return r.send(ctx, userID, "❌ Error cancelling tasks. Please try again.")
	}
	if n == 0 {
		return r.send(ctx, userID, "You have no pending tasks to cancel.")
	}
	return r.send(ctx, userID, fmt.Sprintf("✅ Cancelled all %d pending tasks!\nAll reminders have been removed.", n))
}

func (r *Router) completeAll(ctx context.Context, userID string) error {
	n, err := r.tasks.CompleteAll(ctx, userID)
	if err != nil {
		r.logger.Error("bulk complete", zap.Int("completed", n), zap.Error(err))
		return r.send(ctx, userID, "❌ Error completing tasks. Please try again.")
	}
	if n == 0 {
		return r.send(ctx, userID, "You have no pending tasks to complete.")
	}
	return r.send(ctx, userID, fmt.Sprintf("✅ Marked all %d tasks as complete!\nGreat job staying on top of everything! 🎉", n))
}

// HandleCommand handles a slash command. command has no leading slash.
func (r *Router) HandleCommand(ctx context.Context, userID, command, args string) error {
	if !r.Authorized(userID) {
		r.logger.Warn("unauthorized command", zap.String("user_id", userID), zap.String("command", command))
		return r.send(ctx, userID, msgUnauthorized)
	}

	switch command {
	case "start":
		return r.send(ctx, userID, welcomeText(r.tasks.reminders.lead))
	case "help":
		return r.send(ctx, userID, helpText(r.tasks.reminders.lead, r.tasks.dueOffset))
	case "tasks":
		return r.showTasks(ctx, userID)
	case "complete":
		return r.completeByArg(ctx, userID, args)
	case "cancel":
		return r.cancelByArg(ctx, userID, args)
	default:
		return r.send(ctx, userID, msgUnknownCommand)
	}
}

func (r *Router) completeByArg(ctx context.Context, userID, args string) error {
	id, ok, err := r.parseIDArg(ctx, userID, args, "/complete")
	if !ok {
		return err
	}
	task, err := r.tasks.Complete(ctx, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.send(ctx, userID, msgTaskNotFound)
	}
	if err != nil {
		r.logger.Error("complete task", zap.Uint("task_id", id), zap.Error(err))
		return r.send(ctx, userID, "❌ Error completing task. Please try again.")
	}
	return r.send(ctx, userID, fmt.Sprintf("✅ Task completed: <b>%s</b>\n🎉 Great job! Reminders have been cancelled.", escape(task.Description)))
}

func (r *Router) cancelByArg(ctx context.Context, userID, args string) error {
	id, ok, err := r.parseIDArg(ctx, userID, args, "/cancel")
	if !ok {
		return err
	}
	task, err := r.tasks.Cancel(ctx, userID, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.send(ctx, userID, msgTaskNotFound)
	}
	if err != nil {
		r.logger.Error("cancel task", zap.Uint("task_id", id), zap.Error(err))
		return r.send(ctx, userID, "❌ Error cancelling task. Please try again.")
	}
	return r.send(ctx, userID, fmt.Sprintf("🗑️ Task cancelled: <b>%s</b>\n❌ Task has been removed and reminders cancelled.", escape(task.Description)))
}

// parseIDArg reads a task id argument. When ok is false the usage reply was already sent.
func (r *Router) parseIDArg(ctx context.Context, userID, args, usage string) (uint, bool, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false, r.send(ctx, userID, fmt.Sprintf("❌ Please provide a task ID. Usage: <code>%s &lt;task_id&gt;</code>", usage))
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, false, r.send(ctx, userID, msgInvalidTaskID)
	}
	return uint(id), true, nil
}

// HandleCallback handles an inline button press. Unknown users get ErrUnauthorized
// and no message.
func (r *Router) HandleCallback(ctx context.Context, userID, data string) error {
	if !r.Authorized(userID) {
		return ErrUnauthorized
	}

	switch {
	case data == cbShowTasks:
		return r.showTasks(ctx, userID)
	case strings.HasPrefix(data, cbCompletePrefix):
		id, err := parseTaskID(data, cbCompletePrefix)
		if err != nil {
			return err
		}
		task, err := r.tasks.Complete(ctx, userID, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.send(ctx, userID, "Task not found or already completed.")
		}
		if err != nil {
			r.logger.Error("complete task via button", zap.Uint("task_id", id), zap.Error(err))
			return r.send(ctx, userID, "❌ Error completing task.")
		}
		return r.send(ctx, userID, fmt.Sprintf("✅ Task completed: <b>%s</b>\nGreat job! Task marked as complete.", escape(task.Description)))
	case strings.HasPrefix(data, cbCancelPrefix):
		id, err := parseTaskID(data, cbCancelPrefix)
		if err != nil {
			return err
		}
		task, err := r.tasks.Cancel(ctx, userID, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.send(ctx, userID, "Task not found.")
		}
		if err != nil {
			r.logger.Error("cancel task via button", zap.Uint("task_id", id), zap.Error(err))
			return r.send(ctx, userID, "❌ Error cancelling task.")
		}
		return r.send(ctx, userID, fmt.Sprintf("🗑️ Task cancelled: <b>%s</b>\nTask has been removed and reminders cancelled.", escape(task.Description)))
	default:
		return fmt.Errorf("unknown callback data %q", data)
	}
}

func parseTaskID(data, prefix string) (uint, error) {
	raw := strings.TrimPrefix(data, prefix)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse task id %q: %w", raw, err)
	}
	return uint(id), nil
}

// HandleVoice transcribes a voice note, echoes the transcript and routes it as text.
func (r *Router) HandleVoice(ctx context.Context, userID string, fetch AudioSource) error {
	if !r.Authorized(userID) {
		return r.send(ctx, userID, msgUnauthorized)
	}

	path, cleanup, err := fetch(ctx)
	if err != nil {
		r.logger.Error("download voice note", zap.Error(err))
		return r.send(ctx, userID, msgVoiceFailed)
	}
	defer cleanup()

	transcript, err := r.oracle.Transcribe(ctx, path)
	transcript = strings.TrimSpace(transcript)
	if err != nil || transcript == "" {
		if err != nil {
			r.logger.Warn("transcription failed", zap.Error(err))
		}
		return r.send(ctx, userID, msgVoiceUnclear)
	}
	r.logger.Info("voice transcribed", zap.Int("chars", len(transcript)))

	if err := r.send(ctx, userID, fmt.Sprintf("🎤 I heard: \"%s\"\n\nProcessing your request...", escape(transcript))); err != nil {
		r.logger.Warn("transcript echo failed", zap.Error(err))
	}
	return r.process(ctx, userID, transcript)
}

func (r *Router) send(ctx context.Context, userID, text string) error {
	return r.channel.Send(ctx, userID, text, nil)
}

func welcomeText(lead time.Duration) string {
	return "🤖 <b>Welcome to your Personal Assistant Bot!</b>\n\n" +
		"I can help you manage your tasks with natural language.\n\n" +
		"📝 <b>Add tasks</b>: just tell me what you need to do\n" +
		"   • \"Remind me to call John at 4 PM\"\n" +
		"   • \"Finish report in 2 hours\"\n\n" +
		"📋 <b>Query tasks</b>: ask me about your tasks\n" +
		"   • \"What do I have to do today?\"\n" +
		"   • \"Show me my pending tasks\"\n\n" +
		"✅ /complete &lt;task_id&gt; marks a task as done\n" +
		"❌ /cancel &lt;task_id&gt; removes a task\n\n" +
		fmt.Sprintf("📱 I'll text you %s before each task and call you when it is due.\n\n", humanizeLead(lead)) +
		"Use /help for more, or just start typing your tasks!"
}

func helpText(lead, dueOffset time.Duration) string {
	return "🆘 <b>Help &amp; Commands</b>\n\n" +
		"<b>Adding tasks:</b>\n" +
		"• \"Call mom in 30 minutes\"\n" +
		"• \"Doctor appointment at 3 PM tomorrow\"\n\n" +
		"<b>Querying tasks:</b>\n" +
		"• \"What tasks do I have?\"\n" +
		"• \"Show me tomorrow's tasks\"\n\n" +
		"<b>Commands:</b>\n" +
		"• /start welcome message\n" +
		"• /help this message\n" +
		"• /tasks list pending tasks with buttons\n" +
		"• /complete &lt;id&gt; mark a task as complete\n" +
		"• /cancel &lt;id&gt; cancel a task\n\n" +
		"<b>Bulk operations:</b>\n" +
		"• \"cancel all tasks\"\n" +
		"• \"complete all tasks\"\n" +
		"• \"show my tasks\"\n\n" +
		"🎤 Voice messages work too. I'll transcribe them and handle the request.\n\n" +
		fmt.Sprintf("If you don't give a time, the task is due in %s.\n", humanizeLead(dueOffset)) +
		fmt.Sprintf("📱 SMS %s before each task, 📞 a call when it is due.", humanizeLead(lead))
}
