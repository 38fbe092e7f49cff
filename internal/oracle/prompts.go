package oracle

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"personal-assistant/internal/model"
)

func classifyPrompt(text string) prompt {
	return prompt{
		system: "You separate requests to create a task from questions about existing tasks and general chat. Classify carefully.",
		user: fmt.Sprintf(`Classify the message below as TASK or QUERY.

TASK means the user wants a new task or reminder created, for example
"Remind me to call John at 3pm", "Schedule a meeting tomorrow", "I need to buy groceries".
These usually name what to do and often when.

QUERY means anything else: questions about existing tasks ("Do I have tasks today?",
"What tasks do I have?", "Show my tasks"), greetings, small talk and general questions.

Message: %q

Answer with exactly one word: TASK or QUERY.`, text),
		temperature: 0.1,
		maxTokens:   10,
	}
}

func extractPrompt(text string, now time.Time) prompt {
	return prompt{
		system: "You turn task requests into JSON. Reply with JSON only.",
		user: fmt.Sprintf(`Current time: %s

Read the task request below and reply with a JSON object:
{"task_description": "<short, clear description>", "scheduled_time": "<ISO 8601 datetime>"}

Rules:
- No time mentioned: use one hour from now.
- Relative times ("in 2 hours", "in 30 minutes") are added to the current time.
- A clock time without a date ("at 4 PM") means today.
- "tomorrow" and named days resolve to the matching date.

Request: %q`, now.Format("2006-01-02 15:04:05 -07:00"), text),
		temperature: 0.1,
		maxTokens:   200,
	}
}

func summarizePrompt(query, tasks string) prompt {
	return prompt{
		system: "You are a personal assistant answering questions about the user's tasks.",
		user: fmt.Sprintf(`Question: %q

Tasks:
%s

Answer the question from these tasks in a friendly, conversational way.`, query, tasks),
		temperature: 0.7,
		maxTokens:   300,
	}
}

func dailyPrompt(owner, slot, tasks string) prompt {
	return prompt{
		system: fmt.Sprintf("You are %s's personal assistant sending daily task check-ins.", owner),
		user: fmt.Sprintf(`Write a short %s check-in message for %s about these tasks.

%s

Open with a greeting that fits the %s. Keep it warm and encouraging.`, slot, owner, tasks, slot),
		temperature: 0.7,
		maxTokens:   200,
	}
}

func chatPrompt(owner, text string) prompt {
	return prompt{
		system: fmt.Sprintf(`You are %[1]s's personal AI assistant. You are friendly and conversational.
You help manage tasks, answer questions and keep %[1]s company. Keep replies short and personal.
If the message sounds like something to do later, suggest adding it as a task.`, owner),
		user:        text,
		temperature: 0.8,
		maxTokens:   200,
	}
}

var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseDraft reads the extraction JSON. Zone-less times are read in loc; an
// unparseable time leaves DueAt zero.
func parseDraft(raw string, loc *time.Location) (model.TaskDraft, error) {
	body := stripFence(raw)
	if !gjson.Valid(body) {
		return model.TaskDraft{}, fmt.Errorf("extraction is not JSON: %q", raw)
	}
	desc := gjson.Get(body, "task_description")
	if !desc.Exists() || strings.TrimSpace(desc.String()) == "" {
		return model.TaskDraft{}, fmt.Errorf("extraction has no task_description: %q", raw)
	}

	draft := model.TaskDraft{Description: strings.TrimSpace(desc.String())}
	if when := strings.TrimSpace(gjson.Get(body, "scheduled_time").String()); when != "" {
		draft.DueAt = parseTime(when, loc)
	}
	return draft, nil
}

func parseTime(value string, loc *time.Location) time.Time {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// stripFence removes a markdown code fence around a JSON reply.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
