package service

import "strings"

var (
	bulkCancelPhrases   = []string{"cancel all", "delete all", "remove all"}
	bulkCompletePhrases = []string{"complete all", "mark all complete", "finish all"}
	listPhrases         = []string{"show tasks", "see tasks", "list tasks", "my tasks", "view tasks"}

	queryPhrases = []string{
		"do i have", "what tasks", "any tasks", "tasks today", "tasks for",
		"show me", "list my", "what do i", "what are my", "check my",
		"i want to know if i have", "want to see", "i want to see",
	}

	// Used only when the oracle cannot classify a message.
	queryIndicators = []string{
		"do i have", "what tasks", "show me", "list my", "any tasks",
		"tasks today", "tasks for", "what do i", "what are my",
		"check my", "view my", "see my", "have i got", "got any",
	}
	taskIndicators = []string{"remind me to", "schedule", "book", "set reminder", "i need to", "i have to"}
)

// intent is the route a message takes before the oracle is consulted.
type intent int

const (
	intentUnknown intent = iota
	intentCancelAll
	intentCompleteAll
	intentListTasks
	intentQuery
)

// literalIntent matches the fixed phrases. First match wins.
func literalIntent(text string) intent {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, bulkCancelPhrases):
		return intentCancelAll
	case containsAny(lower, bulkCompletePhrases):
		return intentCompleteAll
	case containsAny(lower, listPhrases):
		return intentListTasks
	case containsAny(lower, queryPhrases):
		return intentQuery
	default:
		return intentUnknown
	}
}

// LooksLikeTask is the keyword classifier used when the oracle is down.
// Anything without a clear task phrase is treated as conversation.
func LooksLikeTask(text string) bool {
	lower := strings.ToLower(text)
	if containsAny(lower, queryIndicators) {
		return false
	}
	return containsAny(lower, taskIndicators)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
