package voice

import "strings"

// IntentKind identifies what a transcript asks for.
type IntentKind int

const (
	IntentAddTask IntentKind = iota
	IntentMotivate
	IntentClearCompleted
	IntentReadTasks
	IntentDeleteByName
	IntentUnrecognized
)

func (k IntentKind) String() string {
	switch k {
	case IntentAddTask:
		return "add_task"
	case IntentMotivate:
		return "motivate"
	case IntentClearCompleted:
		return "clear_completed"
	case IntentReadTasks:
		return "read_tasks"
	case IntentDeleteByName:
		return "delete_by_name"
	default:
		return "unrecognized"
	}
}

// Intent is the classified meaning of one transcript. Text carries the task
// content for AddTask, the spoken task name for DeleteByName and the raw
// transcript for Unrecognized.
type Intent struct {
	Kind IntentKind
	Text string
}

var (
	clearCompletedPhrases = []string{"clear completed", "remove finished", "delete completed"}
	readTasksPhrases      = []string{
		"read task", "read tasks",
		"read my task", "read my tasks",
		"what are my task", "what are my tasks",
		"list task", "list tasks",
	}
	deletePrefixes = []string{"delete task ", "remove task "}
)

// Classify maps a transcript to an Intent. Rules are checked in priority order
// and the first hit wins. Anything unrecognized becomes new task content with
// its original casing.
func Classify(transcript string) Intent {
	original := strings.TrimSpace(transcript)
	lower := strings.ToLower(original)

	if strings.Contains(lower, "motivate") || strings.Contains(lower, "motivation") {
		return Intent{Kind: IntentMotivate}
	}
	if containsAny(lower, clearCompletedPhrases) {
		return Intent{Kind: IntentClearCompleted}
	}
	if containsAny(lower, readTasksPhrases) {
		return Intent{Kind: IntentReadTasks}
	}
	for _, prefix := range deletePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return Intent{Kind: IntentDeleteByName, Text: strings.TrimSpace(lower[len(prefix):])}
		}
	}
	return Intent{Kind: IntentAddTask, Text: original}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
