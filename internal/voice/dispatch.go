package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/amirbrooks/tasker-voice/internal/metrics"
)

// ErrTaskNotFound is returned by a TaskStore when the id no longer exists.
// The dispatcher treats it as a successful delete.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore is the task persistence the dispatcher mutates.
type TaskStore interface {
	Add(ctx context.Context, content string) (Task, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context) ([]Task, error)
}

// Speaker reads text aloud. Speak is fire-and-forget and replaces any
// utterance still playing.
type Speaker interface {
	Speak(text string)
}

// Severity grades a user-facing notice.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Notifier shows short feedback to the user.
type Notifier interface {
	Notify(message string, severity Severity)
}

// Motivator starts the fetch-and-show motivation flow. Implementations must
// return without waiting on network I/O.
type Motivator interface {
	Motivate(ctx context.Context)
}

// Outcome describes what one Dispatch call did.
type Outcome struct {
	Intent  Intent
	Task    *Task
	Match   MatchResult
	Cleared int
	Failed  int
	Spoken  string
	Err     error
}

// Dispatcher executes intents against injected collaborators. Speaker,
// Notifier, Motivator, Logger and Metrics may be nil.
type Dispatcher struct {
	Store     TaskStore
	Speaker   Speaker
	Notifier  Notifier
	Motivator Motivator
	Logger    *log.Logger
	Metrics   *metrics.Metrics
}

var discardLogger = log.New(io.Discard)

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger == nil {
		return discardLogger
	}
	return d.Logger
}

func (d *Dispatcher) notify(msg string, sev Severity) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Notify(msg, sev)
}

// Dispatch runs intent and reports the result. It never panics on
// collaborator failures; they are returned in Outcome.Err.
func (d *Dispatcher) Dispatch(ctx context.Context, intent Intent) Outcome {
	start := time.Now()
	d.logger().Debug("dispatching", "intent", intent.Kind, "text", intent.Text)

	var out Outcome
	switch intent.Kind {
	case IntentAddTask:
		out = d.addTask(ctx, intent.Text)
	case IntentMotivate:
		out = d.motivate(ctx)
	case IntentClearCompleted:
		out = d.clearCompleted(ctx)
	case IntentReadTasks:
		out = d.readTasks(ctx)
	case IntentDeleteByName:
		out = d.deleteByName(ctx, intent.Text)
	default:
		d.logger().Warn("unrecognized command", "text", intent.Text)
		d.notify("Didn't understand.", SeverityWarning)
		out = Outcome{Err: ErrEmptyInput}
	}
	out.Intent = intent
	d.Metrics.RecordCommand(intent.Kind.String(), time.Since(start).Seconds())
	return out
}

func (d *Dispatcher) addTask(ctx context.Context, text string) Outcome {
	content := strings.TrimSpace(text)
	if content == "" {
		d.logger().Warn("attempted to add empty task")
		d.notify("Task content cannot be empty.", SeverityWarning)
		return Outcome{Err: ErrEmptyInput}
	}
	task, err := d.Store.Add(ctx, content)
	if err != nil {
		cerr := &CollaboratorError{Op: "add", Err: err}
		d.logger().Error("add task failed", "err", err)
		d.notify("Error adding task: "+err.Error(), SeverityDanger)
		return Outcome{Err: cerr}
	}
	d.logger().Info("task added", "id", task.ID, "content", task.Content)
	d.notify(fmt.Sprintf("Added %q.", task.Content), SeveritySuccess)
	return Outcome{Task: &task}
}

func (d *Dispatcher) motivate(ctx context.Context) Outcome {
	if d.Motivator == nil {
		d.logger().Warn("motivation requested but no motivator configured")
		d.notify("Motivation is not available.", SeverityWarning)
		return Outcome{}
	}
	d.Motivator.Motivate(ctx)
	return Outcome{}
}

func (d *Dispatcher) clearCompleted(ctx context.Context) Outcome {
	tasks, err := d.Store.Query(ctx)
	if err != nil {
		d.logger().Error("query tasks failed", "err", err)
		d.notify("Error loading tasks: "+err.Error(), SeverityDanger)
		return Outcome{Err: &CollaboratorError{Op: "query", Err: err}}
	}

	var out Outcome
	var errs []error
	for _, t := range tasks {
		if !t.Completed {
			continue
		}
		if err := d.deleteTask(ctx, t); err != nil {
			out.Failed++
			errs = append(errs, err)
			continue
		}
		out.Cleared++
	}
	out.Err = errors.Join(errs...)

	switch {
	case out.Cleared == 0 && out.Failed == 0:
		d.notify("No completed tasks.", SeverityInfo)
	case out.Failed > 0:
		d.notify(fmt.Sprintf("Cleared %d completed task(s), %d failed", out.Cleared, out.Failed), SeverityWarning)
	default:
		d.notify(fmt.Sprintf("Cleared %d completed task(s)", out.Cleared), SeveritySuccess)
	}
	d.logger().Info("clear completed finished", "cleared", out.Cleared, "failed", out.Failed)
	return out
}

func (d *Dispatcher) readTasks(ctx context.Context) Outcome {
	tasks, err := d.Store.Query(ctx)
	if err != nil {
		d.logger().Error("query tasks failed", "err", err)
		d.notify("Error loading tasks: "+err.Error(), SeverityDanger)
		return Outcome{Err: &CollaboratorError{Op: "query", Err: err}}
	}
	text := Summary(tasks)
	d.logger().Debug("speaking", "text", text)
	if d.Speaker != nil {
		d.Speaker.Speak(text)
	} else {
		d.notify(text, SeverityInfo)
	}
	return Outcome{Spoken: text}
}

// Summary renders the read-aloud text for tasks.
func Summary(tasks []Task) string {
	if len(tasks) == 0 {
		return "You have no tasks."
	}
	noun := "tasks"
	if len(tasks) == 1 {
		noun = "task"
	}
	parts := make([]string, 0, len(tasks)+1)
	parts = append(parts, fmt.Sprintf("Okay, you have %d %s.", len(tasks), noun))
	for _, t := range tasks {
		prefix := ""
		if t.Completed {
			prefix = "Completed: "
		}
		parts = append(parts, prefix+t.Content+".")
	}
	return strings.Join(parts, " ")
}

func (d *Dispatcher) deleteByName(ctx context.Context, phrase string) Outcome {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		d.notify("Which task?", SeverityInfo)
		return Outcome{Err: ErrEmptyInput}
	}
	if utf8.RuneCountInString(phrase) < MinPhraseLength {
		d.logger().Debug("identifier too short", "phrase", phrase)
		d.notify("Task name too short.", SeverityWarning)
		d.Metrics.RecordResolution("too_short")
		return Outcome{Match: MatchResult{Distance: NoDistance}, Err: ErrTooShortIdentifier}
	}

	tasks, err := d.Store.Query(ctx)
	if err != nil {
		d.logger().Error("query tasks failed", "err", err)
		d.notify("Error loading tasks: "+err.Error(), SeverityDanger)
		return Outcome{Err: &CollaboratorError{Op: "query", Err: err}}
	}

	match := Resolve(phrase, tasks)
	if !match.Matched() {
		d.logger().Info("no task matched", "phrase", phrase, "distance", match.Distance)
		d.notify(fmt.Sprintf("No task like %q.", phrase), SeverityWarning)
		d.Metrics.RecordResolution("no_match")
		return Outcome{Match: match, Err: ErrNoMatch}
	}
	d.Metrics.RecordResolution("matched")

	d.logger().Info("match found", "phrase", phrase, "id", match.Task.ID, "content", match.Task.Content, "distance", match.Distance)
	if err := d.deleteTask(ctx, *match.Task); err != nil {
		d.notify("Error deleting task: "+err.Error(), SeverityDanger)
		return Outcome{Match: match, Err: err}
	}
	d.notify(fmt.Sprintf("Deleted %q.", match.Task.Content), SeveritySuccess)
	return Outcome{Match: match, Task: match.Task}
}

// deleteTask deletes by id. A task that is already gone counts as deleted.
func (d *Dispatcher) deleteTask(ctx context.Context, t Task) error {
	err := d.Store.Delete(ctx, t.ID)
	switch {
	case err == nil:
		d.Metrics.RecordDeletion("deleted")
		return nil
	case errors.Is(err, ErrTaskNotFound):
		d.logger().Debug("task already deleted", "id", t.ID)
		d.Metrics.RecordDeletion("absent")
		return nil
	default:
		d.logger().Error("delete task failed", "id", t.ID, "err", err)
		d.Metrics.RecordDeletion("failed")
		return &CollaboratorError{Op: "delete", TaskID: t.ID, Err: err}
	}
}
