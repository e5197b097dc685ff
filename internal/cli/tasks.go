package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirbrooks/tasker-voice/internal/store"
	"github.com/amirbrooks/tasker-voice/internal/voice"
)

func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text...>",
		Short: "Add a task",
		Args:  minArgs(1, `add "<text>"`),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.TrimSpace(strings.Join(args, " "))
			if content == "" {
				return usagef("task text is empty")
			}
			task, err := a.ws.AddTask(content)
			if err != nil {
				return err
			}
			a.logger.Info("task added", "id", task.ID)
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("task", map[string]any{"task": task})
			}
			a.printf("Added %s  %s\n", task.ID, task.Content)
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var filter store.ListFilter
	var all bool
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List tasks",
		Args:    exactArgs(0, "ls [--status open|done] [--all] [--search <text>]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				filter.Status = ""
			}
			tasks, err := a.ws.ListTasks(filter)
			if err != nil {
				return err
			}
			return a.printTasks(tasks)
		},
	}
	cmd.Flags().StringVar(&filter.Status, "status", store.StatusOpen, "open|done")
	cmd.Flags().BoolVar(&all, "all", false, "Include completed tasks")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Filter by text in content or notes")
	return cmd
}

func (a *app) printTasks(tasks []store.Task) error {
	switch {
	case a.gf.NDJSON:
		items := make([]any, 0, len(tasks))
		for i := range tasks {
			items = append(items, tasks[i])
		}
		return a.emitNDJSON("tasks", items)
	case a.gf.JSON:
		return a.emitJSON("tasks", map[string]any{"tasks": tasks})
	case a.gf.Plain:
		fmt.Fprintln(a.io.Out, "ID\tST\tCREATED\tCONTENT")
		for _, t := range tasks {
			fmt.Fprintf(a.io.Out, "%s\t%s\t%s\t%s\n", t.ID, t.StatusAbbrev(), createdString(t), t.Content)
		}
		return nil
	}
	if len(tasks) == 0 {
		a.printf("No tasks.\n")
		return nil
	}
	w := tabwriter.NewWriter(a.io.Out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tST\tCREATED\tCONTENT")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.IDShort(8), t.StatusAbbrev(), createdString(t), t.Content)
	}
	return w.Flush()
}

func createdString(t store.Task) string {
	if t.CreatedAt == nil {
		return "-"
	}
	return t.CreatedAt.Local().Format("2006-01-02 15:04")
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id-or-text>",
		Short: "Show a task and its notes",
		Args:  minArgs(1, "show <id-or-text>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.ws.GetTaskBySelector(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("task", map[string]any{"task": task, "body": task.Body})
			}
			fmt.Fprint(a.io.Out, task.RenderHuman())
			return nil
		},
	}
}

// newDoneCmd builds "done" when completed is true and "undo" otherwise.
func newDoneCmd(a *app, completed bool) *cobra.Command {
	use, short, verb := "done", "Mark a task completed", "Done"
	if !completed {
		use, short, verb = "undo", "Reopen a completed task", "Reopened"
	}
	return &cobra.Command{
		Use:   use + " <id-or-text>",
		Short: short,
		Args:  minArgs(1, use+" <id-or-text>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.ws.GetTaskBySelector(strings.Join(args, " "))
			if err != nil {
				return err
			}
			task, err := a.ws.SetCompleted(target.ID, completed)
			if err != nil {
				return err
			}
			a.logger.Info("task updated", "id", task.ID, "completed", task.Completed)
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("task", map[string]any{"task": task})
			}
			a.printf("%s %s  %s\n", verb, task.ID, task.Content)
			return nil
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id-or-text>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    minArgs(1, "rm <id-or-text>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.ws.GetTaskBySelector(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := a.ws.DeleteTask(task.ID); err != nil {
				return err
			}
			a.logger.Info("task deleted", "id", task.ID)
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("task", map[string]any{"deleted": task.ID})
			}
			a.printf("Deleted %s  %s\n", task.ID, task.Content)
			return nil
		},
	}
}

func newNoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> <text...>",
		Short: "Append a note to a task",
		Args:  minArgs(2, `note <id> "<text>"`),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			if text == "" {
				return usagef("note text is empty")
			}
			task, err := a.ws.AddNote(args[0], text)
			if err != nil {
				return err
			}
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("task", map[string]any{"task": task})
			}
			a.printf("Noted %s\n", task.ID)
			return nil
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "ask <id-or-text>",
		Short: "Ask the assistant how to approach a task",
		Args:  minArgs(1, "ask <id-or-text>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := a.ws.GetTaskBySelector(strings.Join(args, " "))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Backend.Timeout+time.Second)
			defer cancel()
			details, err := a.backend.AskAI(ctx, task.Content)
			if err != nil {
				a.notifier.Notify("AI error: "+err.Error(), voice.SeverityDanger)
				return reportedError{err}
			}
			if save && details != "" {
				if _, err := a.ws.AddNote(task.ID, details); err != nil {
					return err
				}
			}
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("details", map[string]any{"id": task.ID, "details": details})
			}
			fmt.Fprintln(a.io.Out, details)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", true, "Save the reply as a note on the task")
	return cmd
}
