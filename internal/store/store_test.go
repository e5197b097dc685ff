package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := Open(t.TempDir())
	require.NoError(t, err)
	return ws
}

func TestOpenCreatesStatusDirs(t *testing.T) {
	ws := openTestWorkspace(t)
	for _, s := range []string{StatusOpen, StatusDone} {
		info, err := os.Stat(filepath.Join(ws.Root, "tasks", s))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	_, err := Open("  ")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAddTaskWritesFrontmatter(t *testing.T) {
	ws := openTestWorkspace(t)

	task, err := ws.AddTask("  Buy milk ")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(task.ID, "tsk_"))
	assert.Equal(t, "Buy milk", task.Content)
	assert.False(t, task.Completed)
	assert.Equal(t, filepath.Join(ws.Root, "tasks", StatusOpen), filepath.Dir(task.Path))

	raw, err := os.ReadFile(task.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "---\n"))
	assert.Contains(t, string(raw), "content: Buy milk")
	assert.Contains(t, string(raw), "completed: false")

	_, err = ws.AddTask("   ")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestListTasksCreationOrder(t *testing.T) {
	ws := openTestWorkspace(t)
	for _, c := range []string{"Buy milk", "Walk dog", "Call mom"} {
		_, err := ws.AddTask(c)
		require.NoError(t, err)
	}

	tasks, err := ws.ListTasks(ListFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Buy milk", tasks[0].Content)
	assert.Equal(t, "Walk dog", tasks[1].Content)
	assert.Equal(t, "Call mom", tasks[2].Content)
}

func TestSetCompletedMovesFile(t *testing.T) {
	ws := openTestWorkspace(t)
	task, err := ws.AddTask("Call mom")
	require.NoError(t, err)
	_, err = ws.AddTask("Buy milk")
	require.NoError(t, err)

	done, err := ws.SetCompleted(task.ID, true)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)
	assert.NoFileExists(t, task.Path)
	assert.FileExists(t, done.Path)

	finished, err := ws.ListTasks(ListFilter{Status: StatusDone})
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, task.ID, finished[0].ID)
	assert.True(t, finished[0].Completed)

	open, err := ws.ListTasks(ListFilter{Status: StatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Buy milk", open[0].Content)

	undone, err := ws.SetCompleted(task.ID, false)
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	assert.Nil(t, undone.CompletedAt)
	assert.NoFileExists(t, done.Path)
}

func TestDirectoryWinsOverFrontmatter(t *testing.T) {
	ws := openTestWorkspace(t)
	task, err := ws.AddTask("Walk dog")
	require.NoError(t, err)
	moved := filepath.Join(ws.Root, "tasks", StatusDone, filepath.Base(task.Path))
	require.NoError(t, os.Rename(task.Path, moved))

	got, err := ws.GetTaskByPrefix(task.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
}

func TestDeleteTask(t *testing.T) {
	ws := openTestWorkspace(t)
	task, err := ws.AddTask("Buy milk")
	require.NoError(t, err)

	require.NoError(t, ws.DeleteTask(task.ID))
	assert.NoFileExists(t, task.Path)

	assert.ErrorIs(t, ws.DeleteTask(task.ID), ErrNotFound)
	assert.ErrorIs(t, ws.DeleteTask(""), ErrInvalid)
}

func TestDeleteTaskRequiresFullID(t *testing.T) {
	ws := openTestWorkspace(t)
	task, err := ws.AddTask("Buy milk")
	require.NoError(t, err)

	assert.ErrorIs(t, ws.DeleteTask(task.ID[:8]), ErrNotFound)
	assert.FileExists(t, task.Path)
}

func TestGetTaskByPrefix(t *testing.T) {
	ws := openTestWorkspace(t)
	task, err := ws.AddTask("Buy milk")
	require.NoError(t, err)

	got, err := ws.GetTaskByPrefix(strings.ToLower(task.ID[4:]))
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)

	_, err = ws.GetTaskByPrefix("tsk_ZZZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ws.AddTask("Walk dog")
	require.NoError(t, err)
	_, err = ws.GetTaskByPrefix("tsk_")
	var conflict *MatchConflictError
	require.True(t, errors.As(err, &conflict))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, conflict.Matches, 2)
}

func TestGetTaskBySelector(t *testing.T) {
	ws := openTestWorkspace(t)
	milk, err := ws.AddTask("Buy milk")
	require.NoError(t, err)
	_, err = ws.AddTask("Buy milk and bread")
	require.NoError(t, err)
	_, err = ws.AddTask("Walk dog")
	require.NoError(t, err)

	got, err := ws.GetTaskBySelector("buy MILK")
	require.NoError(t, err)
	assert.Equal(t, milk.ID, got.ID)

	got, err = ws.GetTaskBySelector("dog")
	require.NoError(t, err)
	assert.Equal(t, "Walk dog", got.Content)

	got, err = ws.GetTaskBySelector(milk.ID)
	require.NoError(t, err)
	assert.Equal(t, milk.ID, got.ID)

	_, err = ws.GetTaskBySelector("buy")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = ws.GetTaskBySelector("feed cat")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddNote(t *testing.T) {
	ws := openTestWorkspace(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	restore := timeNow
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = restore })

	task, err := ws.AddTask("Plan trip")
	require.NoError(t, err)

	_, err = ws.AddNote(task.ID, "Book flights early.")
	require.NoError(t, err)
	_, err = ws.AddNote(task.ID, "Pack light.")
	require.NoError(t, err)

	got, err := ws.GetTaskByPrefix(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "## Notes\n\n- 2026-01-02T03:04:05Z: Book flights early.\n- 2026-01-02T03:04:05Z: Pack light.\n", got.Body)

	found, err := ws.ListTasks(ListFilter{Search: "flights"})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = ws.AddNote(task.ID, " ")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestListTasksSkipsBrokenFiles(t *testing.T) {
	ws := openTestWorkspace(t)
	_, err := ws.AddTask("Buy milk")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Root, "tasks", StatusOpen, "junk.md"), []byte("no frontmatter"), 0o644))

	tasks, err := ws.ListTasks(ListFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	_, err = ws.ListTasks(ListFilter{Status: "blocked"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestConcurrentAddsKeepUniqueIDs(t *testing.T) {
	ws := openTestWorkspace(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ws.AddTask("Task")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tasks, err := ws.ListTasks(ListFilter{})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, task := range tasks {
		assert.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true
	}
	assert.Len(t, tasks, 20)
}

func TestParseFrontmatterErrors(t *testing.T) {
	_, _, err := parseFrontmatter([]byte("plain text"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, _, err = parseFrontmatter([]byte("---\nid: x\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, _, err = parseFrontmatter([]byte("---\ncontent: x\n---\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	meta, body, err := parseFrontmatter([]byte("---\r\nid: tsk_1\r\ncontent: x\r\n---\r\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Schema)
	assert.Equal(t, "body\n", body)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "buy-milk", slugify("Buy  Milk!"))
	assert.Equal(t, "x", slugify("!!!"))
}
