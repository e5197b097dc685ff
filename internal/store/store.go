package store

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	timeNow     = func() time.Time { return time.Now().UTC() }
)

// MatchConflictError provides details when a selector matches multiple tasks.
// It still satisfies errors.Is(err, ErrConflict).
type MatchConflictError struct {
	Reason  string
	Matches []Task
}

func (e *MatchConflictError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "conflict"
	}
	return "conflict: " + e.Reason
}

func (e *MatchConflictError) Is(target error) bool {
	return target == ErrConflict
}

const (
	StatusOpen = "open"
	StatusDone = "done"
)

// Workspace is a directory of Markdown task files. Open tasks live under
// tasks/open and completed ones under tasks/done; the directory wins over
// the frontmatter when the two disagree.
type Workspace struct {
	Root string

	mu sync.Mutex
}

type TaskMeta struct {
	Schema      int        `yaml:"schema" json:"schema"`
	ID          string     `yaml:"id" json:"id"`
	Content     string     `yaml:"content" json:"content"`
	Completed   bool       `yaml:"completed" json:"completed"`
	CreatedAt   *time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `yaml:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

type Task struct {
	TaskMeta `json:",inline"`
	Path     string `json:"path"`
	Body     string `json:"-"`
}

type ListFilter struct {
	Status string // open|done, empty for both
	Search string
}

// Open opens the workspace rooted at root, creating its directories.
func Open(root string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("%w: workspace root is required", ErrInvalid)
	}
	ws := &Workspace{Root: expandHome(root)}
	for _, status := range []string{StatusOpen, StatusDone} {
		if err := os.MkdirAll(ws.statusDir(status), 0o755); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

func (w *Workspace) statusDir(status string) string {
	return filepath.Join(w.Root, "tasks", status)
}

func statusOf(completed bool) string {
	if completed {
		return StatusDone
	}
	return StatusOpen
}

func (w *Workspace) AddTask(content string) (*Task, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalid)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := timeNow()
	meta := TaskMeta{
		Schema:    1,
		ID:        "tsk_" + newULID(),
		Content:   content,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	filename := fmt.Sprintf("%s__%s.md", meta.ID, slugify(truncate(content, 48)))
	task := &Task{TaskMeta: meta, Path: filepath.Join(w.statusDir(StatusOpen), filename)}
	if err := writeTaskFile(task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTaskByPrefix returns the single task whose id starts with prefix
// (case-insensitive, with or without the tsk_ prefix).
func (w *Workspace) GetTaskByPrefix(prefix string) (*Task, error) {
	paths, err := w.findTasksByPrefix(prefix)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNotFound
	}
	if len(paths) > 1 {
		return nil, &MatchConflictError{Reason: "prefix", Matches: w.tasksFromPaths(paths)}
	}
	return w.readTask(paths[0])
}

// GetTaskBySelector resolves an id prefix first when the selector looks like
// an id, then an exact case-insensitive content match, then a substring match.
func (w *Workspace) GetTaskBySelector(selector string) (*Task, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, ErrInvalid
	}
	if isLikelyIDSelector(selector) {
		t, err := w.GetTaskByPrefix(selector)
		if !errors.Is(err, ErrNotFound) {
			return t, err
		}
	}
	tasks, err := w.ListTasks(ListFilter{})
	if err != nil {
		return nil, err
	}
	sel := strings.ToLower(selector)
	var exact, partial []Task
	for _, t := range tasks {
		content := strings.ToLower(strings.TrimSpace(t.Content))
		switch {
		case content == sel:
			exact = append(exact, t)
		case strings.Contains(content, sel):
			partial = append(partial, t)
		}
	}
	for _, matches := range [][]Task{exact, partial} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return &matches[0], nil
		default:
			return nil, &MatchConflictError{Reason: "selector", Matches: matches}
		}
	}
	return nil, ErrNotFound
}

// SetCompleted moves the task into the done or open directory and stamps it.
func (w *Workspace) SetCompleted(prefix string, completed bool) (*Task, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	task, err := w.GetTaskByPrefix(prefix)
	if err != nil {
		return nil, err
	}
	oldPath := task.Path
	newPath := filepath.Join(w.statusDir(statusOf(completed)), filepath.Base(oldPath))

	now := timeNow()
	task.Path = newPath
	task.Completed = completed
	task.UpdatedAt = &now
	if completed {
		task.CompletedAt = &now
	} else {
		task.CompletedAt = nil
	}
	if err := writeTaskFile(task); err != nil {
		return nil, err
	}
	if oldPath != newPath {
		if err := os.Remove(oldPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return task, nil
}

// DeleteTask removes the task file with the exact id.
func (w *Workspace) DeleteTask(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	paths, err := w.findTasksByPrefix(id)
	if err != nil {
		return err
	}
	for _, path := range paths {
		t, err := readTaskFile(path)
		if err != nil || !strings.EqualFold(t.ID, id) {
			continue
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return ErrNotFound
			}
			return err
		}
		return nil
	}
	return ErrNotFound
}

func (w *Workspace) AddNote(prefix string, note string) (*Task, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: note is required", ErrInvalid)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	task, err := w.GetTaskByPrefix(prefix)
	if err != nil {
		return nil, err
	}
	now := timeNow()
	task.UpdatedAt = &now
	entry := fmt.Sprintf("- %s: %s\n", now.Format(time.RFC3339), note)
	if task.Body == "" {
		task.Body = "## Notes\n\n" + entry
	} else {
		task.Body = strings.TrimRight(task.Body, "\n") + "\n" + entry
	}
	if err := writeTaskFile(task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks in creation order.
func (w *Workspace) ListTasks(f ListFilter) ([]Task, error) {
	status := strings.TrimSpace(strings.ToLower(f.Status))
	if status != "" && status != StatusOpen && status != StatusDone {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))

	var out []Task
	for _, s := range []string{StatusOpen, StatusDone} {
		if status != "" && s != status {
			continue
		}
		entries, err := os.ReadDir(w.statusDir(s))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !isTaskFile(e.Name()) {
				continue
			}
			t, err := readTaskFile(filepath.Join(w.statusDir(s), e.Name()))
			if err != nil {
				// ignore unreadable task files
				continue
			}
			t.Completed = s == StatusDone
			if q != "" && !strings.Contains(strings.ToLower(t.Content), q) && !strings.Contains(strings.ToLower(t.Body), q) {
				continue
			}
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func isTaskFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".md") && !strings.HasPrefix(name, ".")
}

func (t *Task) IDShort(n int) string {
	s := strings.TrimPrefix(t.ID, "tsk_")
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (t *Task) StatusAbbrev() string {
	if t.Completed {
		return "✓"
	}
	return " "
}

func (t *Task) RenderHuman() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n", t.Content))
	b.WriteString(fmt.Sprintf("ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf("Status: %s\n", statusOf(t.Completed)))
	if t.CreatedAt != nil {
		b.WriteString(fmt.Sprintf("Created: %s\n", t.CreatedAt.Format(time.RFC3339)))
	}
	if t.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("Completed: %s\n", t.CompletedAt.Format(time.RFC3339)))
	}
	if strings.TrimSpace(t.Body) != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(t.Body, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func writeTaskFile(t *Task) error {
	yamlBytes, err := yaml.Marshal(&t.TaskMeta)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yamlBytes)
	buf.WriteString("---\n\n")
	if strings.TrimSpace(t.Body) != "" {
		buf.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	return atomicWriteFile(t.Path, buf.Bytes(), 0o644)
}

func readTaskFile(path string) (*Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta, body, err := parseFrontmatter(b)
	if err != nil {
		return nil, err
	}
	return &Task{TaskMeta: *meta, Path: path, Body: strings.TrimLeft(body, "\n")}, nil
}

func parseFrontmatter(b []byte) (*TaskMeta, string, error) {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if !strings.HasPrefix(s, "---\n") {
		return nil, "", fmt.Errorf("%w: missing frontmatter", ErrInvalid)
	}
	parts := strings.SplitN(s, "\n---\n", 2)
	if len(parts) != 2 {
		return nil, "", fmt.Errorf("%w: invalid frontmatter delimiters", ErrInvalid)
	}
	yamlPart := strings.TrimPrefix(parts[0], "---\n")
	var meta TaskMeta
	if err := yaml.Unmarshal([]byte(yamlPart), &meta); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if meta.Schema == 0 {
		meta.Schema = 1
	}
	if strings.TrimSpace(meta.ID) == "" {
		return nil, "", fmt.Errorf("%w: task id missing", ErrInvalid)
	}
	return &meta, parts[1], nil
}

// readTask reads path and reconciles the completed flag from its directory.
func (w *Workspace) readTask(path string) (*Task, error) {
	t, err := readTaskFile(path)
	if err != nil {
		return nil, err
	}
	t.Completed = filepath.Base(filepath.Dir(path)) == StatusDone
	return t, nil
}

func (w *Workspace) tasksFromPaths(paths []string) []Task {
	out := make([]Task, 0, len(paths))
	for _, path := range paths {
		t, err := w.readTask(path)
		if err != nil {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (w *Workspace) findTasksByPrefix(prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	prefixNorm := strings.ToUpper(prefix)
	if !strings.HasPrefix(prefixNorm, "TSK_") {
		prefixNorm = "TSK_" + prefixNorm
	}
	var hits []string
	root := filepath.Join(w.Root, "tasks")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil {
			return nil
		}
		if d.IsDir() || !isTaskFile(d.Name()) {
			return nil
		}
		// the file name starts with the id; skip parsing files that cannot match
		if !strings.HasPrefix(strings.ToUpper(d.Name()), prefixNorm) {
			return nil
		}
		t, err := readTaskFile(path)
		if err != nil {
			return nil
		}
		if strings.HasPrefix(strings.ToUpper(t.ID), prefixNorm) {
			hits = append(hits, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(hits)
	return hits, nil
}

func isLikelyIDSelector(selector string) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(selector), "tsk_") {
		return true
	}
	if len(selector) < 8 {
		return false
	}
	allowed := "0123456789ABCDEFGHJKMNPQRSTVWXYZ"
	hasDigit := false
	for _, r := range strings.ToUpper(selector) {
		if r >= '0' && r <= '9' {
			hasDigit = true
		}
		if !strings.ContainsRune(allowed, r) {
			return false
		}
	}
	return hasDigit
}

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(timeNow()), entropy)
	if err != nil {
		// fallback
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return strings.ToUpper(id.String())
}

func slugify(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "x"
	}
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "x"
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func atomicWriteFile(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	// Rename is atomic on same filesystem.
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
