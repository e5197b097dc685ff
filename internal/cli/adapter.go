package cli

import (
	"context"
	"errors"

	"github.com/amirbrooks/tasker-voice/internal/store"
	"github.com/amirbrooks/tasker-voice/internal/voice"
)

// taskStore exposes a workspace to the voice dispatcher.
type taskStore struct {
	ws *store.Workspace
}

func (s *taskStore) Add(ctx context.Context, content string) (voice.Task, error) {
	if err := ctx.Err(); err != nil {
		return voice.Task{}, err
	}
	t, err := s.ws.AddTask(content)
	if err != nil {
		return voice.Task{}, err
	}
	return toVoiceTask(*t), nil
}

func (s *taskStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.ws.DeleteTask(id)
	if errors.Is(err, store.ErrNotFound) {
		return voice.ErrTaskNotFound
	}
	return err
}

// Query returns every task, open and done, oldest first.
func (s *taskStore) Query(ctx context.Context) ([]voice.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tasks, err := s.ws.ListTasks(store.ListFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]voice.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toVoiceTask(t))
	}
	return out, nil
}

func toVoiceTask(t store.Task) voice.Task {
	return voice.Task{ID: t.ID, Content: t.Content, Completed: t.Completed}
}
