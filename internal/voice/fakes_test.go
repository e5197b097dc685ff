package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type fakeStore struct {
	mu        sync.Mutex
	tasks     []Task
	deleted   []string
	failIDs   map[string]error
	queryErr  error
	addErr    error
	nextID    int
	addCalled int
}

func (f *fakeStore) Add(_ context.Context, content string) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalled++
	if f.addErr != nil {
		return Task{}, f.addErr
	}
	f.nextID++
	t := Task{ID: fmt.Sprintf("t%d", f.nextID), Content: content}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failIDs[id]; err != nil {
		return err
	}
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return ErrTaskNotFound
}

func (f *fakeStore) Query(context.Context) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]Task, len(f.tasks))
	copy(out, f.tasks)
	return out, nil
}

type notice struct {
	Message  string
	Severity Severity
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (f *fakeNotifier) Notify(message string, severity Severity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice{message, severity})
}

func (f *fakeNotifier) last() notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notices) == 0 {
		return notice{}
	}
	return f.notices[len(f.notices)-1]
}

type fakeSpeaker struct {
	spoken []string
}

func (f *fakeSpeaker) Speak(text string) { f.spoken = append(f.spoken, text) }

type fakeMotivator struct {
	calls int
}

func (f *fakeMotivator) Motivate(context.Context) { f.calls++ }

// fakeCapture hands the sink back to the test so it can emit events.
type fakeCapture struct {
	mu       sync.Mutex
	sink     Sink
	startErr error
	starts   int
	stops    int
}

func (f *fakeCapture) Start(_ context.Context, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.sink = sink
	return nil
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeCapture) current() Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

var errBoom = errors.New("boom")
