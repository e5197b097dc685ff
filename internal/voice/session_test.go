package voice

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() (*Session, *fakeCapture, *fakeStore, *fakeNotifier) {
	capture := &fakeCapture{}
	store := &fakeStore{tasks: scenarioTasks()}
	n := &fakeNotifier{}
	s := &Session{
		Capture:    capture,
		Dispatcher: &Dispatcher{Store: store, Notifier: n, Speaker: &fakeSpeaker{}},
		Notifier:   n,
	}
	return s, capture, store, n
}

func TestSessionStartListens(t *testing.T) {
	s, capture, _, _ := newTestSession()

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, StateListening, s.State())
	assert.Equal(t, 1, capture.starts)
	assert.NotNil(t, capture.current())
}

func TestSessionStartWhileActive(t *testing.T) {
	s, capture, _, _ := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	err := s.Start(context.Background())

	assert.ErrorIs(t, err, ErrAlreadyActive)
	assert.Equal(t, 1, capture.starts)
}

func TestSessionResultDispatches(t *testing.T) {
	s, capture, store, _ := newTestSession()
	var states []State
	s.OnStateChange = func(st State) { states = append(states, st) }
	require.NoError(t, s.Start(context.Background()))

	capture.current().Result("Walk the dog")

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []State{StateListening, StateProcessing, StateIdle}, states)
	require.Len(t, store.tasks, 3)
	assert.Equal(t, "Walk the dog", store.tasks[2].Content)
	assert.NoError(t, s.Wait(context.Background()))
}

func TestSessionBlankTranscript(t *testing.T) {
	s, capture, store, n := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	capture.current().Result("   ")

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, store.addCalled)
	assert.Equal(t, notice{"Didn't catch that.", SeverityInfo}, n.last())
}

func TestSessionToggle(t *testing.T) {
	s, capture, _, _ := newTestSession()

	require.NoError(t, s.Toggle(context.Background()))
	assert.Equal(t, StateListening, s.State())

	require.NoError(t, s.Toggle(context.Background()))
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 1, capture.stops)
}

func TestSessionToggleWhileProcessing(t *testing.T) {
	s, capture, _, _ := newTestSession()
	var logs bytes.Buffer
	s.Logger = log.NewWithOptions(&logs, log.Options{Level: log.DebugLevel})
	blocking := &blockingStore{fakeStore: &fakeStore{}, release: make(chan struct{}), entered: make(chan struct{})}
	s.Dispatcher.Store = blocking
	require.NoError(t, s.Start(context.Background()))

	go capture.current().Result("buy bread")
	<-blocking.entered

	assert.Equal(t, StateProcessing, s.State())
	assert.ErrorIs(t, s.Toggle(context.Background()), ErrAlreadyActive)

	// Stop and late events must not close a cycle mid-dispatch.
	sink := capture.current()
	s.Stop()
	sink.Ended()
	sink.Failed(ReasonNetworkError, errBoom)
	assert.Equal(t, StateProcessing, s.State())

	close(blocking.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, StateIdle, s.State())
	assert.NoError(t, s.LastError())
	assert.NoError(t, blocking.ctxErr, "dispatch context cancelled by Stop")
	assert.Len(t, blocking.tasks, 1)
	assert.Contains(t, logs.String(), "ignoring speech error during dispatch")
}

// resultOnStopCapture delivers a transcript from inside Stop, the way a
// recognizer flushes its final result when told to stop.
type resultOnStopCapture struct {
	fakeCapture
	transcript string
}

func (c *resultOnStopCapture) Stop() {
	c.fakeCapture.Stop()
	if sink := c.current(); sink != nil {
		sink.Result(c.transcript)
	}
}

func TestSessionStopDropsResultDeliveredWhileStopping(t *testing.T) {
	capture := &resultOnStopCapture{transcript: "buy milk"}
	blocking := &blockingStore{fakeStore: &fakeStore{}, release: make(chan struct{}), entered: make(chan struct{})}
	var states []State
	s := &Session{
		Capture:       capture,
		Dispatcher:    &Dispatcher{Store: blocking},
		OnStateChange: func(st State) { states = append(states, st) },
	}
	require.NoError(t, s.Start(context.Background()))

	s.Stop()

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []State{StateListening, StateIdle}, states)
	select {
	case <-blocking.entered:
		t.Fatal("result delivered during Stop was dispatched")
	default:
	}
	assert.Zero(t, blocking.addCalled)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateListening, s.State())
	assert.Equal(t, 2, capture.starts)
}

func TestSessionStaleResultDropped(t *testing.T) {
	s, capture, store, _ := newTestSession()
	require.NoError(t, s.Start(context.Background()))
	stale := capture.current()
	s.Stop()

	stale.Result("Walk the dog")

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, store.addCalled)

	// A new cycle ignores events from the previous one.
	require.NoError(t, s.Start(context.Background()))
	stale.Result("Walk the dog")
	stale.Ended()
	assert.Equal(t, StateListening, s.State())
	assert.Zero(t, store.addCalled)
}

func TestSessionStartDeviceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
	}{
		{"permission", fs.ErrPermission, ReasonPermissionDenied},
		{"other", errBoom, ReasonAudioCaptureFailure},
		{"typed", &DeviceError{Reason: ReasonNetworkError, Err: errBoom}, ReasonNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, capture, _, n := newTestSession()
			capture.startErr = tt.err

			err := s.Start(context.Background())

			var derr *DeviceError
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.reason, derr.Reason)
			assert.ErrorIs(t, err, ErrDevice)
			assert.Equal(t, StateIdle, s.State())
			assert.Equal(t, SeverityDanger, n.last().Severity)
			assert.Equal(t, err, s.LastError())
		})
	}
}

func TestSessionFailureMessages(t *testing.T) {
	tests := []struct {
		reason Reason
		want   string
	}{
		{ReasonNoSpeech, "No speech."},
		{ReasonAudioCaptureFailure, "Mic error."},
		{ReasonPermissionDenied, "Permission denied."},
		{ReasonNetworkError, "Network error."},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			s, capture, _, n := newTestSession()
			require.NoError(t, s.Start(context.Background()))

			capture.current().Failed(tt.reason, errBoom)

			assert.Equal(t, StateIdle, s.State())
			assert.Equal(t, notice{tt.want, SeverityDanger}, n.last())
			assert.ErrorIs(t, s.LastError(), ErrDevice)
		})
	}
}

func TestSessionEndedWithoutResult(t *testing.T) {
	s, capture, store, _ := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	capture.current().Ended()

	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, store.addCalled)
	assert.NoError(t, s.LastError())
}

func TestSessionWaitHonoursContext(t *testing.T) {
	s, _, _, _ := newTestSession()
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Wait(ctx), context.Canceled)
}

// blockingStore holds Add until release is closed.
type blockingStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blockingStore) Add(ctx context.Context, content string) (Task, error) {
	close(b.entered)
	<-b.release
	b.ctxErr = ctx.Err()
	return b.fakeStore.Add(ctx, content)
}
