package voice

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/amirbrooks/tasker-voice/internal/metrics"
)

// State is the microphone session state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	default:
		return "idle"
	}
}

// Capture is a speech-to-text source. Start opens one listening cycle and
// reports its events to sink, possibly from another goroutine. It returns an
// error when the device cannot start. Stop ends the current cycle early.
type Capture interface {
	Start(ctx context.Context, sink Sink) error
	Stop()
}

// Sink receives the events of a single listening cycle.
type Sink interface {
	Started()
	Result(transcript string)
	Failed(reason Reason, err error)
	Ended()
}

// Session drives one microphone through Idle, Listening and Processing.
// At most one listening cycle is open at a time.
type Session struct {
	Capture    Capture
	Dispatcher *Dispatcher
	Notifier   Notifier
	Logger     *log.Logger
	Metrics    *metrics.Metrics

	// OnStateChange, when set, is called after every transition outside
	// the session lock.
	OnStateChange func(State)

	mu      sync.Mutex
	state   State
	cycle   *cycle
	lastErr error
}

type cycle struct {
	id     uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) logger() *log.Logger {
	if s.Logger == nil {
		return discardLogger
	}
	return s.Logger
}

func (s *Session) notify(msg string, sev Severity) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(msg, sev)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error that ended the most recent cycle, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start opens a listening cycle. It fails with ErrAlreadyActive while a cycle
// is open and with a *DeviceError when capture cannot start.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cycle != nil {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &cycle{id: uuid.New(), ctx: cctx, cancel: cancel, done: make(chan struct{})}
	s.cycle = c
	s.lastErr = nil
	s.state = StateListening
	s.mu.Unlock()

	s.logger().Debug("voice session starting", "cycle", c.id)
	s.changed(StateListening)

	if err := s.Capture.Start(cctx, &cycleSink{s: s, id: c.id}); err != nil {
		derr := asDeviceError(err)
		s.logger().Error("voice start failed", "cycle", c.id, "reason", derr.Reason, "err", err)
		s.notify("Mic error: "+err.Error(), SeverityDanger)
		s.Metrics.RecordSessionError(string(derr.Reason))
		s.finish(c.id, "start_failed", derr)
		return derr
	}
	return nil
}

// Stop ends a listening cycle without dispatching anything. A cycle that is
// already processing its transcript runs to completion. The cycle is closed
// before the capture is told to stop, so a result it delivers on the way out
// is dropped.
func (s *Session) Stop() {
	s.mu.Lock()
	c := s.cycle
	if c == nil || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.cycle = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.logger().Debug("stopping active recognition", "cycle", c.id)
	s.Capture.Stop()
	s.closed(c, "stopped")
}

// Toggle starts a cycle when idle and stops it while listening, the way a
// microphone button behaves. It returns ErrAlreadyActive while processing.
func (s *Session) Toggle(ctx context.Context) error {
	switch s.State() {
	case StateIdle:
		return s.Start(ctx)
	case StateListening:
		s.Stop()
		return nil
	default:
		return ErrAlreadyActive
	}
}

// Wait blocks until the open cycle, if any, is back at Idle.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	c := s.cycle
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// current returns the cycle with id when it is still the open one.
func (s *Session) current(id uuid.UUID) *cycle {
	if s.cycle == nil || s.cycle.id != id {
		return nil
	}
	return s.cycle
}

func (s *Session) finish(id uuid.UUID, outcome string, err error) {
	s.mu.Lock()
	c := s.current(id)
	if c == nil {
		s.mu.Unlock()
		return
	}
	s.cycle = nil
	s.state = StateIdle
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.closed(c, outcome)
}

// closed releases a cycle that has already been detached from the session.
func (s *Session) closed(c *cycle, outcome string) {
	c.cancel()
	close(c.done)
	s.Metrics.RecordSession(outcome)
	s.logger().Debug("voice session ended", "cycle", c.id, "outcome", outcome)
	s.changed(StateIdle)
}

func (s *Session) changed(st State) {
	if s.OnStateChange != nil {
		s.OnStateChange(st)
	}
}

func (s *Session) handleResult(id uuid.UUID, transcript string) {
	s.mu.Lock()
	c := s.current(id)
	if c == nil || s.state != StateListening {
		s.mu.Unlock()
		s.logger().Debug("dropping result from closed cycle", "cycle", id)
		return
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		s.mu.Unlock()
		s.logger().Info("empty transcript", "cycle", id)
		s.notify("Didn't catch that.", SeverityInfo)
		s.finish(id, "empty", nil)
		return
	}
	s.state = StateProcessing
	s.mu.Unlock()
	s.changed(StateProcessing)

	s.logger().Info("transcript received", "cycle", id, "transcript", transcript)
	intent := Classify(transcript)
	if s.Dispatcher != nil {
		s.Dispatcher.Dispatch(c.ctx, intent)
	}
	s.finish(id, "dispatched", nil)
}

func (s *Session) handleFailure(id uuid.UUID, reason Reason, err error) {
	s.mu.Lock()
	c := s.current(id)
	processing := s.state == StateProcessing
	s.mu.Unlock()
	if c == nil {
		return
	}
	if processing {
		s.logger().Debug("ignoring speech error during dispatch", "cycle", id, "reason", reason, "err", err)
		return
	}
	derr := &DeviceError{Reason: reason, Err: err}
	s.logger().Error("speech error", "cycle", id, "reason", reason, "err", err)
	s.notify(reason.Message(), SeverityDanger)
	s.Metrics.RecordSessionError(string(reason))
	s.finish(id, "failed", derr)
}

// handleEnd closes a cycle that ended without a usable result. A cycle that
// is processing is closed by handleResult once dispatch returns.
func (s *Session) handleEnd(id uuid.UUID) {
	s.mu.Lock()
	processing := s.current(id) != nil && s.state == StateProcessing
	s.mu.Unlock()
	if processing {
		return
	}
	s.finish(id, "ended", nil)
}

type cycleSink struct {
	s  *Session
	id uuid.UUID
}

func (k *cycleSink) Started() {
	k.s.logger().Debug("voice recognition started", "cycle", k.id)
}

func (k *cycleSink) Result(transcript string) { k.s.handleResult(k.id, transcript) }

func (k *cycleSink) Failed(reason Reason, err error) { k.s.handleFailure(k.id, reason, err) }

func (k *cycleSink) Ended() { k.s.handleEnd(k.id) }

func asDeviceError(err error) *DeviceError {
	var derr *DeviceError
	if errors.As(err, &derr) {
		return derr
	}
	if errors.Is(err, fs.ErrPermission) {
		return &DeviceError{Reason: ReasonPermissionDenied, Err: err}
	}
	return &DeviceError{Reason: ReasonAudioCaptureFailure, Err: err}
}
