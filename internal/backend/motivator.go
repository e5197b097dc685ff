package backend

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/amirbrooks/tasker-voice/internal/voice"
)

var fallbackLines = []string{
	"Small steps still move you forward.",
	"Start with the easiest task and let momentum do the rest.",
	"Done is better than perfect.",
	"One task at a time. You've got this.",
}

// Motivator implements voice.Motivator. Each request runs on its own
// goroutine; the reply is shown through Notifier and read aloud by Speaker.
// Without a configured Client it uses built-in lines.
type Motivator struct {
	Client   *Client
	Notifier voice.Notifier
	Speaker  voice.Speaker
	Logger   *log.Logger
	Timeout  time.Duration

	wg   sync.WaitGroup
	mu   sync.Mutex
	next int
}

func (m *Motivator) logger() *log.Logger {
	if m.Logger == nil {
		return log.New(io.Discard)
	}
	return m.Logger
}

// Motivate returns immediately. The request outlives ctx cancellation so a
// finished voice cycle does not abort it; it is bounded by Timeout instead.
func (m *Motivator) Motivate(ctx context.Context) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(bg)
	}()
}

func (m *Motivator) run(ctx context.Context) {
	text, err := m.Client.Motivate(ctx)
	switch {
	case errors.Is(err, ErrNotConfigured):
		text = m.fallback()
	case err != nil:
		m.logger().Error("motivation request failed", "err", err)
		m.notify("Motivation error: "+err.Error(), voice.SeverityDanger)
		return
	}
	m.logger().Info("motivation received", "text", text)
	m.notify(text, voice.SeverityInfo)
	if m.Speaker != nil {
		m.Speaker.Speak(text)
	}
}

func (m *Motivator) fallback() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	line := fallbackLines[m.next%len(fallbackLines)]
	m.next++
	return line
}

func (m *Motivator) notify(msg string, sev voice.Severity) {
	if m.Notifier != nil {
		m.Notifier.Notify(msg, sev)
	}
}

// Wait blocks until every pending request has finished.
func (m *Motivator) Wait() {
	m.wg.Wait()
}
