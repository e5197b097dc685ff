// Package speech adapts transcript sources and speech output to the voice
// session. Capture implementations read one utterance per listening cycle;
// speakers read text aloud, replacing whatever was still playing.
package speech

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/amirbrooks/tasker-voice/internal/voice"
)

// DefaultLang is the recognition and synthesis language.
const DefaultLang = "en-US"

// waitDelay bounds how long a killed program may hold its output pipes open.
const waitDelay = time.Second

// FailurePrefix marks a line that reports a recognition error code instead of
// a transcript, e.g. "!no-speech".
const FailurePrefix = "!"

// LineCapture treats each line read from a reader as one utterance. A line
// starting with FailurePrefix is reported as a capture failure with the code
// that follows. Once the reader is exhausted every Start fails with a
// *voice.DeviceError wrapping io.EOF.
type LineCapture struct {
	Logger *log.Logger

	once  sync.Once
	r     io.Reader
	lines chan string
	errc  chan error

	mu   sync.Mutex
	stop chan struct{}
	eof  bool
}

func NewLineCapture(r io.Reader) *LineCapture {
	return &LineCapture{r: r}
}

func (c *LineCapture) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(io.Discard)
	}
	return c.Logger
}

// readLoop runs once for the lifetime of the capture so a pending read can
// outlive a stopped cycle without losing the line.
func (c *LineCapture) readLoop() {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.r)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	c.errc <- scanner.Err()
}

func (c *LineCapture) Start(ctx context.Context, sink voice.Sink) error {
	c.once.Do(func() {
		c.lines = make(chan string)
		c.errc = make(chan error, 1)
		go c.readLoop()
	})

	c.mu.Lock()
	if c.eof {
		c.mu.Unlock()
		return &voice.DeviceError{Reason: voice.ReasonAudioCaptureFailure, Err: io.EOF}
	}
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.listen(ctx, sink, stop)
	return nil
}

func (c *LineCapture) listen(ctx context.Context, sink voice.Sink, stop <-chan struct{}) {
	sink.Started()
	defer sink.Ended()

	select {
	case line, ok := <-c.lines:
		if !ok {
			c.mu.Lock()
			c.eof = true
			c.mu.Unlock()
			if err := <-c.errc; err != nil {
				c.logger().Error("transcript source failed", "err", err)
				sink.Failed(voice.ReasonAudioCaptureFailure, err)
			}
			return
		}
		if code, failed := strings.CutPrefix(strings.TrimSpace(line), FailurePrefix); failed {
			sink.Failed(voice.ParseReason(code), nil)
			return
		}
		sink.Result(line)
	case <-stop:
	case <-ctx.Done():
	}
}

// Stop abandons the current cycle. A line that arrives later is kept for the
// next cycle.
func (c *LineCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Exhausted reports whether the reader has reached EOF.
func (c *LineCapture) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eof
}

// CommandCapture runs an external speech-to-text program once per cycle and
// takes its standard output as the transcript. The token {lang} in Args is
// replaced with Lang. A non-zero exit reports the first line of standard error
// as the failure code.
type CommandCapture struct {
	Path   string
	Args   []string
	Lang   string
	Logger *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCommandCapture parses a command line such as "stt-listen --lang {lang}".
func NewCommandCapture(commandLine, lang string) (*CommandCapture, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("capture command is empty")
	}
	if lang == "" {
		lang = DefaultLang
	}
	return &CommandCapture{Path: fields[0], Args: fields[1:], Lang: lang}, nil
}

func (c *CommandCapture) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(io.Discard)
	}
	return c.Logger
}

func (c *CommandCapture) Start(ctx context.Context, sink voice.Sink) error {
	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, c.Path, expandArgs(c.Args, c.Lang)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start capture command: %w", err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.logger().Debug("capture command started", "path", c.Path, "pid", cmd.Process.Pid)
	go func() {
		defer cancel()
		sink.Started()
		defer sink.Ended()

		err := cmd.Wait()
		if cctx.Err() != nil {
			return
		}
		if err != nil {
			code, _, _ := strings.Cut(strings.TrimSpace(stderr.String()), "\n")
			c.logger().Error("capture command failed", "err", err, "stderr", code)
			sink.Failed(voice.ParseReason(code), err)
			return
		}
		sink.Result(stdout.String())
	}()
	return nil
}

func (c *CommandCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func expandArgs(args []string, lang string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.ReplaceAll(a, "{lang}", lang)
	}
	return out
}
