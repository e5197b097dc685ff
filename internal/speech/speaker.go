package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// WriterSpeaker prints utterances, one per line.
type WriterSpeaker struct {
	W      io.Writer
	Prefix string

	mu sync.Mutex
}

func (s *WriterSpeaker) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.W, s.Prefix+text)
}

// CommandSpeaker pipes each utterance to a text-to-speech program on standard
// input. Speaking again kills the utterance still playing.
type CommandSpeaker struct {
	Path   string
	Args   []string
	Lang   string
	Logger *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommandSpeaker parses a command line such as "espeak -v {lang}".
func NewCommandSpeaker(commandLine, lang string) (*CommandSpeaker, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("speech output command is empty")
	}
	if lang == "" {
		lang = DefaultLang
	}
	return &CommandSpeaker{Path: fields[0], Args: fields[1:], Lang: lang}, nil
}

func (s *CommandSpeaker) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard)
	}
	return s.Logger
}

func (s *CommandSpeaker) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	cmd := exec.CommandContext(ctx, s.Path, expandArgs(s.Args, s.Lang)...)
	cmd.Stdin = strings.NewReader(text)
	cmd.WaitDelay = waitDelay
	s.logger().Debug("speaking", "text", text)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := cmd.Run(); err != nil && ctx.Err() == nil {
			s.logger().Error("speech output failed", "err", err)
		}
	}()
}

// Cancel stops the utterance that is playing, if any.
func (s *CommandSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Wait blocks until every started utterance has finished or been cancelled.
func (s *CommandSpeaker) Wait() {
	s.wg.Wait()
}
