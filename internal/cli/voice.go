package cli

import (
	"bufio"
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/amirbrooks/tasker-voice/internal/metrics"
	"github.com/amirbrooks/tasker-voice/internal/speech"
	"github.com/amirbrooks/tasker-voice/internal/voice"
)

// outcomeJSON is the --json form of a dispatched command.
type outcomeJSON struct {
	Intent   string `json:"intent"`
	Text     string `json:"text,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	Distance *int   `json:"distance,omitempty"`
	Cleared  int    `json:"cleared,omitempty"`
	Failed   int    `json:"failed,omitempty"`
	Spoken   string `json:"spoken,omitempty"`
	Error    string `json:"error,omitempty"`
}

func toOutcomeJSON(out voice.Outcome) outcomeJSON {
	j := outcomeJSON{
		Intent:  out.Intent.Kind.String(),
		Text:    out.Intent.Text,
		Cleared: out.Cleared,
		Failed:  out.Failed,
		Spoken:  out.Spoken,
	}
	if out.Task != nil {
		j.TaskID = out.Task.ID
	}
	if (out.Match.Matched() || out.Match.Distance != 0) && out.Match.Distance != voice.NoDistance {
		d := out.Match.Distance
		j.Distance = &d
	}
	if out.Err != nil {
		j.Error = out.Err.Error()
	}
	return j
}

// dispatch runs one intent and turns a failed outcome into an exit code
// without printing the error a second time.
func (a *app) dispatch(ctx context.Context, intent voice.Intent) error {
	out := a.dispatcher(nil).Dispatch(ctx, intent)
	if a.gf.JSON || a.gf.NDJSON {
		if err := a.emitJSON("outcome", toOutcomeJSON(out)); err != nil {
			return err
		}
	}
	if out.Err != nil {
		return reportedError{out.Err}
	}
	return nil
}

func newSayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "say <transcript...>",
		Aliases: []string{"do"},
		Short:   "Run a spoken command given as text",
		Long: `Classify the words as a voice command and run it. Recognized commands:

  motivate me / give me motivation
  clear completed / remove finished / delete completed
  read my tasks / what are my tasks / list tasks
  delete task <name> / remove task <name>

Anything else is added as a new task.`,
		Args: minArgs(1, `say "<transcript>"`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), voice.Classify(strings.Join(args, " ")))
		},
	}
}

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Read all tasks aloud",
		Args:  exactArgs(0, "read"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), voice.Intent{Kind: voice.IntentReadTasks})
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every completed task",
		Args:  exactArgs(0, "clear"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), voice.Intent{Kind: voice.IntentClearCompleted})
		},
	}
}

func newMotivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "motivate",
		Short: "Show a motivational line",
		Args:  exactArgs(0, "motivate"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), voice.Intent{Kind: voice.IntentMotivate})
		},
	}
}

type voiceOptions struct {
	once        bool
	metricsAddr string
}

func newVoiceCmd(a *app) *cobra.Command {
	var opts voiceOptions
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Listen for voice commands",
		Long: `Without speech.capture_command every line on stdin is one utterance and a
line such as "!no-speech" reports a capture failure.

With speech.capture_command set, press Enter to start listening and Enter
again to stop. The command's output is the transcript. Type q to quit.`,
		Args: exactArgs(0, "voice [--once] [--metrics-addr <addr>]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.metricsAddr == "" {
				opts.metricsAddr = a.cfg.Metrics.Addr
			}
			return a.runVoice(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.once, "once", false, "Exit after one listening cycle")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func (a *app) runVoice(ctx context.Context, opts voiceOptions) error {
	var reg *prometheus.Registry
	var m *metrics.Metrics
	if opts.metricsAddr != "" {
		reg, m = metrics.NewRegistry()
	}

	session := &voice.Session{
		Dispatcher: a.dispatcher(m),
		Notifier:   a.notifier,
		Logger:     a.logger,
		Metrics:    m,
	}

	var loop func(context.Context) error
	if cmdLine := strings.TrimSpace(a.cfg.Speech.CaptureCommand); cmdLine != "" {
		capture, err := speech.NewCommandCapture(cmdLine, a.cfg.Speech.Lang)
		if err != nil {
			return usageError{err}
		}
		capture.Logger = a.logger
		session.Capture = capture
		session.OnStateChange = func(st voice.State) {
			if !a.gf.Quiet {
				a.notifier.Status("[" + st.String() + "]")
			}
		}
		loop = func(ctx context.Context) error {
			return a.pushToTalk(ctx, session, opts.once)
		}
	} else {
		capture := speech.NewLineCapture(a.io.In)
		capture.Logger = a.logger
		session.Capture = capture
		loop = func(ctx context.Context) error {
			return a.readLines(ctx, session, capture, opts.once)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if reg != nil {
		a.logger.Info("serving metrics", "addr", opts.metricsAddr)
		g.Go(func() error {
			return metrics.Serve(gctx, opts.metricsAddr, reg)
		})
	}
	g.Go(func() error {
		defer cancel()
		return loop(gctx)
	})
	return g.Wait()
}

// readLines runs one cycle per input line until the reader is exhausted.
func (a *app) readLines(ctx context.Context, session *voice.Session, capture *speech.LineCapture, once bool) error {
	for !capture.Exhausted() {
		if err := session.Start(ctx); err != nil {
			if capture.Exhausted() {
				return nil
			}
			return reportedError{err}
		}
		if err := session.Wait(ctx); err != nil {
			session.Stop()
			return nil
		}
		if once {
			return nil
		}
	}
	return nil
}

// pushToTalk toggles the session on each input line until q, EOF or ctx.
func (a *app) pushToTalk(ctx context.Context, session *voice.Session, once bool) error {
	if once {
		if err := session.Start(ctx); err != nil {
			return reportedError{err}
		}
		err := session.Wait(ctx)
		session.Stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.io.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	a.notifier.Heading("Press Enter to talk, q to quit.")
	for {
		select {
		case <-ctx.Done():
			session.Stop()
			return nil
		case line, ok := <-lines:
			if !ok || strings.EqualFold(strings.TrimSpace(line), "q") {
				session.Stop()
				waitCtx := context.WithoutCancel(ctx)
				_ = session.Wait(waitCtx)
				return nil
			}
			if err := session.Toggle(ctx); err != nil {
				if errors.Is(err, voice.ErrAlreadyActive) {
					a.notifier.Notify("Still working on the last command.", voice.SeverityInfo)
					continue
				}
				// Start failures are already shown as notices.
				a.logger.Debug("toggle failed", "err", err)
			}
		}
	}
}
