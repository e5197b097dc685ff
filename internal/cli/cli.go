package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/amirbrooks/tasker-voice/internal/backend"
	"github.com/amirbrooks/tasker-voice/internal/config"
	"github.com/amirbrooks/tasker-voice/internal/logging"
	"github.com/amirbrooks/tasker-voice/internal/metrics"
	"github.com/amirbrooks/tasker-voice/internal/notify"
	"github.com/amirbrooks/tasker-voice/internal/speech"
	"github.com/amirbrooks/tasker-voice/internal/store"
	"github.com/amirbrooks/tasker-voice/internal/voice"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitConflict = 4
	ExitInternal = 10
)

type GlobalFlags struct {
	Root       string
	ConfigPath string
	LogLevel   string
	Theme      string
	JSON       bool
	NDJSON     bool
	Plain      bool
	Quiet      bool
	Verbose    bool
	Export     bool
	ExportDir  string
}

// usageError marks bad invocations so they exit with ExitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// reportedError carries an error the user has already seen as a notice. It
// sets the exit code without being printed again.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// IO bundles the streams a command reads and writes.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// app holds what the commands share once global flags and config are
// resolved.
type app struct {
	io IO
	gf GlobalFlags

	cfg        *config.Config
	configPath string
	logger     *log.Logger
	theme      notify.Theme
	notifier   *notify.Notifier
	ws         *store.Workspace
	backend    *backend.Client
	speaker    voice.Speaker
	motivator  *backend.Motivator
}

// Run executes the CLI and returns the process exit code.
func Run(ctx context.Context, args []string, streams IO) int {
	a := &app{io: streams}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	err := root.ExecuteContext(ctx)
	a.drain(ctx)
	if err == nil {
		return ExitOK
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintln(streams.Err, "tasker:", err)
		var conflict *store.MatchConflictError
		if errors.As(err, &conflict) {
			printCandidates(streams.Err, conflict.Matches)
		}
	}
	return ExitCode(err)
}

// ExitCode maps an error onto the exit code contract.
func ExitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &usage),
		errors.Is(err, store.ErrInvalid),
		errors.Is(err, voice.ErrEmptyInput),
		errors.Is(err, voice.ErrTooShortIdentifier),
		strings.HasPrefix(err.Error(), "unknown command"),
		strings.HasPrefix(err.Error(), "if any flags in the group"):
		return ExitUsage
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, voice.ErrTaskNotFound),
		errors.Is(err, voice.ErrNoMatch):
		return ExitNotFound
	case errors.Is(err, store.ErrConflict):
		return ExitConflict
	default:
		return ExitInternal
	}
}

func printCandidates(w io.Writer, tasks []store.Task) {
	if len(tasks) == 0 {
		return
	}
	fmt.Fprintln(w, "Candidates:")
	for _, t := range tasks {
		fmt.Fprintf(w, "  %s  %s\n", t.ID, t.Content)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tasker",
		Short: "Local-first tasks in Markdown, with voice commands",
		Long: `tasker keeps tasks as Markdown files with YAML frontmatter and accepts
spoken commands such as "read my tasks", "delete task buy milk" or
"clear completed". Anything else you say is added as a new task.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.gf.Root, "root", "", "Store root (default: ~/.tasker or TASKER_ROOT)")
	pf.StringVar(&a.gf.ConfigPath, "config", "", "Config file (default: <root>/config.yaml)")
	pf.StringVar(&a.gf.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&a.gf.Theme, "theme", "", "Color theme for this run: light|dark|forest|ocean")
	pf.BoolVar(&a.gf.JSON, "json", false, "JSON output")
	pf.BoolVar(&a.gf.NDJSON, "ndjson", false, "NDJSON output")
	pf.BoolVar(&a.gf.Plain, "plain", false, "TSV output")
	pf.BoolVar(&a.gf.Export, "export", false, "Write JSON/NDJSON to the export directory instead of stdout")
	pf.StringVar(&a.gf.ExportDir, "export-dir", "", "Override export directory (default: <root>/exports)")
	pf.BoolVarP(&a.gf.Quiet, "quiet", "q", false, "Suppress notices")
	pf.BoolVarP(&a.gf.Verbose, "verbose", "v", false, "Debug logging")
	root.MarkFlagsMutuallyExclusive("json", "ndjson")

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDoneCmd(a, true),
		newDoneCmd(a, false),
		newRemoveCmd(a),
		newNoteCmd(a),
		newAskCmd(a),
		newSayCmd(a),
		newReadCmd(a),
		newClearCmd(a),
		newMotivateCmd(a),
		newVoiceCmd(a),
		newThemeCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads config and builds the shared collaborators.
func (a *app) setup(ctx context.Context) error {
	if a.gf.Export && !a.gf.JSON && !a.gf.NDJSON {
		return usagef("--export requires --json or --ndjson")
	}

	a.configPath = a.gf.ConfigPath
	if a.configPath == "" {
		root := a.gf.Root
		if root == "" {
			root = config.DefaultRoot()
		}
		a.configPath = config.DefaultPath(root)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.gf.Root != "" {
		cfg.Root = a.gf.Root
	}
	a.cfg = cfg

	opts := logging.DefaultOptions()
	opts.Level = cfg.Log.Level
	opts.Format = cfg.Log.Format
	if a.gf.Verbose {
		opts.Level = "debug"
	}
	if a.gf.LogLevel != "" {
		opts.Level = a.gf.LogLevel
	}
	logger, err := logging.New(a.io.Err, opts)
	if err != nil {
		return usageError{err}
	}
	a.logger = logger

	themeName := cfg.UI.Theme
	if a.gf.Theme != "" {
		themeName = a.gf.Theme
	}
	theme, ok := notify.ParseTheme(themeName)
	if !ok {
		logger.Warn("unknown theme, using light", "theme", themeName)
	}
	a.theme = theme
	// Machine-readable output keeps stdout clean; notices go to stderr.
	noticeOut := a.io.Out
	if a.gf.JSON || a.gf.NDJSON || a.gf.Plain {
		noticeOut = a.io.Err
	}
	if a.gf.Quiet {
		noticeOut = io.Discard
	}
	a.notifier = notify.New(noticeOut, theme)

	ws, err := store.Open(cfg.Root)
	if err != nil {
		return err
	}
	a.ws = ws
	if a.gf.ExportDir == "" {
		a.gf.ExportDir = filepath.Join(ws.Root, "exports")
	}

	a.backend = backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	a.speaker = &speech.WriterSpeaker{W: noticeOut, Prefix: "» "}
	var motivationSpeaker voice.Speaker
	if cmdLine := strings.TrimSpace(cfg.Speech.OutputCommand); cmdLine != "" {
		cs, err := speech.NewCommandSpeaker(cmdLine, cfg.Speech.Lang)
		if err != nil {
			return usageError{err}
		}
		cs.Logger = logger
		a.speaker = cs
		motivationSpeaker = cs
	}
	a.motivator = &backend.Motivator{
		Client:   a.backend,
		Notifier: a.notifier,
		Speaker:  motivationSpeaker,
		Logger:   logger,
		Timeout:  cfg.Backend.Timeout,
	}
	logger.Debug("configured", "root", ws.Root, "config", a.configPath, "theme", theme)
	return nil
}

// drain waits for background motivation requests and speech output. Once ctx
// is done, for example on Ctrl-C, the utterance still playing is cut short.
func (a *app) drain(ctx context.Context) {
	if a.motivator != nil {
		a.motivator.Wait()
	}
	if cs, ok := a.speaker.(*speech.CommandSpeaker); ok {
		if ctx.Err() != nil {
			cs.Cancel()
		}
		cs.Wait()
	}
}

func (a *app) dispatcher(m *metrics.Metrics) *voice.Dispatcher {
	return &voice.Dispatcher{
		Store:     &taskStore{ws: a.ws},
		Speaker:   a.speaker,
		Notifier:  a.notifier,
		Motivator: a.motivator,
		Logger:    a.logger,
		Metrics:   m,
	}
}

func (a *app) printf(format string, args ...any) {
	if a.gf.Quiet {
		return
	}
	fmt.Fprintf(a.io.Out, format, args...)
}

// emitJSON writes payload to stdout, or to the export directory with --export.
func (a *app) emitJSON(base string, payload any) error {
	if a.gf.Export {
		path, err := writeJSONExport(a.gf, base, payload)
		if err != nil {
			return err
		}
		a.printf("Wrote JSON to: %s\n", path)
		return nil
	}
	enc := json.NewEncoder(a.io.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func (a *app) emitNDJSON(base string, items []any) error {
	if a.gf.Export {
		path, err := writeNDJSONExport(a.gf, base, items)
		if err != nil {
			return err
		}
		a.printf("Wrote NDJSON to: %s\n", path)
		return nil
	}
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.io.Out, string(b))
	}
	return nil
}

func writeJSONExport(gf GlobalFlags, base string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return writeExportFile(gf.ExportDir, base, "json", data)
}

func writeNDJSONExport(gf GlobalFlags, base string, items []any) (string, error) {
	var b strings.Builder
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return "", err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return writeExportFile(gf.ExportDir, base, "ndjson", []byte(b.String()))
}

func writeExportFile(dir, base, ext string, data []byte) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("export directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	ts := time.Now().UTC().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", base, ts, ext))
	for i := 1; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s-%s-%d.%s", base, ts, i, ext))
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

// exactArgs is cobra.ExactArgs with a usage exit code.
func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("usage: tasker %s", usage)
		}
		return nil
	}
}

func minArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usagef("usage: tasker %s", usage)
		}
		return nil
	}
}
