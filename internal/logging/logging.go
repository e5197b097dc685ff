// Package logging builds the leveled console logger shared by all commands.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// Options holds configuration for the console logger.
type Options struct {
	Level           string // debug|info|warn|error
	Format          string // text|json|logfmt
	ReportTimestamp bool
	Prefix          string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Level:  "warn",
		Format: "text",
		Prefix: "tasker",
	}
}

// New creates a logger writing to w. Logs go to stderr in the CLI so they
// never mix with command output.
func New(w io.Writer, opts Options) (*log.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	formatter, err := parseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: opts.ReportTimestamp,
		Prefix:          opts.Prefix,
	}), nil
}

func parseLevel(s string) (log.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return log.WarnLevel, nil
	}
	level, err := log.ParseLevel(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func parseFormat(s string) (log.Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return 0, fmt.Errorf("invalid log format %q", s)
	}
}
