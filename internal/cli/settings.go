package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/amirbrooks/tasker-voice/internal/config"
	"github.com/amirbrooks/tasker-voice/internal/notify"
	"github.com/amirbrooks/tasker-voice/internal/voice"
)

func newThemeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "theme [next|light|dark|forest|ocean]",
		Short: "Show or change the color theme",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return usagef("usage: tasker theme [next|light|dark|forest|ocean]")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if a.gf.JSON || a.gf.NDJSON {
					return a.emitJSON("theme", map[string]any{"theme": a.theme})
				}
				notify.New(a.io.Out, a.theme).Heading(string(a.theme))
				return nil
			}

			next := a.theme.Next()
			if !strings.EqualFold(args[0], "next") {
				t, ok := notify.ParseTheme(args[0])
				if !ok {
					return usagef("unknown theme %q (choose from light, dark, forest, ocean)", args[0])
				}
				next = t
			}
			if err := config.SetTheme(a.configPath, string(next)); err != nil {
				return err
			}
			a.theme = next
			a.notifier.SetTheme(next)
			a.logger.Info("theme changed", "theme", next, "config", a.configPath)
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("theme", map[string]any{"theme": next})
			}
			a.notifier.Notify(next.Title()+" theme", voice.SeveritySuccess)
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  exactArgs(0, "config show"),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := a.configValues()
			if a.gf.JSON || a.gf.NDJSON {
				return a.emitJSON("config", map[string]any{"config_path": a.configPath, "values": values})
			}
			w := tabwriter.NewWriter(a.io.Out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			fmt.Fprintf(w, "config_path\t%s\n", a.configPath)
			for _, k := range config.Keys() {
				fmt.Fprintf(w, "%s\t%s\n", k, values[k])
			}
			return w.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist one setting",
		Long:  "Keys: " + strings.Join(config.Keys(), ", "),
		Args:  exactArgs(2, "config set <key> <value>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.EqualFold(args[0], "ui.theme") {
				if _, ok := notify.ParseTheme(args[1]); !ok {
					return usagef("unknown theme %q (choose from light, dark, forest, ocean)", args[1])
				}
			}
			if err := config.Set(a.configPath, args[0], args[1]); err != nil {
				return usageError{err}
			}
			a.printf("Set %s = %s\n", strings.ToLower(args[0]), args[1])
			return nil
		},
	})
	return cmd
}

func (a *app) configValues() map[string]string {
	c := a.cfg
	return map[string]string{
		"root":                   c.Root,
		"log.level":              c.Log.Level,
		"log.format":             c.Log.Format,
		"ui.theme":               c.UI.Theme,
		"speech.lang":            c.Speech.Lang,
		"speech.capture_command": c.Speech.CaptureCommand,
		"speech.output_command":  c.Speech.OutputCommand,
		"backend.url":            c.Backend.URL,
		"backend.timeout":        c.Backend.Timeout.String(),
		"metrics.addr":           c.Metrics.Addr,
	}
}
