package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	appstate "taskdash/internal/app"
	"taskdash/internal/config"
	"taskdash/internal/format"
	"taskdash/internal/tui"
)

type App struct {
	BaseURL    string
	StateDir   string
	LogLevel   string
	PrettyJSON bool
	Format     string
	NoColor    bool

	// opts is overridden by tests to point the adapter at a fake server.
	opts appstate.Options
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "taskdash",
		Short:        "Task dashboard client (CLI + TUI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive dashboard
  taskdash

  # Sign in, then list your tasks
  taskdash auth login --email me@example.com --password secret
  taskdash tasks mine --status pending

  # Direct task lookup (shortcut for: taskdash tasks show <task-id>)
  taskdash 65f1c0ffee0000000000abcd
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand on a terminal => interactive dashboard.
			if len(args) == 0 && isTerminal(cmd.OutOrStdout()) {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if !format.Valid(app.Format) {
			return writeErr(cmd, fmt.Errorf("unknown format %q (want one of %s)", app.Format, strings.Join(format.Formats, ", ")))
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.BaseURL, "base-url", "", "API base URL (default: config baseUrl, TASKDASH_BASE_URL, or "+config.DefaultBaseURL+")")
	cmd.PersistentFlags().StringVar(&app.StateDir, "state-dir", "", "Directory holding state.sqlite (default: config stateDir or ~/.taskdash)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", envOr("TASKDASH_LOG_LEVEL", "warn"), "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("TASKDASH_FORMAT", "json"), "Output format (json|edn|yaml)")
	cmd.PersistentFlags().BoolVar(&app.NoColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable colours in the dashboard")

	cmd.AddCommand(newAuthCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newUsersCmd(app))
	cmd.AddCommand(newAccessCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDashboardCmd(app))

	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func runTUI(cmd *cobra.Command, app *App) error {
	a, err := openApp(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer a.Close()
	return tui.Run(cmdContext(cmd), a, tui.Options{NoColor: app.NoColor})
}

// loadConfig resolves file, environment, then flags.
func loadConfig(app *App) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(app.BaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := strings.TrimSpace(app.StateDir); v != "" {
		cfg.StateDir = v
	}
	return cfg, nil
}

// openApp builds and bootstraps the application state for one command.
func openApp(cmd *cobra.Command, app *App) (*appstate.App, error) {
	cfg, err := loadConfig(app)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), app.LogLevel)
	if err != nil {
		return nil, err
	}
	ctx := cmdContext(cmd)
	a, err := appstate.New(ctx, cfg, logger, app.opts)
	if err != nil {
		return nil, err
	}
	if err := a.Bootstrap(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), nil
}

func (app *App) now() time.Time {
	if app.opts.Now != nil {
		return app.opts.Now()
	}
	return time.Now()
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
