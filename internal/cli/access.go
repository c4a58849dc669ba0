package cli

import (
	"github.com/spf13/cobra"
)

func newAccessCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "access <route>",
		Short: "Show whether the current session may open a dashboard route",
		Example: `  taskdash access /users
  taskdash access /tasks/65f1c0ffee0000000000abcd/edit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			d, c, known := a.Access(args[0])
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{
					"route":      args[0],
					"capability": c,
					"outcome":    d.Outcome,
					"reason":     d.Reason,
					"allowed":    d.Allowed(),
				},
				"meta": map[string]any{"knownRoute": known},
			})
		},
	}
}

func newDashboardCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Status counts, upcoming deadlines and recent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			d, err := a.Dashboard(cmdContext(cmd))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": d})
		},
	}
}
