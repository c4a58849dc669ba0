package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"taskdash/internal/model"
)

func newUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "User administration",
	}
	cmd.AddCommand(newUsersListCmd(app))
	cmd.AddCommand(newUsersShowCmd(app))
	cmd.AddCommand(newUsersCreateCmd(app))
	cmd.AddCommand(newUsersUpdateCmd(app))
	cmd.AddCommand(newUsersDeleteCmd(app))
	cmd.AddCommand(newUsersTasksCmd(app))
	return cmd
}

func newUsersListCmd(app *App) *cobra.Command {
	var (
		filters userFilterFlags
		paging  pageFlags
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter()
			if err != nil {
				return writeErr(cmd, err)
			}
			dir, err := paging.dir()
			if err != nil {
				return writeErr(cmd, err)
			}
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			p, err := a.ListUsers(cmdContext(cmd), model.UserQuery{Filter: f, Page: paging.page, Limit: paging.limit, SortBy: paging.sortBy, SortDir: dir})
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, pageOut(p))
		},
	}

	cmd.Flags().AddFlagSet(filters.flagSet())
	cmd.Flags().AddFlagSet(paging.flagSet())
	return cmd
}

func newUsersShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			u, err := a.GetUser(cmdContext(cmd), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": u})
		},
	}
}

func bindUserInput(cmd *cobra.Command, in *model.UserInput, role *string) {
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password (at least 6 characters)")
	cmd.Flags().StringVar(role, "role", "", "Role (user|admin)")
}

func newUsersCreateCmd(app *App) *cobra.Command {
	var (
		in   model.UserInput
		role string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = model.Role(strings.TrimSpace(role))
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			u, err := a.CreateUser(cmdContext(cmd), in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": u})
		},
	}

	bindUserInput(cmd, &in, &role)
	return cmd
}

func newUsersUpdateCmd(app *App) *cobra.Command {
	var (
		in   model.UserInput
		role string
	)

	cmd := &cobra.Command{
		Use:   "update <user-id>",
		Short: "Update a user; only admins may change roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = model.Role(strings.TrimSpace(role))
			if in == (model.UserInput{}) {
				return writeErr(cmd, errUsage("nothing to update (pass --name, --email, --password or --role)"))
			}
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			u, err := a.UpdateUser(cmdContext(cmd), args[0], in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": u})
		},
	}

	bindUserInput(cmd, &in, &role)
	return cmd
}

func newUsersDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete a user (admin; not yourself)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			id, err := a.DeleteUser(cmdContext(cmd), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": id, "deleted": true}})
		},
	}
}

func newUsersTasksCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <user-id>",
		Short: "List the tasks assigned to a user (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			p, err := a.UserTasks(cmdContext(cmd), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, pageOut(p))
		},
	}
}
