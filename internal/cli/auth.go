package cli

import (
	"github.com/spf13/cobra"

	"taskdash/internal/model"
	"taskdash/internal/session"
)

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign out, and manage your profile",
	}
	cmd.AddCommand(newAuthRegisterCmd(app))
	cmd.AddCommand(newAuthLoginCmd(app))
	cmd.AddCommand(newAuthLogoutCmd(app))
	cmd.AddCommand(newAuthWhoamiCmd(app))
	cmd.AddCommand(newAuthProfileUpdateCmd(app))
	return cmd
}

// sessionOut is the printable view of the session; the token is never printed.
func sessionOut(st session.State) map[string]any {
	return map[string]any{
		"data": st.Principal,
		"meta": map[string]any{"authenticated": st.IsAuthenticated},
	}
}

func newAuthRegisterCmd(app *App) *cobra.Command {
	var name, email, password, confirm string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			if !cmd.Flags().Changed("confirm") {
				confirm = password
			}
			if _, err := a.Session.Register(cmdContext(cmd), name, email, password, confirm); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, sessionOut(a.Session.Snapshot()))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", envOr("TASKDASH_PASSWORD", ""), "Password (at least 6 characters; default $TASKDASH_PASSWORD)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Password confirmation (default: same as --password)")
	return cmd
}

func newAuthLoginCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			if _, err := a.Session.Login(cmdContext(cmd), email, password); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, sessionOut(a.Session.Snapshot()))
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", envOr("TASKDASH_PASSWORD", ""), "Password (default $TASKDASH_PASSWORD)")
	return cmd
}

func newAuthLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget cached data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			a.Logout()
			return writeOut(cmd, app, sessionOut(a.Session.Snapshot()))
		},
	}
}

func newAuthWhoamiCmd(app *App) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			if refresh && a.Session.Token() != "" {
				if _, err := a.Session.FetchProfile(cmdContext(cmd)); err != nil {
					return writeErr(cmd, err)
				}
			}
			return writeOut(cmd, app, sessionOut(a.Session.Snapshot()))
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the profile from the server instead of the local cache")
	return cmd
}

func newAuthProfileUpdateCmd(app *App) *cobra.Command {
	var in model.UserInput

	cmd := &cobra.Command{
		Use:   "profile-update",
		Short: "Change your own name, email or password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == (model.UserInput{}) {
				return writeErr(cmd, errUsage("nothing to update (pass --name, --email or --password)"))
			}
			a, err := openApp(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()
			if _, err := a.Session.UpdateProfile(cmdContext(cmd), in); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, sessionOut(a.Session.Snapshot()))
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "New display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "New email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "New password")
	return cmd
}
