package cli

import (
	"github.com/spf13/cobra"

	"taskdash/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change ~/.taskdash/config.json",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigSetCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			path, err := config.ConfigPath()
			if err != nil {
				return writeErr(cmd, err)
			}
			stateDir, err := cfg.EffectiveStateDir()
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": cfg,
				"meta": map[string]any{
					"path":      path,
					"baseUrl":   cfg.EffectiveBaseURL(),
					"stateDir":  stateDir,
					"timeout":   cfg.RequestTimeout().String(),
					"documents": cfg.DocumentPolicy(),
				},
			})
		},
	}
}

func newConfigSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one config key (an empty value unsets it)",
		Long:  "Keys: baseUrl, stateDir, timeout, rateLimit, rateBurst, documents.maxCount, documents.maxBytes, documents.allowedTypes (comma-separated).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Environment and flag overrides must not leak into the saved file.
			cfg, err := config.LoadFile()
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return writeErr(cmd, errUsage("%v", err))
			}
			if err := config.Save(cfg); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": cfg})
		},
	}
}
