package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vibetodo/backend"
	"vibetodo/backend/notion"
	"vibetodo/internal/config"
	"vibetodo/internal/credentials"
	"vibetodo/internal/service"
	"vibetodo/internal/tui"
	"vibetodo/internal/utils"
)

// secretKeys are masked by config show
var secretKeys = map[string]bool{"token": true}

func maskSecret(key, value string) string {
	if !secretKeys[key] || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "****"
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigShowCmd(a), newConfigGetCmd(a), newConfigSetCmd(a), newConfigSetBackendCmd(a))
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadConfig()
			if err != nil {
				return err
			}

			values := make(map[string]string)
			for _, key := range c.Keys() {
				v, _ := c.Get(key)
				values[key] = maskSecret(key[strings.LastIndex(key, ".")+1:], v)
			}

			if jsonFlag(cmd) {
				return writeJSON(a.stdout, map[string]interface{}{
					"path":     c.Path(),
					"settings": values,
					"result":   ResultInfoOnly,
				})
			}

			_, _ = fmt.Fprintf(a.stdout, "Config file: %s\n\n", c.Path())
			for _, key := range c.Keys() {
				_, _ = fmt.Fprintf(a.stdout, "%s = %s\n", key, values[key])
			}
			return nil
		},
	}
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.loadConfig()
			if err != nil {
				return err
			}
			v, ok := c.Get(args[0])
			if !ok {
				return utils.WrapWithSuggestion(fmt.Errorf("config key not set: %s", args[0]), "Run 'vibe config show' to list keys")
			}
			_, _ = fmt.Fprintln(a.stdout, v)
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set one configuration value (e.g. backend.notion.database_id)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(a.cfg.ConfigPath)
			if err != nil {
				return err
			}
			if err := c.Set(args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Set %s\n", args[0])
			return nil
		},
	}
}

// backendFlags maps set-backend flags to backend setting keys
var backendFlags = map[string]map[string]string{
	"sqlite":    {"db-path": "db_path"},
	"notion":    {"token": "token", "database-id": "database_id"},
	"microsoft": {"client-id": "client_id", "list-id": "list_id", "tenant": "tenant", "token-cache": "token_cache"},
}

func newConfigSetBackendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-backend [sqlite|notion|microsoft]",
		Short: "Select the active backend and store its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(args[0])
			flags, ok := backendFlags[name]
			if !ok {
				return utils.WrapWithSuggestion(fmt.Errorf("unknown backend: %s", args[0]), "Valid options: "+strings.Join(config.KnownBackends, ", "))
			}

			// Unknown backend.type in the file must not block fixing it here.
			c, err := config.Load(a.cfg.ConfigPath)
			if err != nil {
				return err
			}

			settings := c.BackendSettings(name)
			for flag, key := range flags {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					settings[key] = v
				}
			}
			for flag := range allBackendFlags() {
				if cmd.Flags().Changed(flag) {
					if _, own := flags[flag]; !own {
						return fmt.Errorf("--%s does not apply to the %s backend", flag, name)
					}
				}
			}
			if name == notion.Name && cmd.Flags().Changed("database-id") {
				delete(settings, "data_source_id")
			}

			if name == notion.Name && settings["token"] == "" && a.credentials().Token(cmd.Context(), notion.Name) == "" {
				if err := a.promptNotionToken(cmd, settings); err != nil {
					return err
				}
			}

			if err := c.SetBackend(name, settings); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Backend set to %s\n", name)
			return nil
		},
	}
	for flag := range allBackendFlags() {
		cmd.Flags().String(flag, "", "Backend setting "+strings.ReplaceAll(flag, "-", "_"))
	}
	return cmd
}

func allBackendFlags() map[string]bool {
	all := make(map[string]bool)
	for _, flags := range backendFlags {
		for flag := range flags {
			all[flag] = true
		}
	}
	return all
}

// promptNotionToken asks for the integration token and stores it in the
// keyring, or in settings when no keyring is available.
func (a *app) promptNotionToken(cmd *cobra.Command, settings map[string]string) error {
	token, err := credentials.PromptSecret(a.cfg.Stdin, a.stdout, "Notion integration token")
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.New("token must not be empty")
	}

	err = a.credentials().Set(cmd.Context(), notion.Name, credentials.DefaultAccount, token)
	if errors.Is(err, credentials.ErrKeyringNotAvailable) {
		utils.Warnf("system keyring not available; storing the Notion token in the config file")
		settings["token"] = token
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	_, _ = fmt.Fprintln(a.stdout, "Token stored in system keyring")
	return nil
}

// =============================================================================
// credentials
// =============================================================================

func newCredentialsCmd(a *app) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage backend credentials",
		Long:  "Store, inspect, and remove backend API tokens in the system keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	handler := func() *credentials.CLIHandler {
		return credentials.NewCLIHandler(a.credentials(), a.cfg.Stdin, a.stdout, a.stderr)
	}

	credentialsCmd.AddCommand(
		&cobra.Command{
			Use:   "set [backend]",
			Short: "Store a backend token in the system keyring",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return handler().Set(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "get [backend]",
			Short: "Show where a backend token comes from",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return handler().Get(cmd.Context(), args[0], jsonFlag(cmd))
			},
		},
		&cobra.Command{
			Use:   "delete [backend]",
			Short: "Remove a backend token from the system keyring",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return handler().Delete(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List token status for every remote backend",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var names []string
				for _, r := range backend.RegisteredBackends() {
					if r.Name != "sqlite" {
						names = append(names, r.Name)
					}
				}
				sort.Strings(names)
				return handler().List(cmd.Context(), names, jsonFlag(cmd))
			},
		},
	)
	return credentialsCmd
}

// =============================================================================
// tui
// =============================================================================

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive terminal interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, ok := a.stdout.(*os.File)
			if !ok || !term.IsTerminal(int(out.Fd())) {
				return errors.New("the TUI needs an interactive terminal")
			}

			ctx := cmd.Context()
			return a.withService(ctx, func(svc *service.Service, _ backend.Backend) error {
				p := tea.NewProgram(tui.New(svc).WithContext(ctx), tea.WithAltScreen(), tea.WithInput(a.cfg.Stdin), tea.WithOutput(out))
				_, err := p.Run()
				return err
			})
		},
	}
}
