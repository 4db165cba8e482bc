package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"vibetodo/backend"
	"vibetodo/backend/factory"
	"vibetodo/backend/mstodo"
	"vibetodo/internal/config"
	"vibetodo/internal/credentials"
	"vibetodo/internal/service"
	"vibetodo/internal/utils"
)

// Build information, set at build time
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Result codes for JSON output
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds collaborators injected by main or by tests
type Config struct {
	ConfigPath  string // overrides the XDG config location
	Verbose     bool
	Stdin       io.Reader
	Credentials *credentials.Manager
	HTTPClient  *http.Client
	Login       backend.InteractiveLogin // defaults to the device code flow
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	return ExecuteContext(context.Background(), args, stdout, stderr, cfg)
}

// ExecuteContext is Execute with a context that cancels backend calls
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewVibe(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewVibe creates the root command with injectable IO
func NewVibe(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	app := &app{cfg: cfg, stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:     "vibe",
		Short:   "A task manager with local and cloud backends",
		Long:    "vibe manages tasks stored in a local SQLite database, a Notion database, or Microsoft To Do.",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.Verbose = true
			}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				cfg.ConfigPath = path
			}
			utils.SetVerboseMode(cfg.Verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to config file")

	cmd.AddCommand(
		newAddCmd(app),
		newListCmd(app),
		newShowCmd(app),
		newStartCmd(app),
		newDoneCmd(app),
		newUpdateCmd(app),
		newLogCmd(app),
		newDeleteCmd(app),
		newStatsCmd(app),
		newBatchCmd(app),
		newExportCmd(app),
		newImportCmd(app),
		newConfigCmd(app),
		newCredentialsCmd(app),
		newTUICmd(app),
		newVersionCmd(app),
	)

	return cmd
}

// app carries the state shared by every subcommand
type app struct {
	cfg    *Config
	stdout io.Writer
	stderr io.Writer
}

func (a *app) loadConfig() (*config.Config, error) {
	c, err := config.Load(a.cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, utils.WrapWithSuggestion(err, "Run 'vibe config set-backend sqlite' to reset the backend")
	}
	if c.Logging.Verbose {
		utils.SetVerboseMode(true)
	}
	return c, nil
}

// openBackend builds the configured backend; callers must Close it
func (a *app) openBackend(ctx context.Context) (backend.Backend, *config.Config, error) {
	c, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	login := a.cfg.Login
	if login == nil {
		login = mstodo.DeviceCodeLogin(a.stderr)
	}

	b, err := factory.New(ctx, c, factory.Options{
		Credentials: a.cfg.Credentials,
		Login:       login,
		HTTPClient:  a.cfg.HTTPClient,
	})
	if err != nil {
		return nil, nil, friendlyError(err)
	}
	return b, c, nil
}

// withService opens the backend, runs fn with a service over it, and closes it
func (a *app) withService(ctx context.Context, fn func(*service.Service, backend.Backend) error) error {
	b, _, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	return friendlyError(fn(service.New(b), b))
}

func (a *app) credentials() *credentials.Manager {
	if a.cfg.Credentials == nil {
		a.cfg.Credentials = credentials.NewManager()
	}
	return a.cfg.Credentials
}

// friendlyError attaches a suggestion to backend errors
func friendlyError(err error) error {
	if err == nil {
		return nil
	}
	var suggested *utils.ErrorWithSuggestion
	if errors.As(err, &suggested) {
		return err
	}

	var cfgErr *backend.ConfigurationError
	if errors.As(err, &cfgErr) {
		return utils.ErrBackendNotConfigured(cfgErr.Backend, err)
	}
	var authErr *backend.AuthenticationError
	if errors.As(err, &authErr) {
		return utils.ErrAuthenticationFailed(authErr.Backend, err)
	}
	var unavailable *backend.UnavailableError
	if errors.As(err, &unavailable) {
		return utils.ErrBackendOffline(unavailable.Backend, err)
	}
	return err
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// =============================================================================
// JSON Output
// =============================================================================

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

// writeJSON marshals v as a single line on w
func writeJSON(w io.Writer, v interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(jsonBytes))
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	_ = writeJSON(stdout, errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	})
}

// =============================================================================
// Version
// =============================================================================

func newVersionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonFlag(cmd) {
				return writeJSON(a.stdout, map[string]string{
					"version":    Version,
					"commit":     Commit,
					"build_date": BuildDate,
					"go_version": runtime.Version(),
					"platform":   runtime.GOOS + "/" + runtime.GOARCH,
				})
			}

			_, _ = fmt.Fprintf(a.stdout, "vibe\n  Version: %s\n  Commit:  %s\n  Built:   %s\n", Version, Commit, BuildDate)
			if extended, _ := cmd.Flags().GetBool("extended"); extended {
				_, _ = fmt.Fprintf(a.stdout, "  Go Version: %s\n  Platform:   %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			}
			return nil
		},
	}
	cmd.Flags().BoolP("extended", "e", false, "Show Go version and platform")
	return cmd
}
