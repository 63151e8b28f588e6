package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/deskauth/internal/config"
	"github.com/giantswarm/deskauth/internal/oauth"
	"github.com/giantswarm/deskauth/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the user has to sign in first.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
	// ExitCodeForbidden indicates the server rejected the CLI as an untrusted sender.
	ExitCodeForbidden = 4
)

var (
	configPath string
	logLevel   string
	quiet      bool

	// cfg is loaded by the root command before any subcommand runs.
	cfg config.Config
)

// rootCmd represents the base command for the deskauth application.
var rootCmd = &cobra.Command{
	Use:   "deskauth",
	Short: "OAuth 2.0 / OpenID Connect sign-in for desktop applications",
	Long: `deskauth signs a desktop user in with the system browser using the
authorization code flow with PKCE, keeps the tokens encrypted at rest and
renews them on demand.

Run 'deskauth serve' once; the other commands talk to it over a loopback
connection protected by a per-session secret.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code derived from the error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "deskauth version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps errors to semantic exit codes for scripting.
func getExitCode(err error) int {
	var aerr *oauth.AuthError
	if !errors.As(err, &aerr) {
		return ExitCodeError
	}
	switch aerr.Code {
	case oauth.CodeLoginRequired:
		return ExitCodeAuthRequired
	case oauth.CodeIPCForbidden:
		return ExitCodeForbidden
	case oauth.CodeGeneralError:
		return ExitCodeError
	default:
		return ExitCodeAuthFailed
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	loaded, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}

	logging.Init(logging.ParseLevel(loaded.LogLevel), logging.Format(loaded.LogFormat), cmd.ErrOrStderr())
	cfg = loaded
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default $XDG_CONFIG_HOME/deskauth)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	rootCmd.AddCommand(newVersionCmd())
}
