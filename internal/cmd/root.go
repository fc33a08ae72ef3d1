// Package cmd wires the huntd command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jobforge/huntd/internal/observability"
)

// versionInfo carries build metadata injected by the release pipeline.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command and the
// HTTP /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// AppIdentity names the binary for config and env lookup.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

var appIdentity *AppIdentity

// GetAppIdentity returns the identity set during init, or nil.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

var (
	flagLogLevel string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "huntd",
	Short: "Interactive job search orchestrator",
	Long: `huntd drives an interactive job search: it launches the search worker,
decodes its event stream, persists the deduplicated job collection, and
suspends for user decisions at the selection and approval checkpoints.

Run "huntd serve" for the HTTP daemon or "huntd hunt" for a terminal
session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := flagLogLevel
		if flagVerbose {
			level = "debug"
		}
		if err := observability.InitCLILogger(level, false); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
}

func init() {
	appIdentity = &AppIdentity{
		BinaryName: "huntd",
		EnvPrefix:  "HUNTD",
		ConfigName: "huntd",
	}

	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Shorthand for --log-level debug")

	setDefaults()
}

// setDefaults seeds the global viper instance so commands that read keys
// before config loading still see sane values.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.profile", "structured")

	viper.SetDefault("health.enabled", true)

	viper.SetDefault("storage.backend", "file")
	viper.SetDefault("storage.retention_days", 7)

	viper.SetDefault("debug.enabled", false)
	viper.SetDefault("debug.pprof_enabled", false)
}

// ExitCodeError carries a process exit code alongside the underlying error.
type ExitCodeError struct {
	Code int
	Msg  string
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// exitError logs the failure and wraps it with the exit code for Execute.
func exitError[C ~int](code C, msg string, err error) error {
	observability.CLILogger.Error(msg, zap.Error(err))
	return &ExitCodeError{Code: int(code), Msg: msg, Err: err}
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	defer func() { _ = observability.Sync() }()

	if err := rootCmd.Execute(); err != nil {
		var coded *ExitCodeError
		if errors.As(err, &coded) {
			return coded.Code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
