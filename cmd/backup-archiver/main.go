// Command backup-archiver makes incremental zip backups of local directories,
// once or on a daily schedule.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raoulx24/backup-archiver/internal/types"
)

var (
	version = "dev"
	commit  = "none"
)

// exitError carries the process exit status out of a command.
type exitError struct {
	code types.ExitCode
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code types.ExitCode, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeOf maps an error returned by a command to the exit status.
func exitCodeOf(err error) types.ExitCode {
	var ee *exitError
	switch {
	case err == nil:
		return types.ExitSuccess
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, types.ErrLockContention):
		return types.ExitLockContention
	case errors.Is(err, types.ErrConfigurationInvalid), errors.Is(err, types.ErrInvalidScheduleFormat):
		return types.ExitConfigError
	default:
		return types.ExitFailure
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "backup-archiver",
		Short: "Incremental zip backups of local directories",
		Long: `backup-archiver copies changed files from the configured source
directories into timestamped zip archives and keeps the newest few.

Examples:
  backup-archiver config init              # Write config.yaml with defaults
  backup-archiver run                      # Back up using the configured mode
  backup-archiver run --mode full          # Force a full backup
  backup-archiver schedule                 # Stay in the foreground, back up daily
  backup-archiver inspect backup_20240501_020000.zip --verify`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(runCmd(a))
	rootCmd.AddCommand(scheduleCmd(a))
	rootCmd.AddCommand(archivesCmd(a))
	rootCmd.AddCommand(inspectCmd(a))
	rootCmd.AddCommand(deleteCmd(a))
	rootCmd.AddCommand(pruneCmd(a))
	rootCmd.AddCommand(configCmd(a))
	rootCmd.AddCommand(notifyCmd(a))
	return rootCmd
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCodeOf(err).Int())
}
