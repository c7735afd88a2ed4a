package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raoulx24/backup-archiver/internal/types"
)

func runCmd(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one backup now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}

			var m types.Mode
			if mode != "" {
				var err error
				if m, err = types.ParseMode(mode); err != nil {
					return withCode(types.ExitConfigError, err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := a.orchestrator(cmd.OutOrStdout()).Run(ctx, m)
			for _, issue := range out.Issues {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", issue)
			}
			if code := out.ExitCode(); code != types.ExitSuccess {
				if out.Reason == nil {
					return withCode(code, errors.New(out.Message()))
				}
				return withCode(code, out.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Backup mode for this run: full or incremental (default from config)")
	return cmd
}
