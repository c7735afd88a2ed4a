package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raoulx24/backup-archiver/internal/config"
	"github.com/raoulx24/backup-archiver/internal/notify"
	"github.com/raoulx24/backup-archiver/internal/schedule"
	"github.com/raoulx24/backup-archiver/internal/types"
)

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(a.cfgPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s, edit \"sources\" before the first run\n", a.cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			spec, err := schedule.ParseSpec(a.cfg.Schedule)
			if err != nil {
				return withCode(types.ExitConfigError, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sources:    %d\n", len(a.cfg.Sources))
			fmt.Fprintf(out, "backupDir:  %s\n", a.cfg.BackupDir)
			fmt.Fprintf(out, "mode:       %s\n", a.cfg.Mode)
			fmt.Fprintf(out, "maxBackups: %d\n", a.cfg.MaxBackups)
			fmt.Fprintf(out, "schedule:   %s daily\n", spec)
			return nil
		},
	})

	return cmd
}

func notifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Test notifications",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification with the configured settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			if !a.cfg.Notify.Email.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Email notifications are disabled; the message goes to the log only")
			}

			n := notify.WithTimeout(notifierFrom(a.cfg, a.log), a.cfg.Notify.Timeout)
			body := fmt.Sprintf("Test notification sent at %s.\n", time.Now().Format("2006-01-02 15:04:05"))
			if err := n.Notify(cmd.Context(), "Backup - test notification", body); err != nil {
				return fmt.Errorf("sending test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	})

	return cmd
}
