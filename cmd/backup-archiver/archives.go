package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raoulx24/backup-archiver/internal/archive"
	"github.com/raoulx24/backup-archiver/internal/types"
)

func archivesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archives",
		Short: "List archives in the backup directory, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}

			list, err := archive.List(a.cfg.BackupDir)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No archives in %s\n", a.cfg.BackupDir)
				return nil
			}
			slices.Reverse(list)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tTAKEN\t")
			var total int64
			for _, info := range list {
				taken := humanize.Time(info.Timestamp)
				if !info.Parsed {
					taken += " (mtime)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t\n", info.Name, humanize.Bytes(uint64(info.Size)), taken)
				total += info.Size
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d archives, %s\n", len(list), humanize.Bytes(uint64(total)))
			return nil
		},
	}
}

func inspectCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "List the contents of an archive",
		Long: `Lists the entries of an archive. <archive> is either a path or the name of
an archive in the backup directory. With --verify every entry is read back
and its checksum checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			p, err := a.archivePath(args[0])
			if err != nil {
				return err
			}

			in := archive.NewInspector(a.log)
			var (
				entries []archive.Entry
				rep     archive.Report
			)
			if verify {
				rep, err = in.Verify(p)
				entries = rep.Entries
			} else {
				entries, err = in.List(p)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SIZE\tMODIFIED\tPATH\t")
			var total int64
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t\n", humanize.Bytes(uint64(e.Size)), e.ModifiedAt.Format("2006-01-02 15:04:05"), e.Path)
				total += e.Size
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d files, %s\n", len(entries), humanize.Bytes(uint64(total)))

			if !verify {
				return nil
			}
			for _, f := range rep.Bad {
				fmt.Fprintln(out, "BAD", f.String())
			}
			if !rep.OK() {
				return withCode(types.ExitFailure, fmt.Errorf("%w: %d of %d entries failed verification", types.ErrCorruptArchive, len(rep.Bad), len(entries)))
			}
			fmt.Fprintln(out, "All entries verified")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Read every entry back and check its CRC")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <archive>",
		Short: "Delete one archive from the backup directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			if err := a.orchestrator(cmd.OutOrStdout()).DeleteArchive(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func pruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest archives beyond maxBackups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			deleted, err := a.orchestrator(cmd.OutOrStdout()).Prune(cmd.Context())
			for _, name := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Nothing to prune (keeping %d)\n", a.cfg.MaxBackups)
			}
			return nil
		},
	}
}

// archivePath accepts a bare archive name from the backup directory or any
// path to a zip file.
func (a *app) archivePath(arg string) (string, error) {
	if filepath.Base(arg) == arg && archive.IsArchiveName(arg) {
		return archive.Resolve(a.cfg.BackupDir, arg)
	}
	return arg, nil
}
