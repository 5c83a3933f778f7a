package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wayneeseguin/logsink/pkg/features"
)

func newPruneCmd() *cobra.Command {
	var (
		dir      string
		maxFiles int
		maxAge   time.Duration
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old log files below a directory",
		Long: `prune walks every routing directory below --dir and keeps at most
--max-files of the newest log files in each, removing any older than
--max-age. Files held open by a running sink are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				return errors.New("--dir is required")
			}
			if maxFiles < 0 || maxAge < 0 {
				return errors.New("--max-files and --max-age must not be negative")
			}
			if maxFiles == 0 && maxAge == 0 {
				return errors.New("set --max-files or --max-age")
			}

			if dryRun {
				return listTree(cmd, dir)
			}

			rm := features.NewRetentionManager(maxFiles, maxAge)
			removed, err := rm.PruneTree(dir)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d files\n", removed)
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Root of the log tree")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Files kept per directory (0 = unlimited)")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Maximum file age (0 = unlimited)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List log files per directory without removing anything")
	return cmd
}

func listTree(cmd *cobra.Command, root string) error {
	dirs, err := features.LogDirs(root)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, d := range dirs {
		files, err := features.ListLogFiles(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%d files)\n", d, len(files))
		for _, f := range files {
			fmt.Fprintf(out, "  %s\t%d\t%s\n", f.Name, f.Size, f.Created.Format(time.RFC3339))
		}
	}
	return nil
}
