package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "logsink",
		Short: "Severity and category routed log files",
		Long: `logsink writes formatted log lines into per-severity or per-category
directories with size and day rotation, retention and crash dumps.

  logsink run --config settings.yaml    Emit demo records through a configured sink
  logsink prune --dir logs --max-files 5 Apply retention to an existing tree
  logsink dump-test --dump-dir dumps     Trigger a crash capture and exit`,
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newDumpTestCmd())
	return root
}
