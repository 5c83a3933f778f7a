package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wayneeseguin/logsink/pkg/crash"
	"github.com/wayneeseguin/logsink/pkg/sink"
)

func newDumpTestCmd() *cobra.Command {
	var (
		dir     string
		dumpDir string
		fault   string
	)

	cmd := &cobra.Command{
		Use:   "dump-test",
		Short: "Trigger a crash capture and exit with status 2",
		Long: `dump-test raises a fault under an installed panic handler. It writes a
.dmp file to --dump-dir, logs one ERROR record in the "dump" category to
--dir (when set) and exits with status 2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dumpDir == "" {
				return errors.New("--dump-dir is required")
			}
			trigger, ok := faults[fault]
			if !ok {
				return errors.Errorf("unknown fault %q (want panic or nil)", fault)
			}

			opts := []sink.Option{sink.WithDumpPath(dumpDir), sink.WithFlushImmediately(true)}
			if dir != "" {
				opts = append(opts, sink.WithLogDir(dir), sink.WithCategoryDestination(dir))
			}
			s, err := sink.New(opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			capturer := crash.NewCapturer(s, crash.WithExit(func(code int) {
				fmt.Fprintf(out, "dump written to %s\n", dumpDir)
				_ = s.Close()
				exit(code)
			}))
			h := crash.NewPanicHandler()
			if err := h.Install(capturer); err != nil {
				return err
			}
			defer h.Uninstall()

			fmt.Fprintf(out, "triggering %s fault\n", fault)
			func() {
				defer h.Recover()
				trigger()
			}()
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Log directory for the dump record")
	cmd.Flags().StringVar(&dumpDir, "dump-dir", "", "Directory for the dump artifact")
	cmd.Flags().StringVar(&fault, "fault", "panic", "Fault to raise: panic or nil")
	return cmd
}

var faults = map[string]func(){
	"panic": func() {
		panic("logsink dump-test")
	},
	"nil": func() {
		var p *int
		*p = 1
	},
}
