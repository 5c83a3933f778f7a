package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wayneeseguin/logsink/internal/flusher"
	"github.com/wayneeseguin/logsink/internal/metrics"
	"github.com/wayneeseguin/logsink/pkg/config"
	"github.com/wayneeseguin/logsink/pkg/crash"
	"github.com/wayneeseguin/logsink/pkg/frontend"
	"github.com/wayneeseguin/logsink/pkg/sink"
	"github.com/wayneeseguin/logsink/pkg/types"
)

type runOptions struct {
	configPath  string
	dir         string
	category    bool
	count       int
	interval    time.Duration
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Emit demo records through a configured sink",
		Long: `run builds a sink from --config (or --dir), installs crash capture and a
scheduled flusher, then emits a plain record, a socket.Msg record and a slog
record every --interval until --count rounds are done or it is interrupted.
Writer stats and metrics are printed on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configPath == "" && opts.dir == "" {
				return errors.New("set --config or --dir")
			}
			if opts.interval <= 0 {
				return errors.New("--interval must be positive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDemo(ctx, cmd.OutOrStdout(), opts, cmd.Flags().Changed("category"))
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON config file")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Log directory, overrides log.path")
	cmd.Flags().BoolVar(&opts.category, "category", false, "Route by category, overrides log.category")
	cmd.Flags().IntVar(&opts.count, "count", 10, "Rounds to emit (0 = until interrupted)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 100*time.Millisecond, "Delay between rounds")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func buildSink(opts runOptions, categorySet bool) (*sink.Sink, *config.File, error) {
	file := config.Default()
	if opts.configPath != "" {
		var err error
		if file, err = config.Load(opts.configPath); err != nil {
			return nil, nil, err
		}
	}
	if opts.dir != "" {
		file.Log.Path = opts.dir
		file.Log.CategoryPath = ""
		if file.Dump.Path == "" {
			file.Dump.Path = filepath.Join(opts.dir, "dumps")
		}
	}
	if categorySet {
		file.Log.Category = opts.category
	}

	s, err := sink.New(file.Options()...)
	if err != nil {
		return nil, nil, err
	}
	return s, file, nil
}

func runDemo(ctx context.Context, out io.Writer, opts runOptions, categorySet bool) (err error) {
	s, file, err := buildSink(opts, categorySet)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	panics := crash.NewPanicHandler()
	handlers := []crash.FaultHandler{panics, crash.NewSignalHandler()}
	if s.DumpDir() != "" {
		handlers = append(handlers, crash.NewRuntimeCrashOutput())
	}
	if err := crash.Install(crash.NewCapturer(s), handlers...); err != nil {
		return errors.Wrap(err, "install crash capture")
	}
	defer func() {
		for i := len(handlers) - 1; i >= 0; i-- {
			_ = handlers[i].Uninstall()
		}
	}()
	defer panics.Recover()

	interval := time.Duration(file.Log.BuffSecs) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	fl, err := flusher.New(s, interval)
	if err != nil {
		return err
	}
	fl.Start()
	defer fl.Stop()

	if opts.metricsAddr != "" {
		shutdown := serveMetrics(opts.metricsAddr, s.Metrics(), s)
		defer shutdown()
	}

	logger := frontend.NewLogger(s, frontend.WithRules(frontend.NewRules(file.Rules)))
	slogger := slog.New(frontend.NewHandler(logger, nil))

	emitRounds(ctx, logger, slogger, opts.count, opts.interval)

	s.FlushAll()
	return printSummary(out, s)
}

// emitRounds logs one plain, one socket.Msg and one slog record per round.
func emitRounds(ctx context.Context, logger *frontend.Logger, slogger *slog.Logger, count int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		logger.Info("", fmt.Sprintf("demo record %d", round))
		logger.Debug("socket.Msg", fmt.Sprintf("socket message %d", round))
		slogger.Warn("slog record", frontend.CategoryKey, "socket.Conn", "round", round)

		if count != 0 && round >= count {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(addr string, m *metrics.Collector, s *sink.Sink) func() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewPrometheusCollector(m))

	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.ReportError(types.NewSinkError(types.ErrCodeUnknown, "serve metrics", addr, err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printSummary(out io.Writer, s *sink.Sink) error {
	for _, st := range s.Stats() {
		fmt.Fprintf(out, "%-28s %8d bytes  %s\n", st.Key, st.Length, st.Path)
	}
	data, err := json.MarshalIndent(s.Metrics().Snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode metrics")
	}
	fmt.Fprintf(out, "%s\n", data)
	return nil
}
