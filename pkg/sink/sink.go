package sink

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wayneeseguin/logsink/internal/metrics"
	"github.com/wayneeseguin/logsink/pkg/backends"
	"github.com/wayneeseguin/logsink/pkg/features"
	"github.com/wayneeseguin/logsink/pkg/types"
)

// Sink is the entry point front ends call with formatted payloads. It owns
// the configuration and the destination registry.
//
// Setters are last-write-wins and meant to be called before the first
// record; settings bound to a writer at creation (size, buffering,
// file/line legend) apply to writers created afterwards. Reconfiguring while
// other goroutines log is safe but the cut-over point is unspecified.
type Sink struct {
	mu     sync.RWMutex
	config Config

	registry     *Registry
	retention    *features.RetentionManager
	metrics      *metrics.Collector
	diagnostics  *lumberjack.Logger
	errorHandler types.ErrorHandler
}

// NewWithConfig creates a Sink with the given configuration. The config is
// validated and copied.
func NewWithConfig(config *Config) (*Sink, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg := *config
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector()
	}

	s := &Sink{
		metrics:      cfg.Metrics,
		errorHandler: cfg.ErrorHandler,
	}

	if cfg.DiagnosticsFile != "" {
		s.diagnostics = newDiagnosticsFile(cfg.DiagnosticsFile)
		s.errorHandler = MultiErrorHandler(cfg.ErrorHandler, WriterErrorHandler(s.diagnostics))
	}
	cfg.ErrorHandler = s.errorHandler

	s.retention = features.NewRetentionManager(cfg.MaxFiles, cfg.MaxAge)
	s.retention.SetClock(cfg.Clock)

	s.config = cfg
	s.registry = NewRegistry(&cfg, s.retention)
	return s, nil
}

// Route hands one formatted record to the file selected by the routing mode.
// It never fails; problems go to the error handler.
func (s *Sink) Route(sev types.Severity, category string, payload []byte, flushHint bool) {
	s.registry.Route(sev, category, payload, flushHint)
}

// FlushAll flushes every writer of the active routing mode.
func (s *Sink) FlushAll() {
	s.registry.FlushAll()
}

// Registry returns the destination registry.
func (s *Sink) Registry() *Registry {
	return s.registry
}

// Metrics returns the collector the sink reports to.
func (s *Sink) Metrics() *metrics.Collector {
	return s.metrics
}

// Retention returns the retention manager used for newly opened files.
func (s *Sink) Retention() *features.RetentionManager {
	return s.retention
}

// Stats returns the state of every writer.
func (s *Sink) Stats() []backends.Stats {
	return s.registry.Stats()
}

// ReportError passes a failure from a front end or adapter to the error
// handler.
func (s *Sink) ReportError(err *types.SinkError) {
	s.metrics.TrackError(err.Code.String())
	s.errorHandler(err)
}

// Config returns a copy of the current configuration.
func (s *Sink) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// SetMaxSizeMB sets the rotation size for writers created afterwards.
func (s *Sink) SetMaxSizeMB(mb int) error {
	if mb < 0 {
		return invalidConfig("max size must not be negative, got %d", mb)
	}
	if mb == 0 {
		mb = DefaultMaxSizeMB
	}
	s.update(func(c *Config) { c.MaxSizeMB = mb })
	return nil
}

// SetBufferSeconds sets the flush interval for writers created afterwards.
func (s *Sink) SetBufferSeconds(secs int) error {
	if secs < 0 {
		return invalidConfig("buffer seconds must not be negative, got %d", secs)
	}
	s.update(func(c *Config) { c.BufferSeconds = secs })
	return nil
}

// SetFlushImmediately flushes every record when enabled.
func (s *Sink) SetFlushImmediately(enabled bool) {
	s.update(func(c *Config) { c.FlushImmediately = enabled })
}

// SetCategoryMode switches between severity and category routing.
func (s *Sink) SetCategoryMode(enabled bool) {
	s.mu.Lock()
	s.config.CategoryMode = enabled
	s.mu.Unlock()
	s.registry.SetCategoryMode(enabled)
}

// CategoryMode reports whether records are routed by category.
func (s *Sink) CategoryMode() bool {
	return s.registry.CategoryMode()
}

// SetSeverityDestination sets the base directory of one severity.
func (s *Sink) SetSeverityDestination(sev types.Severity, dir string) error {
	if err := s.registry.SetSeverityDestination(sev, dir); err != nil {
		return err
	}
	s.mu.Lock()
	s.config.SeverityDirs[sev] = dir
	s.mu.Unlock()
	return nil
}

// SetLogDir sets the same base directory for every severity.
func (s *Sink) SetLogDir(dir string) {
	for sev := types.SeverityDebug; sev <= types.SeverityFatal; sev++ {
		_ = s.SetSeverityDestination(sev, dir)
	}
}

// SetCategoryDestination sets the base directory for category mode.
func (s *Sink) SetCategoryDestination(dir string) {
	s.mu.Lock()
	s.config.CategoryDir = dir
	s.mu.Unlock()
	s.registry.SetCategoryDestination(dir)
}

// SetDumpDir sets where crash artifacts are written.
func (s *Sink) SetDumpDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.DumpDir = dir
}

// DumpDir returns where crash artifacts are written.
func (s *Sink) DumpDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.DumpDir
}

// SetIncludeFileLine toggles the file/line field. The header legend of
// writers created afterwards follows it.
func (s *Sink) SetIncludeFileLine(enabled bool) {
	s.update(func(c *Config) { c.IncludeFileLine = enabled })
}

// IncludeFileLine reports whether lines carry the file/line field.
func (s *Sink) IncludeFileLine() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.IncludeFileLine
}

// SetPrintToConsole toggles echoing formatted lines to stderr.
func (s *Sink) SetPrintToConsole(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.PrintToConsole = enabled
}

// PrintToConsole reports whether front ends echo lines to stderr.
func (s *Sink) PrintToConsole() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.PrintToConsole
}

// SetRetention changes the retention limits applied when files are opened.
func (s *Sink) SetRetention(maxFiles int, maxAge time.Duration) error {
	if maxFiles < 0 || maxAge < 0 {
		return invalidConfig("retention limits must not be negative, got %d files, %s", maxFiles, maxAge)
	}
	s.retention.SetMaxFiles(maxFiles)
	s.retention.SetMaxAge(maxAge)
	s.update(func(c *Config) {
		c.MaxFiles = maxFiles
		c.MaxAge = maxAge
	})
	return nil
}

// update applies fn to the sink's config and to the defaults the registry
// builds new writers from.
func (s *Sink) update(fn func(*Config)) {
	s.mu.Lock()
	fn(&s.config)
	s.mu.Unlock()
	s.registry.setWriterDefaults(fn)
}

// Close flushes and closes every file. The sink may be used again afterwards;
// new files are opened on demand.
func (s *Sink) Close() error {
	err := s.registry.Close()
	if s.diagnostics != nil {
		if derr := s.diagnostics.Close(); derr != nil && err == nil {
			err = errors.Wrap(derr, "close diagnostics file")
		}
	}
	return err
}
