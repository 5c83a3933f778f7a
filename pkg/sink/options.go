package sink

import (
	"time"

	"github.com/wayneeseguin/logsink/internal/metrics"
	"github.com/wayneeseguin/logsink/pkg/backends"
	"github.com/wayneeseguin/logsink/pkg/types"
)

// Option is a functional option for configuring a Sink
type Option func(*Config) error

// New creates a Sink from DefaultConfig with the provided options applied.
func New(options ...Option) (*Sink, error) {
	config := DefaultConfig()

	// Apply all options
	for _, opt := range options {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return NewWithConfig(config)
}

// WithMaxSizeMB sets the size at which files rotate. Zero selects the default.
func WithMaxSizeMB(mb int) Option {
	return func(c *Config) error {
		if mb < 0 {
			return invalidConfig("max size must not be negative, got %d", mb)
		}
		c.MaxSizeMB = mb
		return nil
	}
}

// WithBufferSeconds sets how long a buffered record may wait for a flush.
func WithBufferSeconds(secs int) Option {
	return func(c *Config) error {
		if secs < 0 {
			return invalidConfig("buffer seconds must not be negative, got %d", secs)
		}
		c.BufferSeconds = secs
		return nil
	}
}

// WithFlushImmediately flushes after every record.
func WithFlushImmediately(enabled bool) Option {
	return func(c *Config) error {
		c.FlushImmediately = enabled
		return nil
	}
}

// WithSyncOnFlush fsyncs the file after every flush.
func WithSyncOnFlush(enabled bool) Option {
	return func(c *Config) error {
		c.SyncOnFlush = enabled
		return nil
	}
}

// WithCategoryMode routes records by category instead of severity.
func WithCategoryMode(enabled bool) Option {
	return func(c *Config) error {
		c.CategoryMode = enabled
		return nil
	}
}

// WithSeverityDestination sets the base directory of one severity.
func WithSeverityDestination(sev types.Severity, dir string) Option {
	return func(c *Config) error {
		if !sev.Valid() {
			return invalidConfig("unknown severity %d", int(sev))
		}
		c.SeverityDirs[sev] = dir
		return nil
	}
}

// WithLogDir sets the same base directory for every severity.
func WithLogDir(dir string) Option {
	return func(c *Config) error {
		c.SetLogDir(dir)
		return nil
	}
}

// WithCategoryDestination sets the base directory used in category mode.
func WithCategoryDestination(dir string) Option {
	return func(c *Config) error {
		c.CategoryDir = dir
		return nil
	}
}

// WithDumpPath sets the directory crash artifacts are written to.
func WithDumpPath(dir string) Option {
	return func(c *Config) error {
		c.DumpDir = dir
		return nil
	}
}

// WithFileLine enables the file/line field in lines and the header legend.
func WithFileLine(enabled bool) Option {
	return func(c *Config) error {
		c.IncludeFileLine = enabled
		return nil
	}
}

// WithConsole echoes formatted lines to stderr.
func WithConsole(enabled bool) Option {
	return func(c *Config) error {
		c.PrintToConsole = enabled
		return nil
	}
}

// WithMaxFiles keeps at most count files per routing directory.
func WithMaxFiles(count int) Option {
	return func(c *Config) error {
		if count < 0 {
			return invalidConfig("max files must not be negative, got %d", count)
		}
		c.MaxFiles = count
		return nil
	}
}

// WithMaxAge removes log files older than age.
func WithMaxAge(age time.Duration) Option {
	return func(c *Config) error {
		if age < 0 {
			return invalidConfig("max age must not be negative, got %s", age)
		}
		c.MaxAge = age
		return nil
	}
}

// WithDiskProbe trips the disk guard when probe reports less than minFree
// bytes available.
func WithDiskProbe(probe backends.DiskProbe, minFree uint64) Option {
	return func(c *Config) error {
		if probe == nil {
			return invalidConfig("disk probe must not be nil")
		}
		c.DiskProbe = probe
		c.MinFreeBytes = minFree
		return nil
	}
}

// WithErrorHandler sets the handler for absorbed failures
func WithErrorHandler(handler types.ErrorHandler) Option {
	return func(c *Config) error {
		c.ErrorHandler = handler
		return nil
	}
}

// WithDiagnosticsFile also appends absorbed failures to a size-rotated file.
func WithDiagnosticsFile(path string) Option {
	return func(c *Config) error {
		c.DiagnosticsFile = path
		return nil
	}
}

// WithClock replaces the time source.
func WithClock(clock backends.Clock) Option {
	return func(c *Config) error {
		if clock == nil {
			return invalidConfig("clock must not be nil")
		}
		c.Clock = clock
		return nil
	}
}

// WithMetrics shares a metrics collector with the sink.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) error {
		c.Metrics = m
		return nil
	}
}
