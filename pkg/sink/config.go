package sink

import (
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/logsink/internal/metrics"
	"github.com/wayneeseguin/logsink/pkg/backends"
	"github.com/wayneeseguin/logsink/pkg/types"
)

const (
	// DefaultMaxSizeMB is used when MaxSizeMB is zero.
	DefaultMaxSizeMB = 10

	// DefaultBufferSeconds is the default flush interval.
	DefaultBufferSeconds = 5
)

// Config contains all configuration options for a Sink.
// It is read when writers are created; see the setters on Sink for what may
// change afterwards.
type Config struct {
	// Rotation and flushing
	MaxSizeMB        int  // Rotate once a file reaches this many MiB (0 = DefaultMaxSizeMB)
	BufferSeconds    int  // Flush at most this long after a buffered write
	FlushImmediately bool // Flush after every record
	SyncOnFlush      bool // fsync after every flush

	// Routing
	CategoryMode bool                        // Route by category instead of severity
	SeverityDirs [types.NumSeverities]string // Base directory per severity ("" = drop)
	CategoryDir  string                      // Base directory for category mode ("" = drop)
	DumpDir      string                      // Crash artifacts

	// Presentation (used by front ends and the file header)
	IncludeFileLine bool
	PrintToConsole  bool

	// Retention, applied each time a new file is opened
	MaxFiles int           // Files kept per routing directory (0 = unlimited)
	MaxAge   time.Duration // Maximum age of log files (0 = unlimited)

	// Disk guard
	MinFreeBytes uint64             // Trip the guard below this much free space (0 = only on ENOSPC)
	DiskProbe    backends.DiskProbe // Free space source for MinFreeBytes

	// Error handling
	ErrorHandler    types.ErrorHandler // Receives every absorbed failure
	DiagnosticsFile string             // Also append failures to this size-rotated file

	Clock   backends.Clock
	Metrics *metrics.Collector
}

// DefaultConfig returns a Config with sensible defaults: 10 MiB files,
// 5 second buffering, severity mode and no destinations, so every record is
// dropped until a directory is configured.
func DefaultConfig() *Config {
	return &Config{
		MaxSizeMB:     DefaultMaxSizeMB,
		BufferSeconds: DefaultBufferSeconds,
		DiskProbe:     backends.StatfsProbe{},
		ErrorHandler:  getDefaultErrorHandler(),
		Clock:         time.Now,
	}
}

// Validate checks the configuration and applies defaults where a zero value
// means "use the default".
func (c *Config) Validate() error {
	if c.MaxSizeMB < 0 {
		return invalidConfig("max size must not be negative, got %d", c.MaxSizeMB)
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}

	if c.BufferSeconds < 0 {
		return invalidConfig("buffer seconds must not be negative, got %d", c.BufferSeconds)
	}

	if c.MaxFiles < 0 {
		return invalidConfig("max files must not be negative, got %d", c.MaxFiles)
	}

	if c.MaxAge < 0 {
		return invalidConfig("max age must not be negative, got %s", c.MaxAge)
	}

	if c.DiskProbe == nil {
		c.DiskProbe = backends.StatfsProbe{}
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = getDefaultErrorHandler()
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	return nil
}

// SetLogDir points every severity at the same base directory.
func (c *Config) SetLogDir(dir string) {
	for i := range c.SeverityDirs {
		c.SeverityDirs[i] = dir
	}
}

func (c *Config) maxSizeBytes() int64 {
	return int64(c.MaxSizeMB) << 20
}

func (c *Config) bufferInterval() time.Duration {
	return time.Duration(c.BufferSeconds) * time.Second
}

func invalidConfig(format string, args ...interface{}) *types.SinkError {
	return types.NewSinkError(types.ErrCodeInvalidConfig, "config", "", errors.Errorf(format, args...))
}
