package crash

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/logsink/pkg/formatters"
	"github.com/wayneeseguin/logsink/pkg/types"
)

const (
	// Category is the category of the record emitted for a captured fault.
	Category = "dump"

	// ExitCode is the status the process terminates with after a capture.
	ExitCode = 2

	// DumpTimeFormat is the artifact name layout before the millisecond suffix.
	DumpTimeFormat = "20060102150405"

	allStacksSize = 1 << 20
)

// Target is the sink a Capturer reports to.
type Target interface {
	Route(sev types.Severity, category string, payload []byte, flushHint bool)
	FlushAll()
	DumpDir() string
}

// Fault describes an unrecoverable failure.
type Fault struct {
	Code    string // e.g. "panic" or a signal name
	Address string // Where it happened, if known
	Reason  string
	Stack   []byte // Stack of the faulting goroutine, if known
}

// FaultHandler installs a platform or runtime hook that reports faults to a
// Capturer.
type FaultHandler interface {
	Install(c *Capturer) error
	Uninstall() error
}

// Capturer writes a dump artifact, logs one critical record and terminates
// the process. Only the first fault is captured.
type Capturer struct {
	target       Target
	formatter    *formatters.LineFormatter
	now          func() time.Time
	exit         func(int)
	errorHandler types.ErrorHandler

	once sync.Once
	last string
}

// Install installs every handler in order. On failure the ones already
// installed are removed again.
func Install(c *Capturer, handlers ...FaultHandler) error {
	for i, h := range handlers {
		if err := h.Install(c); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = handlers[j].Uninstall()
			}
			return err
		}
	}
	return nil
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithExit replaces os.Exit.
func WithExit(exit func(int)) Option {
	return func(c *Capturer) { c.exit = exit }
}

// WithClock replaces the time source used for the artifact name.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) { c.now = now }
}

// WithFormatter sets how the critical record is rendered.
func WithFormatter(f *formatters.LineFormatter) Option {
	return func(c *Capturer) { c.formatter = f }
}

// WithErrorHandler receives failures to write the artifact.
func WithErrorHandler(h types.ErrorHandler) Option {
	return func(c *Capturer) { c.errorHandler = h }
}

// NewCapturer creates a capturer reporting to target.
func NewCapturer(target Target, opts ...Option) *Capturer {
	c := &Capturer{
		target:       target,
		formatter:    formatters.NewLineFormatter(false, true),
		now:          time.Now,
		exit:         os.Exit,
		errorHandler: types.SilentErrorHandler,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture records f and terminates the process. Later calls do nothing.
func (c *Capturer) Capture(f Fault) {
	captured := false
	c.once.Do(func() {
		captured = true
		c.last = c.capture(f)
	})
	if captured {
		c.exit(ExitCode)
	}
}

// LastArtifact returns the path written by the capture, or "" if none.
func (c *Capturer) LastArtifact() string {
	return c.last
}

func (c *Capturer) capture(f Fault) string {
	now := c.now()

	path, err := c.writeArtifact(now, f)
	if err != nil {
		c.errorHandler(types.NewSinkError(types.ErrCodeDump, "dump", path, err))
		path = ""
	}

	artifact := path
	if artifact == "" {
		artifact = "(none)"
	}
	msg := fmt.Sprintf("fatal fault %s at %s: %s; dump %s", f.Code, orUnknown(f.Address), f.Reason, artifact)

	line := c.formatter.Format(types.Record{
		Time:     now,
		Severity: types.SeverityError,
		Category: Category,
		Message:  msg,
		Thread:   formatters.GoroutineID(),
	})
	c.target.Route(types.SeverityError, Category, line, true)
	c.target.FlushAll()
	return path
}

// ArtifactName returns the dump file name for a capture at t.
func ArtifactName(t time.Time) string {
	return fmt.Sprintf("%s%03d.dmp", t.Format(DumpTimeFormat), t.Nanosecond()/int(time.Millisecond))
}

func (c *Capturer) writeArtifact(now time.Time, f Fault) (string, error) {
	dir := c.target.DumpDir()
	if dir == "" {
		return "", nil
	}
	// #nosec G301 - dump directories need to be accessible by other processes
	if err := os.MkdirAll(dir, 0755); err != nil {
		return dir, errors.Wrap(err, "create dump directory")
	}

	path := filepath.Join(dir, ArtifactName(now))
	if err := os.WriteFile(path, renderDump(now, f), 0644); err != nil { // #nosec G306 - dumps are read by operators
		return path, errors.Wrap(err, "write dump")
	}
	return path, nil
}

func renderDump(now time.Time, f Fault) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Fault: %s\n", f.Code)
	fmt.Fprintf(&b, "Address: %s\n", orUnknown(f.Address))
	fmt.Fprintf(&b, "Reason: %s\n", f.Reason)
	fmt.Fprintf(&b, "Time: %s\n", now.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "Process: %d %s\n", os.Getpid(), runtime.Version())

	if len(f.Stack) > 0 {
		b.WriteString("\nFaulting goroutine:\n")
		b.Write(f.Stack)
		b.WriteByte('\n')
	}

	buf := make([]byte, allStacksSize)
	n := runtime.Stack(buf, true)
	b.WriteString("\nAll goroutines:\n")
	b.Write(buf[:n])
	return b.Bytes()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
