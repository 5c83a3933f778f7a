// Package frontend adapts logging APIs to the sink. Every adapter builds a
// types.Record, filters it through Rules, formats it with
// formatters.LineFormatter and hands the line to the sink.
package frontend

import (
	"fmt"
	"runtime"
	"time"

	"github.com/wayneeseguin/logsink/pkg/formatters"
	"github.com/wayneeseguin/logsink/pkg/types"
)

// Sink is the part of sink.Sink the front ends use.
type Sink interface {
	Route(sev types.Severity, category string, payload []byte, flushHint bool)
	CategoryMode() bool
	IncludeFileLine() bool
	PrintToConsole() bool
}

// Logger is the shared front end. It is safe for concurrent use.
type Logger struct {
	sink    Sink
	rules   *Rules
	console *Console
	now     func() time.Time
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithRules filters records before they are formatted.
func WithRules(r *Rules) LoggerOption {
	return func(l *Logger) { l.rules = r }
}

// WithConsole replaces the stderr console echo.
func WithConsole(c *Console) LoggerOption {
	return func(l *Logger) { l.console = c }
}

// WithNow replaces the time source for records without a time.
func WithNow(now func() time.Time) LoggerOption {
	return func(l *Logger) { l.now = now }
}

// NewLogger creates a front end for s.
func NewLogger(s Sink, opts ...LoggerOption) *Logger {
	l := &Logger{sink: s, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.console == nil {
		l.console = NewConsole()
	}
	return l
}

// Enabled reports whether records of category and sev pass the rules.
func (l *Logger) Enabled(category string, sev types.Severity) bool {
	return l.rules.Enabled(category, sev)
}

// Emit filters, formats and routes r. FATAL records are flushed at once.
func (l *Logger) Emit(r types.Record) {
	if !l.rules.Enabled(r.Category, r.Severity) {
		return
	}
	if r.Time.IsZero() {
		r.Time = l.now()
	}
	if r.Thread == 0 {
		r.Thread = formatters.GoroutineID()
	}

	f := formatters.LineFormatter{
		IncludeFileLine: l.sink.IncludeFileLine(),
		CategoryPrefix:  !l.sink.CategoryMode(),
	}
	line := f.Format(r)

	if l.sink.PrintToConsole() {
		l.console.Write(r.Severity, line)
	}
	l.sink.Route(r.Severity, r.Category, line, r.Severity == types.SeverityFatal)
}

// Log emits msg with the caller's location.
func (l *Logger) Log(sev types.Severity, category, msg string) {
	l.log(2, sev, category, msg)
}

// Logf is Log with formatting.
func (l *Logger) Logf(sev types.Severity, category, format string, args ...interface{}) {
	l.log(2, sev, category, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(category, msg string) {
	l.log(2, types.SeverityDebug, category, msg)
}

func (l *Logger) Info(category, msg string) {
	l.log(2, types.SeverityInfo, category, msg)
}

func (l *Logger) Warning(category, msg string) {
	l.log(2, types.SeverityWarning, category, msg)
}

// Critical logs at ERROR, the most severe level that does not flush at once.
func (l *Logger) Critical(category, msg string) {
	l.log(2, types.SeverityError, category, msg)
}

// Fatal logs at FATAL and flushes. It does not exit.
func (l *Logger) Fatal(category, msg string) {
	l.log(2, types.SeverityFatal, category, msg)
}

func (l *Logger) log(skip int, sev types.Severity, category, msg string) {
	if !l.rules.Enabled(category, sev) {
		return
	}
	r := types.Record{
		Time:     l.now(),
		Severity: sev,
		Category: category,
		Message:  msg,
	}
	if l.sink.IncludeFileLine() {
		if pc, file, line, ok := runtime.Caller(skip); ok {
			r.File, r.Line = file, line
			if fn := runtime.FuncForPC(pc); fn != nil {
				r.Function = fn.Name()
			}
		}
	}
	l.Emit(r)
}
