package types

import (
	"fmt"
	"time"
)

// ErrorCode represents specific failure classes absorbed by the sink.
type ErrorCode int

const (
	// ErrCodeUnknown represents an unknown error
	ErrCodeUnknown ErrorCode = iota

	// File operation errors
	ErrCodeMkdir
	ErrCodeFileOpen
	ErrCodeFileWrite
	ErrCodeFileFlush
	ErrCodeFileClose
	ErrCodeFileLock

	// Storage
	ErrCodeDiskFull
	ErrCodeRetention

	// Crash capture
	ErrCodeDump

	// Configuration
	ErrCodeInvalidConfig
)

var codeNames = map[ErrorCode]string{
	ErrCodeUnknown:       "unknown",
	ErrCodeMkdir:         "mkdir",
	ErrCodeFileOpen:      "file_open",
	ErrCodeFileWrite:     "file_write",
	ErrCodeFileFlush:     "file_flush",
	ErrCodeFileClose:     "file_close",
	ErrCodeFileLock:      "file_lock",
	ErrCodeDiskFull:      "disk_full",
	ErrCodeRetention:     "retention",
	ErrCodeDump:          "dump",
	ErrCodeInvalidConfig: "invalid_config",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// SinkError is a failure that was absorbed on the logging path and reported
// on the side channel instead of being returned to the logging caller.
type SinkError struct {
	Code ErrorCode
	Op   string // Operation that failed (e.g. "open", "write", "flush")
	Path string // File or directory involved
	Key  string // Routing key, if any
	Err  error
	Time time.Time
}

// NewSinkError creates a new SinkError stamped with the current time.
func NewSinkError(code ErrorCode, op, path string, err error) *SinkError {
	return &SinkError{
		Code: code,
		Op:   op,
		Path: path,
		Err:  err,
		Time: time.Now(),
	}
}

// WithKey records the routing key the failure belongs to.
func (e *SinkError) WithKey(key RoutingKey) *SinkError {
	e.Key = key.String()
	return e
}

// Error implements the error interface
func (e *SinkError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("logsink: %s failed on %s (%s): %v", e.Op, e.Path, e.Key, e.Err)
	}
	return fmt.Sprintf("logsink: %s failed on %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *SinkError) Unwrap() error {
	return e.Err
}

// Is matches another SinkError by code.
func (e *SinkError) Is(target error) bool {
	t, ok := target.(*SinkError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ErrorHandler receives every failure the sink absorbs. It must not log
// through the same sink.
type ErrorHandler func(err *SinkError)

// SilentErrorHandler discards all errors (used in tests)
var SilentErrorHandler ErrorHandler = func(*SinkError) {}
