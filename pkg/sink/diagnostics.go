package sink

import (
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wayneeseguin/logsink/pkg/types"
)

// Diagnostics file defaults. The file is rotated by lumberjack, independently
// of the sink, so reporting a sink failure can never route back into it.
const (
	DiagnosticsMaxSizeMB  = 10
	DiagnosticsMaxBackups = 3
	DiagnosticsMaxAgeDays = 28
)

const diagnosticsTimeFormat = "2006-01-02 15:04:05.000"

// WriterErrorHandler returns an error handler that writes one line per
// failure to w. Writes are serialized.
func WriterErrorHandler(w io.Writer) types.ErrorHandler {
	var mu sync.Mutex
	return func(err *types.SinkError) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s [%s] %s\n", err.Time.Format(diagnosticsTimeFormat), err.Code, err.Error())
	}
}

// StderrErrorHandler writes errors to stderr (default behavior)
var StderrErrorHandler = WriterErrorHandler(os.Stderr)

// SilentErrorHandler discards all errors
var SilentErrorHandler = types.SilentErrorHandler

// ChannelErrorHandler returns an error handler that sends errors to a channel
func ChannelErrorHandler(ch chan<- *types.SinkError) types.ErrorHandler {
	return func(err *types.SinkError) {
		select {
		case ch <- err:
		default:
			// Channel full, fallback to stderr
			StderrErrorHandler(err)
		}
	}
}

// MultiErrorHandler combines multiple error handlers
func MultiErrorHandler(handlers ...types.ErrorHandler) types.ErrorHandler {
	return func(err *types.SinkError) {
		for _, handler := range handlers {
			if handler != nil {
				handler(err)
			}
		}
	}
}

func newDiagnosticsFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DiagnosticsMaxSizeMB,
		MaxBackups: DiagnosticsMaxBackups,
		MaxAge:     DiagnosticsMaxAgeDays,
		LocalTime:  true,
	}
}
