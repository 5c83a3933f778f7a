package sink

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/wayneeseguin/logsink/pkg/types"
)

// isTestMode detects if we're running under go test
func isTestMode() bool {
	// Check command line arguments for test-related flags first
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}

	if exe, err := os.Executable(); err == nil {
		if strings.HasSuffix(filepath.Base(exe), ".test") {
			return true
		}
	}

	return false
}

// getDefaultErrorHandler returns the appropriate error handler based on environment
func getDefaultErrorHandler() types.ErrorHandler {
	if isTestMode() {
		return SilentErrorHandler
	}
	return StderrErrorHandler
}
