package crash

import (
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// PanicHandler turns unrecovered panics into captures. Use Recover in a
// defer at the top of main and of long-lived goroutines, or start them with
// Go.
type PanicHandler struct {
	mu       sync.RWMutex
	capturer *Capturer
}

var _ FaultHandler = (*PanicHandler)(nil)

// NewPanicHandler creates a panic handler. It does nothing until installed.
func NewPanicHandler() *PanicHandler {
	return &PanicHandler{}
}

// Install implements FaultHandler.
func (h *PanicHandler) Install(c *Capturer) error {
	if c == nil {
		return errors.New("nil capturer")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capturer = c
	return nil
}

// Uninstall implements FaultHandler. Recover re-panics afterwards.
func (h *PanicHandler) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capturer = nil
	return nil
}

// Recover must be deferred directly:
//
//	defer handler.Recover()
func (h *PanicHandler) Recover() {
	r := recover()
	if r == nil {
		return
	}

	h.mu.RLock()
	c := h.capturer
	h.mu.RUnlock()
	if c == nil {
		panic(r)
	}
	c.Capture(PanicFault(r, debug.Stack()))
}

// Go runs fn in a goroutine with panic capture.
func (h *PanicHandler) Go(fn func()) {
	go func() {
		defer h.Recover()
		fn()
	}()
}

// PanicFault describes a recovered panic value.
func PanicFault(recovered interface{}, stack []byte) Fault {
	var reason string
	switch v := recovered.(type) {
	case error:
		reason = v.Error()
	default:
		reason = fmt.Sprintf("%v", v)
	}
	return Fault{
		Code:    "panic",
		Address: panicSite(),
		Reason:  reason,
		Stack:   stack,
	}
}

// panicSite returns the frame that raised the panic: the first non-runtime
// frame below runtime.gopanic. Empty when not called during a panic.
func panicSite() string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	panicking := false
	for {
		frame, more := frames.Next()
		switch {
		case frame.Function == "runtime.gopanic":
			panicking = true
		case panicking && !strings.HasPrefix(frame.Function, "runtime."):
			return fmt.Sprintf("%#x (%s:%d)", frame.PC, filepath.Base(frame.File), frame.Line)
		}
		if !more {
			return ""
		}
	}
}
