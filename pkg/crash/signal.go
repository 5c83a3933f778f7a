package crash

import (
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/pkg/errors"
)

// SignalHandler captures fatal signals delivered to the process. Faults the
// Go runtime raises itself (nil dereference and the like) become panics and
// are handled by PanicHandler or RuntimeCrashOutput instead.
type SignalHandler struct {
	mu      sync.Mutex
	signals []os.Signal
	ch      chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ FaultHandler = (*SignalHandler)(nil)

// NewSignalHandler creates a handler for sigs, or for the platform's fatal
// signals when none are given.
func NewSignalHandler(sigs ...os.Signal) *SignalHandler {
	if len(sigs) == 0 {
		sigs = fatalSignals
	}
	return &SignalHandler{signals: sigs}
}

// Install implements FaultHandler.
func (h *SignalHandler) Install(c *Capturer) error {
	if c == nil {
		return errors.New("nil capturer")
	}
	if len(h.signals) == 0 {
		return errors.New("no fatal signals on this platform")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ch != nil {
		return errors.New("signal handler already installed")
	}

	h.ch = make(chan os.Signal, 1)
	h.done = make(chan struct{})
	signal.Notify(h.ch, h.signals...)

	h.wg.Add(1)
	go h.loop(c, h.ch, h.done)
	return nil
}

func (h *SignalHandler) loop(c *Capturer, ch <-chan os.Signal, done <-chan struct{}) {
	defer h.wg.Done()
	select {
	case sig := <-ch:
		c.Capture(Fault{
			Code:   signalName(sig),
			Reason: fmt.Sprintf("received signal %v", sig),
		})
	case <-done:
	}
}

// Uninstall implements FaultHandler. It restores default signal handling and
// waits for the watcher goroutine to exit.
func (h *SignalHandler) Uninstall() error {
	h.mu.Lock()
	if h.ch == nil {
		h.mu.Unlock()
		return nil
	}
	signal.Stop(h.ch)
	close(h.done)
	h.ch = nil
	h.done = nil
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}
