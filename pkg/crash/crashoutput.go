package crash

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// RuntimeCrashOutput asks the Go runtime to copy its own fatal error report
// (unrecovered panics, fatal runtime errors) to a file in the dump
// directory. Such crashes bypass deferred handlers, so this is the only way
// they leave an artifact. The file is named like a dump with a .crash
// extension and removed on Uninstall if nothing was written.
type RuntimeCrashOutput struct {
	mu   sync.Mutex
	file *os.File
}

var _ FaultHandler = (*RuntimeCrashOutput)(nil)

// NewRuntimeCrashOutput creates an adapter. It does nothing until installed.
func NewRuntimeCrashOutput() *RuntimeCrashOutput {
	return &RuntimeCrashOutput{}
}

// Install implements FaultHandler.
func (o *RuntimeCrashOutput) Install(c *Capturer) error {
	if c == nil {
		return errors.New("nil capturer")
	}
	dir := c.target.DumpDir()
	if dir == "" {
		return errors.New("dump directory not configured")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file != nil {
		return errors.New("crash output already installed")
	}

	// #nosec G301 - dump directories need to be accessible by other processes
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create dump directory")
	}
	name := strings.TrimSuffix(ArtifactName(c.now()), ".dmp") + ".crash"
	path := filepath.Join(dir, name)
	// #nosec G302 G304 - path is built from the configured dump directory
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "open crash output")
	}
	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return errors.Wrap(err, "set crash output")
	}
	o.file = f
	return nil
}

// Path returns the file the runtime reports to, or "" when not installed.
func (o *RuntimeCrashOutput) Path() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return ""
	}
	return o.file.Name()
}

// Uninstall implements FaultHandler.
func (o *RuntimeCrashOutput) Uninstall() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return nil
	}

	err := debug.SetCrashOutput(nil, debug.CrashOptions{})
	path := o.file.Name()
	if cerr := o.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	o.file = nil

	if info, serr := os.Stat(path); serr == nil && info.Size() == 0 {
		_ = os.Remove(path)
	}
	return errors.Wrap(err, "reset crash output")
}
