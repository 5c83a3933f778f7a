//go:build linux || darwin || freebsd || netbsd || openbsd

package crash

import (
	"os"

	"golang.org/x/sys/unix"
)

var fatalSignals = []os.Signal{
	unix.SIGABRT,
	unix.SIGBUS,
	unix.SIGSEGV,
	unix.SIGILL,
	unix.SIGFPE,
}

func signalName(sig os.Signal) string {
	if s, ok := sig.(unix.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
