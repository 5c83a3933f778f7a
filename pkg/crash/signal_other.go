//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package crash

import "os"

var fatalSignals []os.Signal

func signalName(sig os.Signal) string {
	return sig.String()
}
