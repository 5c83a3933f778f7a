//go:build !linux && !darwin && !freebsd

package backends

import (
	"syscall"

	"github.com/pkg/errors"
)

var diskFullErrnos = []error{syscall.ENOSPC}

// StatfsProbe is unavailable on this platform; it always fails and the
// writer falls back to detecting ENOSPC on write.
type StatfsProbe struct{}

// FreeBytes implements DiskProbe.
func (StatfsProbe) FreeBytes(dir string) (uint64, error) {
	return 0, errors.Errorf("statfs not supported for %s", dir)
}
