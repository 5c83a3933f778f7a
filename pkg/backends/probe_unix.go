//go:build linux || darwin || freebsd

package backends

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var diskFullErrnos = []error{unix.ENOSPC, unix.EDQUOT}

// StatfsProbe reads free space with statfs(2).
type StatfsProbe struct{}

// FreeBytes implements DiskProbe.
func (StatfsProbe) FreeBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, errors.Wrapf(err, "statfs %s", dir)
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
