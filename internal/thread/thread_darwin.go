//go:build darwin

package thread

import (
	"golang.org/x/sys/unix"
)

// ID returns the system-wide thread id reported by thread_selfid.
func ID() uint64 {
	id, _, _ := unix.RawSyscall(unix.SYS_THREAD_SELFID, 0, 0, 0)
	return uint64(id)
}
