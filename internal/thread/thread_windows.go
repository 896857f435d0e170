//go:build windows

package thread

import "golang.org/x/sys/windows"

// ID returns the Windows thread id of the calling thread.
func ID() uint64 {
	return uint64(windows.GetCurrentThreadId())
}
