//go:build !linux && !windows && !darwin

package thread

// ID returns 1 on platforms without a thread id; affinity checks then
// treat every caller as the same thread.
func ID() uint64 {
	return 1
}
