// Package thread reports the identity of the calling OS thread.
//
// Goroutines migrate between OS threads unless they call
// runtime.LockOSThread. Code that depends on a stable identity must lock.
package thread
