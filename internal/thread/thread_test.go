package thread

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestID_StableWhileLocked(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	first := ID()
	assert.NotZero(t, first)
	for i := 0; i < 10; i++ {
		runtime.Gosched()
		assert.Equal(t, first, ID())
	}
}

func TestID_DiffersAcrossLockedThreads(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Skip("thread ids not distinct on this platform")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	mine := ID()

	other := make(chan uint64)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		other <- ID()
	}()
	assert.NotEqual(t, mine, <-other)
}
