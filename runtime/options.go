package runtime

import (
	"go.uber.org/zap"

	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/internal/thread"
)

// Option configures a Runtime.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	override *capability.Version
	thread   func() uint64
	affinity bool
}

func defaultOptions() options {
	return options{
		thread:   thread.ID,
		affinity: true,
	}
}

// WithLogger sets the logger for runtime events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithVersionOverride skips live version detection and uses v.
func WithVersionOverride(v capability.Version) Option {
	return func(o *options) {
		o.override = &v
	}
}

// WithThreadIdentity replaces the function that identifies the calling
// thread. The default is the OS thread id.
func WithThreadIdentity(id func() uint64) Option {
	return func(o *options) {
		if id != nil {
			o.thread = id
		}
	}
}

// WithThreadAffinity enables or disables the check that sessions are used
// only from the thread that began them. It is enabled by default; callers
// relying on it lock their goroutine with runtime.LockOSThread.
func WithThreadAffinity(enabled bool) Option {
	return func(o *options) {
		o.affinity = enabled
	}
}
