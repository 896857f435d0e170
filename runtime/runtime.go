package runtime

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/callback"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/errors"
	"github.com/wippyai/jet-runtime/resource"
)

// Runtime is the per-process context every engine call goes through. It
// owns the capability set, the entry-point binding, the callback guard and
// the resource tracker of one loaded engine build.
type Runtime struct {
	lib       jetruntime.Library
	caps      *capability.Registry
	binding   *dispatch.Binding
	guard     *callback.Guard
	tracker   *resource.Tracker
	thread    func() uint64
	log       *zap.Logger
	instances map[resource.ID]*Instance
	mu        sync.Mutex
	closed    bool
}

// New attaches to lib: it detects the build's capabilities, binds one
// variant per operation and routes engine callbacks through a new guard.
func New(ctx context.Context, lib jetruntime.Library, opts ...Option) (*Runtime, error) {
	if lib == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "nil library")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	var reg *capability.Registry
	if o.override != nil {
		reg = capability.NewFixedRegistry(*o.override)
	} else {
		reg = capability.NewRegistry(versionSource(lib))
	}

	caps, err := reg.Current(ctx)
	if err != nil {
		return nil, errors.Load("detect engine version", err)
	}
	log.Debug("engine capabilities detected",
		zap.String("library", lib.Name()),
		zap.Stringer("version", caps.Version()),
		zap.Bool("overridden", o.override != nil),
		zap.Stringer("capabilities", caps))

	r := &Runtime{
		lib:       lib,
		caps:      reg,
		binding:   dispatch.Bind(lib, caps),
		guard:     callback.NewGuard(),
		tracker:   resource.NewTracker(o.affinity),
		thread:    o.thread,
		log:       log,
		instances: make(map[resource.ID]*Instance),
	}
	if err := r.binding.Unexpected(); err != nil {
		log.Debug("engine build lacks entry points its version claims", zap.Error(err))
	}
	lib.SetDispatcher(r.guard)
	return r, nil
}

// versionSource asks the build for its version through JetGetVersion.
func versionSource(lib jetruntime.Library) capability.VersionSource {
	return func(ctx context.Context) (uint32, error) {
		proc, ok := lib.Lookup("JetGetVersion")
		if !ok {
			return 0, errors.NotFound(errors.PhaseCapability, "entry point", "JetGetVersion")
		}
		var raw uint64
		st, err := proc.Call(ctx, uint64(0), &raw)
		if err != nil {
			return 0, err
		}
		if st.IsError() {
			return 0, errors.Native(string(dispatch.OpGetVersion), proc.Symbol(), st)
		}
		return uint32(raw), nil
	}
}

// Capabilities returns the capability set of the loaded build.
func (r *Runtime) Capabilities() capability.Set {
	return r.binding.Capabilities()
}

// Supports reports whether op can be called on the loaded build.
func (r *Runtime) Supports(op dispatch.Operation) bool {
	return r.binding.Supports(op)
}

// Variant returns the entry point bound for op.
func (r *Runtime) Variant(op dispatch.Operation) (dispatch.Variant, error) {
	return r.binding.Variant(op)
}

// Require fails with FeatureNotAvailable naming op when f is unavailable.
func (r *Runtime) Require(f capability.Flag, op string) error {
	return r.Capabilities().Require(f, op)
}

// RequireRevision fails with FeatureNotAvailable naming op when f is
// unavailable or the entry point bound for op is older than rev. A build
// may claim a version yet lack its newest export; the bound variant is what
// actually receives the arguments.
func (r *Runtime) RequireRevision(op dispatch.Operation, rev int, f capability.Flag) error {
	if err := r.Require(f, string(op)); err != nil {
		return err
	}
	v, err := r.binding.Variant(op)
	if err != nil {
		return err
	}
	if v.Revision < rev {
		e := errors.FeatureNotAvailable(string(op), f.String())
		e.Symbol = v.Symbol
		return e
	}
	return nil
}

// Guard returns the callback guard.
func (r *Runtime) Guard() *callback.Guard {
	return r.guard
}

// Tracker returns the resource tracker.
func (r *Runtime) Tracker() *resource.Tracker {
	return r.tracker
}

// Leaks lists every resource that is still open.
func (r *Runtime) Leaks() []resource.Entry {
	return r.tracker.Leaks()
}

// Collect releases callback entries whose registration was revoked and
// whose last call has returned.
func (r *Runtime) Collect() int {
	return r.guard.Collect()
}

// SetParameter sets a process-wide system parameter.
func (r *Runtime) SetParameter(ctx context.Context, p jetruntime.Param, value uint64, text string) (jetruntime.Warning, error) {
	if err := r.checkParameter(p, value); err != nil {
		return 0, err
	}
	return r.binding.Invoke(ctx, dispatch.OpSetSystemParameter, func(v dispatch.Variant) []any {
		return []any{uint64(0), uint64(0), uint32(p), value, str(v, text)}
	})
}

func (r *Runtime) checkParameter(p jetruntime.Param, value uint64) error {
	if p == jetruntime.ParamDatabasePageSize && value > 8192 {
		return r.Require(capability.LargePages, string(dispatch.OpSetSystemParameter))
	}
	return nil
}

// Close terminates every open instance, revokes all callbacks and unloads
// the build. Every failure is reported.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	open := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		open = append(open, inst)
	}
	r.mu.Unlock()

	var result *multierror.Error
	for _, inst := range open {
		if err := inst.Terminate(ctx, TermOptions{}); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := r.guard.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.lib.Close(ctx); err != nil {
		result = multierror.Append(result, errors.Wrap(errors.PhaseLoad, errors.KindInvalidOperation, err, "close library"))
	}
	r.guard.Collect()
	return result.ErrorOrNil()
}

// check verifies that id is open and usable from the calling thread.
func (r *Runtime) check(op dispatch.Operation, id resource.ID) error {
	return r.tracker.Check(string(op), id, r.thread())
}

func str(v dispatch.Variant, s string) jetruntime.String {
	return jetruntime.String{Value: s, Wide: v.Wide}
}
