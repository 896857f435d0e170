package runtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/errors"
	"github.com/wippyai/jet-runtime/resource"
)

// InstanceOptions configures CreateInstance.
type InstanceOptions struct {
	DisplayName string
	Grbit       uint32
}

// InitOptions configures Instance.Init. RecoveryPath needs a build with
// Revision3.
type InitOptions struct {
	RecoveryPath string
	Grbit        uint32
}

// TermOptions configures Instance.Terminate.
type TermOptions struct {
	Abrupt     bool
	Complete   bool
	StopBackup bool
}

func (o TermOptions) grbit() uint32 {
	var g uint32
	if o.Abrupt {
		g |= jetruntime.BitTermAbrupt
	}
	if o.Complete {
		g |= jetruntime.BitTermComplete
	}
	if o.StopBackup {
		g |= jetruntime.BitTermStopBackup
	}
	return g
}

// StopOptions configures Instance.Stop. The zero value stops all service.
type StopOptions struct {
	BackgroundUserTasks bool
	QuiesceCaches       bool
}

func (o StopOptions) grbit() uint32 {
	g := jetruntime.BitStopServiceAll
	if o.BackgroundUserTasks {
		g |= jetruntime.BitStopServiceBackgroundUserTasks
	}
	if o.QuiesceCaches {
		g |= jetruntime.BitStopServiceQuiesceCaches
	}
	return g
}

// Instance is one allocated engine instance. Terminate closes every session
// opened on it first; afterwards every call on the instance or anything
// opened through it fails.
type Instance struct {
	rt          *Runtime
	name        string
	displayName string
	handle      uint64
	termGrbit   uint32
	id          resource.ID
	mu          sync.Mutex
	initialized bool
	stopped     bool
}

// CreateInstance allocates an engine instance. An empty name gets a
// generated unique one.
func (r *Runtime) CreateInstance(ctx context.Context, name string, opts InstanceOptions) (*Instance, jetruntime.Warning, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, 0, errors.Closed(errors.PhaseLifecycle, string(dispatch.OpCreateInstance), "runtime")
	}

	if name == "" {
		name = "instance-" + uuid.NewString()
	}
	if opts.DisplayName != "" || opts.Grbit != 0 {
		if err := r.RequireRevision(dispatch.OpCreateInstance, 2, capability.Revision2); err != nil {
			return nil, 0, err
		}
	}

	var handle uint64
	warn, err := r.binding.Invoke(ctx, dispatch.OpCreateInstance, func(v dispatch.Variant) []any {
		if v.Revision >= 2 {
			return []any{&handle, str(v, name), str(v, opts.DisplayName), opts.Grbit}
		}
		return []any{&handle, str(v, name)}
	})
	if err != nil {
		return nil, 0, err
	}

	inst := &Instance{
		rt:          r,
		name:        name,
		displayName: opts.DisplayName,
		handle:      handle,
	}
	id, err := r.tracker.Register(0, resource.KindInstance, 0, name, inst.term)
	if err != nil {
		return nil, 0, err
	}
	inst.id = id

	r.mu.Lock()
	r.instances[id] = inst
	r.mu.Unlock()

	r.log.Debug("instance created", zap.String("name", name), zap.Uint64("handle", handle))
	return inst, warn, nil
}

// Name returns the instance name.
func (i *Instance) Name() string { return i.name }

// DisplayName returns the display name given at creation.
func (i *Instance) DisplayName() string { return i.displayName }

// Handle returns the engine's instance handle.
func (i *Instance) Handle() uint64 { return i.handle }

// ID returns the instance's resource id.
func (i *Instance) ID() resource.ID { return i.id }

// Init initializes the instance.
func (i *Instance) Init(ctx context.Context, opts InitOptions) (jetruntime.Warning, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.rt.check(dispatch.OpInit, i.id); err != nil {
		return 0, err
	}
	if i.initialized {
		return 0, errors.InvalidOperation(errors.PhaseLifecycle, string(dispatch.OpInit), "instance already initialized")
	}

	if opts.RecoveryPath != "" {
		if err := i.rt.RequireRevision(dispatch.OpInit, 3, capability.Revision3); err != nil {
			return 0, err
		}
	}
	if opts.Grbit != 0 {
		if err := i.rt.RequireRevision(dispatch.OpInit, 2, capability.Revision2); err != nil {
			return 0, err
		}
	}

	warn, err := i.rt.binding.Invoke(ctx, dispatch.OpInit, func(v dispatch.Variant) []any {
		switch v.Revision {
		case 3:
			return []any{i.handle, str(v, opts.RecoveryPath), opts.Grbit}
		case 2:
			return []any{i.handle, opts.Grbit}
		default:
			return []any{i.handle}
		}
	})
	if err != nil {
		return 0, err
	}
	i.initialized = true
	return warn, nil
}

// Stop halts service on an initialized instance without terminating it.
// Options other than the zero value need StopResume.
func (i *Instance) Stop(ctx context.Context, opts StopOptions) (jetruntime.Warning, error) {
	return i.stopService(ctx, string(dispatch.OpStopService), opts.grbit(), func() { i.stopped = true })
}

// Resume restarts service on a stopped instance. It needs StopResume.
func (i *Instance) Resume(ctx context.Context) (jetruntime.Warning, error) {
	if err := i.rt.Require(capability.StopResume, "Resume"); err != nil {
		return 0, err
	}
	i.mu.Lock()
	stopped := i.stopped
	i.mu.Unlock()
	if !stopped {
		return 0, errors.InvalidOperation(errors.PhaseLifecycle, "Resume", "instance is not stopped")
	}
	return i.stopService(ctx, "Resume", jetruntime.BitStopServiceResume, func() { i.stopped = false })
}

func (i *Instance) stopService(ctx context.Context, op string, grbit uint32, apply func()) (jetruntime.Warning, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.rt.check(dispatch.OpStopService, i.id); err != nil {
		return 0, err
	}
	if !i.initialized {
		return 0, errors.InvalidOperation(errors.PhaseLifecycle, op, "instance is not initialized")
	}
	if grbit != 0 {
		if err := i.rt.RequireRevision(dispatch.OpStopService, 2, capability.StopResume); err != nil {
			return 0, err
		}
	}

	warn, err := i.rt.binding.Invoke(ctx, dispatch.OpStopService, func(v dispatch.Variant) []any {
		if v.Revision >= 2 {
			return []any{i.handle, grbit}
		}
		return []any{i.handle}
	})
	if err != nil {
		return 0, err
	}
	apply()
	return warn, nil
}

// Stopped reports whether service is stopped.
func (i *Instance) Stopped() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stopped
}

// SetParameter sets a system parameter on this instance.
func (i *Instance) SetParameter(ctx context.Context, p jetruntime.Param, value uint64, text string) (jetruntime.Warning, error) {
	if err := i.rt.check(dispatch.OpSetSystemParameter, i.id); err != nil {
		return 0, err
	}
	if err := i.rt.checkParameter(p, value); err != nil {
		return 0, err
	}
	return i.rt.binding.Invoke(ctx, dispatch.OpSetSystemParameter, func(v dispatch.Variant) []any {
		return []any{i.handle, uint64(0), uint32(p), value, str(v, text)}
	})
}

// Terminate closes every session of the instance, child resources first,
// then terminates the instance itself. Secondary failures during the
// cascade are all reported; the instance is unusable afterwards either way.
func (i *Instance) Terminate(ctx context.Context, opts TermOptions) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.rt.tracker.Lookup(i.id); !ok {
		return errors.InvalidOperation(errors.PhaseLifecycle, string(dispatch.OpTerm), "instance already terminated")
	}
	if g := opts.grbit(); g != 0 {
		if err := i.rt.RequireRevision(dispatch.OpTerm, 2, capability.Revision2); err != nil {
			return err
		}
		i.termGrbit = g
	}

	err := i.rt.tracker.CloseAll(ctx, i.id)

	i.rt.guard.ReleaseOwner(uint64(i.id))
	i.rt.guard.Collect()

	i.rt.mu.Lock()
	delete(i.rt.instances, i.id)
	i.rt.mu.Unlock()

	if err != nil {
		i.rt.log.Warn("instance terminated with errors", zap.String("name", i.name), zap.Error(err))
	}
	return err
}

// term is the instance's closer in the resource tracker.
func (i *Instance) term(ctx context.Context) error {
	_, err := i.rt.binding.Invoke(ctx, dispatch.OpTerm, func(v dispatch.Variant) []any {
		if v.Revision >= 2 {
			return []any{i.handle, i.termGrbit}
		}
		return []any{i.handle}
	})
	return err
}
