package runtime

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/callback"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/errors"
	"github.com/wippyai/jet-runtime/resource"
)

// Progress is one status callback of a backup or restore.
type Progress struct {
	Process uint32
	Type    uint32
	Percent uint32
}

// ProgressFunc observes backup and restore progress. A returned error makes
// the engine abort the operation.
type ProgressFunc func(ctx context.Context, p Progress) error

// BackupOptions configures Instance.Backup.
type BackupOptions struct {
	Progress    ProgressFunc
	Incremental bool
	Atomic      bool
}

// RestoreOptions configures Instance.Restore.
type RestoreOptions struct {
	Progress ProgressFunc
}

// Backup backs up the instance to dir. The call blocks until the engine
// finishes; StopBackup from another goroutine aborts it. A progress
// callback is pinned for the duration of the call only.
func (i *Instance) Backup(ctx context.Context, dir string, opts BackupOptions) (jetruntime.Warning, error) {
	if err := i.rt.check(dispatch.OpBackup, i.id); err != nil {
		return 0, err
	}

	var grbit uint32
	if opts.Incremental {
		grbit |= jetruntime.BitBackupIncremental
	}
	if opts.Atomic {
		grbit |= jetruntime.BitBackupAtomic
	}

	cb, release, err := i.pinProgress(opts.Progress)
	if err != nil {
		return 0, err
	}
	defer release()

	return i.rt.binding.Invoke(ctx, dispatch.OpBackup, func(v dispatch.Variant) []any {
		return []any{i.handle, str(v, dir), grbit, cb}
	})
}

// Restore restores a backup from src into dest before the instance is
// initialized.
func (i *Instance) Restore(ctx context.Context, src, dest string, opts RestoreOptions) (jetruntime.Warning, error) {
	if err := i.rt.check(dispatch.OpRestore, i.id); err != nil {
		return 0, err
	}
	i.mu.Lock()
	initialized := i.initialized
	i.mu.Unlock()
	if initialized {
		return 0, errors.InvalidOperation(errors.PhaseLifecycle, string(dispatch.OpRestore), "instance is already initialized")
	}

	cb, release, err := i.pinProgress(opts.Progress)
	if err != nil {
		return 0, err
	}
	defer release()

	return i.rt.binding.Invoke(ctx, dispatch.OpRestore, func(v dispatch.Variant) []any {
		return []any{i.handle, str(v, src), str(v, dest), cb}
	})
}

// StopBackup asks a running backup or restore to stop. It is the
// engine's cooperative cancellation and may be called from any goroutine.
func (i *Instance) StopBackup(ctx context.Context) (jetruntime.Warning, error) {
	if err := i.rt.check(dispatch.OpStopBackup, i.id); err != nil {
		return 0, err
	}
	return i.rt.binding.Call(ctx, dispatch.OpStopBackup, i.handle)
}

// pinProgress pins fn for one synchronous call. The returned release
// revokes it once the call has returned.
func (i *Instance) pinProgress(fn ProgressFunc) (jetruntime.Callback, func(), error) {
	if fn == nil {
		return jetruntime.Callback{}, func() {}, nil
	}
	h, err := i.rt.guard.Pin(uint64(i.id), jetruntime.CallbackStatus, func(ctx context.Context, args []uint64) jetruntime.Status {
		var w [4]uint64
		copy(w[:], args)
		return statusOf(fn(ctx, Progress{Process: uint32(w[1]), Type: uint32(w[2]), Percent: uint32(w[3])}))
	})
	if err != nil {
		return jetruntime.Callback{}, nil, err
	}
	release := func() {
		_ = i.rt.guard.Unregister(h)
		i.rt.guard.Collect()
	}
	return jetruntime.Callback{Handle: uint64(h), Kind: jetruntime.CallbackStatus}, release, nil
}

// DefragOptions configures Session.Defragment. Zero Passes or Seconds mean
// no limit. OnComplete needs DefragCallback.
type DefragOptions struct {
	OnComplete TableFunc
	Table      string
	Passes     uint32
	Seconds    uint32
}

// Defragmentation is a running online defragmentation. Its completion
// callback stays pinned until the engine reports completion, Stop is
// called, or the session is closed.
type Defragmentation struct {
	s      *Session
	db     *Database
	done   chan struct{}
	handle callback.Handle
	id     resource.ID
	once   sync.Once
	mu     sync.Mutex
	ended  bool
}

// Defragment starts online defragmentation of db and returns at once; the
// engine runs it in the background. When a defragmentation of db is
// already running the result is nil with WarningDefragAlreadyRuns.
func (s *Session) Defragment(ctx context.Context, db *Database, opts DefragOptions) (*Defragmentation, jetruntime.Warning, error) {
	if err := s.rt.check(dispatch.OpDefragment, s.id); err != nil {
		return nil, 0, err
	}
	if err := s.rt.check(dispatch.OpDefragment, db.id); err != nil {
		return nil, 0, err
	}
	v, err := s.rt.Variant(dispatch.OpDefragment)
	if err != nil {
		return nil, 0, err
	}
	if opts.OnComplete != nil && v.Revision < 2 {
		return nil, 0, errors.FeatureNotAvailable(string(dispatch.OpDefragment), capability.DefragCallback.String())
	}

	passes := uint64(opts.Passes)
	if passes == 0 && !s.rt.Capabilities().Has(capability.UnlimitedPassesFixed) {
		// Older builds read zero passes as "none".
		passes = math.MaxInt32
	}
	seconds := uint64(opts.Seconds)

	d := &Defragmentation{s: s, db: db, done: make(chan struct{})}
	id, err := s.rt.tracker.Register(s.id, resource.KindCallback, 0, "defrag:"+db.path, d.stop)
	if err != nil {
		return nil, 0, err
	}
	d.id = id

	var cb jetruntime.Callback
	if v.Revision >= 2 {
		fn := opts.OnComplete
		h, err := s.rt.guard.Pin(uint64(id), jetruntime.CallbackDefrag, func(ctx context.Context, args []uint64) jetruntime.Status {
			defer d.finish()
			if fn == nil {
				return 0
			}
			return statusOf(fn(ctx, tableEvent(args)))
		})
		if err != nil {
			_ = s.rt.tracker.Unregister(s.id, id, 0)
			return nil, 0, err
		}
		d.handle = h
		cb = jetruntime.Callback{Handle: uint64(h), Kind: jetruntime.CallbackDefrag}
	}

	warn, err := s.defrag(ctx, db, jetruntime.BitDefragmentBatchStart, &passes, &seconds, cb)
	if err != nil || warn.Status() == jetruntime.WarningDefragAlreadyRuns {
		d.finish()
		return nil, warn, err
	}
	return d, warn, nil
}

func (s *Session) defrag(ctx context.Context, db *Database, grbit uint32, passes, seconds *uint64, cb jetruntime.Callback) (jetruntime.Warning, error) {
	return s.rt.binding.Invoke(ctx, dispatch.OpDefragment, func(v dispatch.Variant) []any {
		switch v.Revision {
		case 3:
			return []any{s.handle, str(v, db.path), str(v, ""), passes, seconds, cb, cb.Handle, grbit}
		case 2:
			return []any{s.handle, db.handle, str(v, ""), passes, seconds, cb, grbit}
		default:
			return []any{s.handle, db.handle, str(v, ""), passes, seconds, grbit}
		}
	})
}

// Done is closed once the defragmentation is over. Builds without
// DefragCallback never report completion, so there it closes only on Stop
// or when the session is closed.
func (d *Defragmentation) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until Done is closed or ctx ends.
func (d *Defragmentation) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the engine to stop the defragmentation. Stopping one that has
// already finished returns WarningDefragNotRunning.
func (d *Defragmentation) Stop(ctx context.Context) (jetruntime.Warning, error) {
	s := d.s
	if err := s.rt.check(dispatch.OpDefragment, s.id); err != nil {
		return 0, err
	}
	d.mu.Lock()
	ended := d.ended
	d.mu.Unlock()
	if ended {
		return jetruntime.WarningOf(jetruntime.WarningDefragNotRunning), nil
	}

	warn, err := d.stopNative(ctx)
	if err != nil {
		return 0, err
	}
	d.finish()
	return warn, nil
}

func (d *Defragmentation) stopNative(ctx context.Context) (jetruntime.Warning, error) {
	var passes, seconds uint64
	return d.s.defrag(ctx, d.db, jetruntime.BitDefragmentBatchStop, &passes, &seconds, jetruntime.Callback{})
}

// stop is the defragmentation's closer in the resource tracker.
func (d *Defragmentation) stop(ctx context.Context) error {
	d.mu.Lock()
	ended := d.ended
	d.ended = true
	d.mu.Unlock()

	// The entry is younger than its database, so teardown reaches it
	// while the database is still open. The callback is revoked even when
	// the engine refuses to stop.
	var err error
	if !ended {
		if _, err = d.stopNative(ctx); err != nil {
			d.s.rt.log.Warn("defragmentation stop during teardown failed",
				zap.String("database", d.db.path), zap.Error(err))
		}
	}
	d.revoke()
	return err
}

// finish retires the entry after completion, Stop, or a start the engine
// did not accept.
func (d *Defragmentation) finish() {
	d.mu.Lock()
	d.ended = true
	d.mu.Unlock()
	// Fails only when teardown already removed the entry.
	_ = d.s.rt.tracker.Unregister(d.s.id, d.id, 0)
	d.revoke()
}

func (d *Defragmentation) revoke() {
	if d.handle != 0 {
		_ = d.s.rt.guard.Unregister(d.handle)
	}
	d.once.Do(func() { close(d.done) })
}
