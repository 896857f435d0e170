package runtime

import (
	"context"
	"sync"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/errors"
	"github.com/wippyai/jet-runtime/resource"
	"github.com/wippyai/jet-runtime/txn"
)

// SessionOptions configures BeginSession.
type SessionOptions struct {
	User     string
	Password string
}

// Session is one connection to an instance. It belongs to the thread that
// began it and owns the databases, cursors and transaction opened through
// it. Calls on one session are sequential.
type Session struct {
	rt     *Runtime
	inst   *Instance
	tx     *Transaction
	handle uint64
	thread uint64
	id     resource.ID
	mu     sync.Mutex
	txn    txn.Machine
}

// BeginSession opens a session bound to the calling thread.
func (i *Instance) BeginSession(ctx context.Context, opts SessionOptions) (*Session, jetruntime.Warning, error) {
	if err := i.rt.check(dispatch.OpBeginSession, i.id); err != nil {
		return nil, 0, err
	}

	var handle uint64
	warn, err := i.rt.binding.Invoke(ctx, dispatch.OpBeginSession, func(v dispatch.Variant) []any {
		return []any{i.handle, &handle, str(v, opts.User), str(v, opts.Password)}
	})
	if err != nil {
		return nil, 0, err
	}

	s := &Session{
		rt:     i.rt,
		inst:   i,
		handle: handle,
		thread: i.rt.thread(),
	}
	id, err := i.rt.tracker.Register(i.id, resource.KindSession, s.thread, "", s.end)
	if err != nil {
		// The instance was torn down while the session was being created.
		_ = s.end(ctx)
		return nil, 0, err
	}
	s.id = id
	return s, warn, nil
}

// Handle returns the engine's session handle.
func (s *Session) Handle() uint64 { return s.handle }

// ID returns the session's resource id.
func (s *Session) ID() resource.ID { return s.id }

// Instance returns the owning instance.
func (s *Session) Instance() *Instance { return s.inst }

// Depth returns the number of open save points.
func (s *Session) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn.Depth()
}

// Close closes every cursor and database of the session, rolls back its
// open save points and ends the session.
func (s *Session) Close(ctx context.Context) error {
	if err := s.rt.check(dispatch.OpEndSession, s.id); err != nil {
		return err
	}
	return s.rt.tracker.CloseAll(ctx, s.id)
}

// end is the session's closer in the resource tracker.
func (s *Session) end(ctx context.Context) error {
	_, err := s.rt.binding.Call(ctx, dispatch.OpEndSession, s.handle, uint32(0))

	s.mu.Lock()
	s.txn.Reset()
	s.tx = nil
	s.mu.Unlock()

	s.rt.guard.ReleaseOwner(uint64(s.id))
	s.rt.guard.Collect()
	return err
}

// SetContext attaches the session to the calling thread. Afterwards the
// session and everything opened through it belong to this thread.
func (s *Session) SetContext(ctx context.Context, value uint64) (jetruntime.Warning, error) {
	if err := s.rt.Require(capability.SessionContext, string(dispatch.OpSetSessionContext)); err != nil {
		return 0, err
	}
	if _, ok := s.rt.tracker.Lookup(s.id); !ok {
		return 0, errors.Closed(errors.PhaseLifecycle, string(dispatch.OpSetSessionContext), "session")
	}
	if value == 0 {
		return 0, errors.InvalidInput(errors.PhaseLifecycle, "session context must be non-zero")
	}

	warn, err := s.rt.binding.Call(ctx, dispatch.OpSetSessionContext, s.handle, value)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.thread = s.rt.thread()
	s.mu.Unlock()
	if err := s.rt.tracker.Rebind(s.id, s.thread); err != nil {
		return 0, err
	}
	return warn, nil
}

// ResetContext detaches the session from its context.
func (s *Session) ResetContext(ctx context.Context) (jetruntime.Warning, error) {
	if err := s.rt.Require(capability.SessionContext, string(dispatch.OpResetSessionContext)); err != nil {
		return 0, err
	}
	if err := s.rt.check(dispatch.OpResetSessionContext, s.id); err != nil {
		return 0, err
	}
	return s.rt.binding.Call(ctx, dispatch.OpResetSessionContext, s.handle)
}

// owner returns the thread that currently owns the session.
func (s *Session) owner() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread
}
