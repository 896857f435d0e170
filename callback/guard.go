package callback

import (
	"context"
	"fmt"
	"sync"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/errors"
	"go.uber.org/zap"
)

// Func is caller logic the engine may fire. args are the raw callback
// words in the order the engine passes them.
type Func func(ctx context.Context, args []uint64) jetruntime.Status

// Handle identifies a pinned callback. The low 32 bits select a slot, the
// high 32 bits carry the slot generation so a stale handle never reaches a
// reused slot. Handle 0 is never issued.
type Handle uint64

func makeHandle(idx, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(idx+1))
}

func (h Handle) split() (idx, gen uint32, ok bool) {
	low := uint32(h)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(h >> 32), true
}

// State is the lifecycle position of a handle.
type State uint8

const (
	// StateUnpinned is reported for handles the guard never issued.
	StateUnpinned State = iota
	// StatePinned handles are live and invocable.
	StatePinned
	// StateRevoked handles are unregistered but a call is still running.
	StateRevoked
	// StateReleased is terminal.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUnpinned:
		return "unpinned"
	case StatePinned:
		return "pinned"
	case StateRevoked:
		return "revoked"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

type slot struct {
	fn       Func
	owner    uint64
	gen      uint32
	inflight int32
	kind     jetruntime.CallbackKind
	state    State
}

// Guard keeps callbacks alive while the engine may still fire them.
//
// Entries leave the guard only through Unregister, ReleaseOwner or Close
// followed by the last in-flight call returning. Collect reclaims revoked
// entries; it never touches a pinned one. A Guard is safe for concurrent
// use, including Invoke from threads the engine owns.
type Guard struct {
	slots    []slot
	freeList []uint32
	owners   map[uint64]map[Handle]struct{}
	mu       sync.Mutex
	pinned   int
	closed   bool
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{
		slots:    make([]slot, 0, 16),
		freeList: make([]uint32, 0, 8),
		owners:   make(map[uint64]map[Handle]struct{}),
	}
}

// Pin registers fn on behalf of owner and returns its handle.
func (g *Guard) Pin(owner uint64, kind jetruntime.CallbackKind, fn Func) (Handle, error) {
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhaseCallback, "nil callback")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0, errors.Closed(errors.PhaseCallback, "Pin", "callback guard")
	}

	var idx uint32
	if n := len(g.freeList); n > 0 {
		idx = g.freeList[n-1]
		g.freeList = g.freeList[:n-1]
	} else {
		g.slots = append(g.slots, slot{})
		idx = uint32(len(g.slots) - 1)
	}

	s := &g.slots[idx]
	s.gen++
	s.fn = fn
	s.owner = owner
	s.kind = kind
	s.inflight = 0
	s.state = StatePinned

	h := makeHandle(idx, s.gen)
	set := g.owners[owner]
	if set == nil {
		set = make(map[Handle]struct{})
		g.owners[owner] = set
	}
	set[h] = struct{}{}
	g.pinned++

	Logger().Debug("callback pinned",
		zap.Uint64("handle", uint64(h)),
		zap.Uint64("owner", owner),
		zap.Stringer("kind", kind))

	return h, nil
}

// lookup returns the live slot for h. Caller holds g.mu.
func (g *Guard) lookup(h Handle) (*slot, bool) {
	idx, gen, ok := h.split()
	if !ok || int(idx) >= len(g.slots) {
		return nil, false
	}
	s := &g.slots[idx]
	if s.gen != gen || s.state == StateReleased || s.state == StateUnpinned {
		return nil, false
	}
	return s, true
}

// Invoke runs the callback behind h. Revoked and unknown handles return
// StatusCallbackNotRegistered without running caller code; a panic in the
// callback is recovered and reported as StatusCallbackFailed.
func (g *Guard) Invoke(ctx context.Context, h Handle, args ...uint64) jetruntime.Status {
	g.mu.Lock()
	s, ok := g.lookup(h)
	if !ok || s.state != StatePinned {
		g.mu.Unlock()
		return jetruntime.StatusCallbackNotRegistered
	}
	s.inflight++
	fn := s.fn
	kind := s.kind
	g.mu.Unlock()

	defer g.done(h)
	return g.run(ctx, h, kind, fn, args)
}

func (g *Guard) run(ctx context.Context, h Handle, kind jetruntime.CallbackKind, fn Func, args []uint64) (st jetruntime.Status) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("callback panicked",
				zap.Uint64("handle", uint64(h)),
				zap.Stringer("kind", kind),
				zap.Error(errors.Panic(kind.String(), r)))
			st = jetruntime.StatusCallbackFailed
		}
	}()
	return fn(ctx, args)
}

func (g *Guard) done(h Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, _, _ := h.split()
	g.slots[idx].inflight--
}

// Dispatch implements jetruntime.Dispatcher.
func (g *Guard) Dispatch(ctx context.Context, handle uint64, args ...uint64) jetruntime.Status {
	return g.Invoke(ctx, Handle(handle), args...)
}

// Unregister revokes h so the engine can no longer reach it, releasing the
// entry at once when no call is running. Unregistering a handle twice is an
// invalid operation.
func (g *Guard) Unregister(h Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.lookup(h)
	if !ok || s.state != StatePinned {
		return errors.InvalidOperation(errors.PhaseCallback, "Unregister",
			fmt.Sprintf("callback %#x is not registered", uint64(h)))
	}
	g.revoke(h, s)
	return nil
}

// revoke moves a pinned slot to revoked and frees it when idle.
// Caller holds g.mu.
func (g *Guard) revoke(h Handle, s *slot) {
	s.state = StateRevoked
	g.pinned--
	if set := g.owners[s.owner]; set != nil {
		delete(set, h)
		if len(set) == 0 {
			delete(g.owners, s.owner)
		}
	}
	if s.inflight == 0 {
		g.free(h, s)
	}
}

// free releases a revoked idle slot. Caller holds g.mu.
func (g *Guard) free(h Handle, s *slot) {
	idx, _, _ := h.split()
	s.fn = nil
	s.state = StateReleased
	s.owner = 0
	g.freeList = append(g.freeList, idx)
}

// ReleaseOwner revokes every handle pinned by owner and returns how many
// were revoked.
func (g *Guard) ReleaseOwner(owner uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	set := g.owners[owner]
	n := 0
	for h := range set {
		if s, ok := g.lookup(h); ok && s.state == StatePinned {
			g.revoke(h, s)
			n++
		}
	}
	delete(g.owners, owner)
	return n
}

// Collect releases revoked entries whose last call has returned and
// reports how many were released.
func (g *Guard) Collect() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for i := range g.slots {
		s := &g.slots[i]
		if s.state == StateRevoked && s.inflight == 0 {
			g.free(makeHandle(uint32(i), s.gen), s)
			n++
		}
	}
	return n
}

// State reports the lifecycle position of h.
func (g *Guard) State(h Handle) State {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, gen, ok := h.split()
	if !ok || int(idx) >= len(g.slots) {
		return StateUnpinned
	}
	s := &g.slots[idx]
	switch {
	case s.gen == gen:
		return s.state
	case gen < s.gen && gen > 0:
		return StateReleased
	default:
		return StateUnpinned
	}
}

// Owner returns the owner h was pinned for.
func (g *Guard) Owner(h Handle) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.lookup(h)
	if !ok {
		return 0, false
	}
	return s.owner, true
}

// Len returns the number of pinned handles.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pinned
}

// InFlight returns the number of callback calls currently running.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for i := range g.slots {
		n += int(g.slots[i].inflight)
	}
	return n
}

// Close revokes every handle and refuses further pins. Calls already running
// finish normally; their entries are released by a later Collect.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	for i := range g.slots {
		s := &g.slots[i]
		if s.state == StatePinned {
			g.revoke(makeHandle(uint32(i), s.gen), s)
		}
	}
	return nil
}
