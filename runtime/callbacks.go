package runtime

import (
	"context"
	"fmt"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/callback"
	"github.com/wippyai/jet-runtime/dispatch"
	"github.com/wippyai/jet-runtime/resource"
)

// TableEvent is one table callback fired by the engine.
type TableEvent struct {
	Session  uint64
	Database uint64
	Table    uint64
	Context  uint64
	Arg1     uint64
	Arg2     uint64
	Type     uint32
}

func tableEvent(args []uint64) TableEvent {
	var w [7]uint64
	copy(w[:], args)
	return TableEvent{
		Session:  w[0],
		Database: w[1],
		Table:    w[2],
		Type:     uint32(w[3]),
		Arg1:     w[4],
		Arg2:     w[5],
		Context:  w[6],
	}
}

// TableFunc handles table events. A returned error fails the engine
// operation that raised the event.
type TableFunc func(ctx context.Context, ev TableEvent) error

// statusOf maps a callback result to the status reported to the engine.
func statusOf(err error) jetruntime.Status {
	if err != nil {
		return jetruntime.StatusCallbackFailed
	}
	return 0
}

// Registration is a table callback registered on a cursor.
type Registration struct {
	c      *Cursor
	handle callback.Handle
	native uint64
	cbtyp  uint32
	id     resource.ID
}

// RegisterCallback registers fn for the table events in cbtyp. The callback
// stays alive until Unregister or until the cursor, its session or its
// instance is closed, whichever comes first.
func (c *Cursor) RegisterCallback(ctx context.Context, cbtyp uint32, fn TableFunc) (*Registration, error) {
	s := c.db.s
	if err := s.rt.check(dispatch.OpRegisterCallback, c.id); err != nil {
		return nil, err
	}

	h, err := s.rt.guard.Pin(uint64(c.id), jetruntime.CallbackTable, func(ctx context.Context, args []uint64) jetruntime.Status {
		return statusOf(fn(ctx, tableEvent(args)))
	})
	if err != nil {
		return nil, err
	}

	reg := &Registration{c: c, handle: h, cbtyp: cbtyp}
	_, err = s.rt.binding.Call(ctx, dispatch.OpRegisterCallback,
		s.handle, c.handle, cbtyp,
		jetruntime.Callback{Handle: uint64(h), Kind: jetruntime.CallbackTable},
		uint64(h), &reg.native)
	if err != nil {
		_ = s.rt.guard.Unregister(h)
		return nil, err
	}

	name := fmt.Sprintf("table-callback:%#x", cbtyp)
	id, err := s.rt.tracker.Register(c.id, resource.KindCallback, s.owner(), name, reg.unregister)
	if err != nil {
		_ = reg.unregister(ctx)
		return nil, err
	}
	reg.id = id
	return reg, nil
}

// Handle returns the guard handle of the registration.
func (r *Registration) Handle() callback.Handle { return r.handle }

// Unregister revokes the callback. Once it returns the engine can no longer
// reach fn; a call already running completes normally.
func (r *Registration) Unregister(ctx context.Context) error {
	rt := r.c.db.s.rt
	if err := rt.check(dispatch.OpUnregisterCallback, r.id); err != nil {
		return err
	}
	return rt.tracker.CloseAll(ctx, r.id)
}

// unregister is the registration's closer in the resource tracker. The
// guard entry is revoked even when the engine call fails.
func (r *Registration) unregister(ctx context.Context) error {
	s := r.c.db.s
	_, err := s.rt.binding.Call(ctx, dispatch.OpUnregisterCallback, s.handle, r.c.handle, r.cbtyp, r.native)
	_ = s.rt.guard.Unregister(r.handle)
	s.rt.guard.Collect()
	return err
}
