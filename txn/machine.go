// Package txn holds the save-point state machine behind session
// transactions.
//
// A Machine is Idle at depth 0 and Active at any positive depth. Begin
// pushes a save point; Commit and Rollback pop one. Popping at depth 0 is an
// invalid operation and leaves the depth unchanged. The machine performs no
// engine calls: the runtime consults it before calling the engine and
// applies the transition only after the engine succeeded.
package txn

import (
	"fmt"

	"github.com/wippyai/jet-runtime/errors"
)

// MaxDepth is the deepest nesting the engine accepts.
const MaxDepth = 7

// State is Idle or Active.
type State uint8

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Machine tracks the save-point depth of one session. It is not safe for
// concurrent use; a session is driven by one thread at a time.
type Machine struct {
	depth int
}

// Depth returns the number of open save points.
func (m *Machine) Depth() int {
	return m.depth
}

// State returns Idle at depth 0, Active otherwise.
func (m *Machine) State() State {
	if m.depth == 0 {
		return Idle
	}
	return Active
}

// CanBegin fails when another save point would exceed MaxDepth.
func (m *Machine) CanBegin() error {
	if m.depth >= MaxDepth {
		return errors.InvalidOperation(errors.PhaseTransaction, "BeginTransaction",
			fmt.Sprintf("transaction nesting limit %d reached", MaxDepth))
	}
	return nil
}

// CanEnd fails with InvalidOperation naming op when no save point is open.
func (m *Machine) CanEnd(op string) error {
	if m.depth == 0 {
		return errors.InvalidOperation(errors.PhaseTransaction, op, "not in a transaction")
	}
	return nil
}

// Begin opens a save point and returns the new depth.
func (m *Machine) Begin() (int, error) {
	if err := m.CanBegin(); err != nil {
		return m.depth, err
	}
	m.depth++
	return m.depth, nil
}

// Commit closes the innermost save point, keeping its changes.
func (m *Machine) Commit() (int, error) {
	return m.pop("CommitTransaction")
}

// Rollback closes the innermost save point, discarding its changes.
func (m *Machine) Rollback() (int, error) {
	return m.pop("Rollback")
}

func (m *Machine) pop(op string) (int, error) {
	if err := m.CanEnd(op); err != nil {
		return 0, err
	}
	m.depth--
	return m.depth, nil
}

// Reset forces the machine back to Idle. The engine discards every save
// point when a session ends; Reset mirrors that.
func (m *Machine) Reset() {
	m.depth = 0
}
