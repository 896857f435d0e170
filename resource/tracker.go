package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wippyai/jet-runtime/errors"
)

type node struct {
	closer   Closer
	children map[ID]struct{}
	entry    Entry
	depth    int
	closing  bool
}

// Tracker is the ownership index of live engine resources.
//
// Parents hold the only owning edge: a node's children set. Children refer
// back to their parent by ID. A Tracker is safe for concurrent use.
type Tracker struct {
	nodes     map[ID]*node
	observers []Observer
	next      ID
	mu        sync.Mutex
	obsMu     sync.RWMutex
	affinity  bool
}

// NewTracker creates an empty tracker. With affinity set, resources bound
// to a thread may only be used and released from that thread.
func NewTracker(affinity bool) *Tracker {
	return &Tracker{
		nodes:    make(map[ID]*node),
		affinity: affinity,
	}
}

// Affinity reports whether thread ownership is enforced.
func (t *Tracker) Affinity() bool {
	return t.affinity
}

// Register tracks a new resource under parent (0 for a root) and returns
// its ID. closer may be nil.
func (t *Tracker) Register(parent ID, kind Kind, thread uint64, name string, closer Closer) (ID, error) {
	t.mu.Lock()

	depth := 0
	var pn *node
	if parent != 0 {
		var ok bool
		pn, ok = t.nodes[parent]
		if !ok || pn.closing {
			t.mu.Unlock()
			return 0, errors.Closed(errors.PhaseLifecycle, "Register "+kind.String(), fmt.Sprintf("parent %d", parent))
		}
		depth = pn.depth + 1
	}

	t.next++
	id := t.next
	n := &node{
		closer: closer,
		entry: Entry{
			ID:     id,
			Parent: parent,
			Kind:   kind,
			Thread: thread,
			Name:   name,
		},
		depth: depth,
	}
	t.nodes[id] = n
	if pn != nil {
		if pn.children == nil {
			pn.children = make(map[ID]struct{})
		}
		pn.children[id] = struct{}{}
	}
	e := n.entry
	t.mu.Unlock()

	t.notify(Event{Type: EventRegistered, Entry: e})
	return id, nil
}

// Lookup returns the entry for id.
func (t *Tracker) Lookup(id ID) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return Entry{}, false
	}
	return n.entry, true
}

// Check fails with a closed error when id is no longer tracked and with a
// usage error when it is bound to a thread other than thread.
func (t *Tracker) Check(op string, id ID, thread uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.check(op, id, thread)
	return err
}

// check is Check with t.mu held.
func (t *Tracker) check(op string, id ID, thread uint64) (*node, error) {
	n, ok := t.nodes[id]
	if !ok || n.closing {
		return nil, errors.New(errors.PhaseLifecycle, errors.KindClosed).
			Op(op).
			Detail("%s is closed", kindOf(n)).
			Value(id).
			Build()
	}
	if t.affinity && n.entry.Thread != 0 && n.entry.Thread != thread {
		return nil, errors.New(errors.PhaseLifecycle, errors.KindUsage).
			Op(op).
			Detail("%s %d belongs to thread %d, called from thread %d",
				n.entry.Kind, id, n.entry.Thread, thread).
			Value(id).
			Build()
	}
	return n, nil
}

func kindOf(n *node) string {
	if n == nil {
		return "resource"
	}
	return n.entry.Kind.String()
}

// Unregister stops tracking id. It fails when id is not a child of parent,
// when it still has children, or when called from a foreign thread.
// The resource's closer is not run.
func (t *Tracker) Unregister(parent, id ID, thread uint64) error {
	t.mu.Lock()

	n, err := t.check("Unregister", id, thread)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if n.entry.Parent != parent {
		t.mu.Unlock()
		return errors.Usage(errors.PhaseLifecycle, "Unregister",
			fmt.Sprintf("%s %d is not owned by %d", n.entry.Kind, id, parent))
	}
	if len(n.children) > 0 {
		t.mu.Unlock()
		return errors.InvalidOperation(errors.PhaseLifecycle, "Unregister",
			fmt.Sprintf("%s %d has %d open children", n.entry.Kind, id, len(n.children)))
	}
	e := t.remove(n)
	t.mu.Unlock()

	t.notify(Event{Type: EventReleased, Entry: e})
	return nil
}

// remove drops n from the index. Caller holds t.mu.
func (t *Tracker) remove(n *node) Entry {
	delete(t.nodes, n.entry.ID)
	if p, ok := t.nodes[n.entry.Parent]; ok {
		delete(p.children, n.entry.ID)
	}
	return n.entry
}

// ChildrenOf returns the live direct children of id, oldest first.
func (t *Tracker) ChildrenOf(id ID) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(n.children))
	for c := range n.children {
		out = append(out, t.nodes[c].entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rebind moves id and its descendants to thread. Unbound descendants stay
// unbound.
func (t *Tracker) Rebind(id ID, thread uint64) error {
	t.mu.Lock()

	n, ok := t.nodes[id]
	if !ok || n.closing {
		t.mu.Unlock()
		return errors.Closed(errors.PhaseLifecycle, "Rebind", "resource")
	}
	var rebound []Entry
	for _, m := range t.subtree(n) {
		if m.entry.Thread == 0 && m != n {
			continue
		}
		m.entry.Thread = thread
		rebound = append(rebound, m.entry)
	}
	t.mu.Unlock()

	for _, e := range rebound {
		t.notify(Event{Type: EventRebound, Entry: e})
	}
	return nil
}

// subtree returns n and every descendant. Caller holds t.mu.
func (t *Tracker) subtree(n *node) []*node {
	out := []*node{n}
	for i := 0; i < len(out); i++ {
		for c := range out[i].children {
			out = append(out, t.nodes[c])
		}
	}
	return out
}

// CloseAll closes id and everything beneath it. Closers run deepest level
// first and, within a level, newest first, so a child is always closed
// before its parent. Every entry is removed even when its closer fails;
// all failures are returned together.
func (t *Tracker) CloseAll(ctx context.Context, id ID) error {
	t.mu.Lock()
	n, ok := t.nodes[id]
	if !ok || n.closing {
		t.mu.Unlock()
		return errors.New(errors.PhaseLifecycle, errors.KindInvalidOperation).
			Op("Close").
			Detail("%s is already closed", kindOf(n)).
			Value(id).
			Build()
	}

	order := t.subtree(n)
	for _, m := range order {
		m.closing = true
	}
	t.mu.Unlock()

	sort.Slice(order, func(i, j int) bool {
		if order[i].depth != order[j].depth {
			return order[i].depth > order[j].depth
		}
		return order[i].entry.ID > order[j].entry.ID
	})

	var result *multierror.Error
	for _, m := range order {
		var err error
		if m.closer != nil {
			err = m.closer(ctx)
		}
		if err != nil {
			if m != n {
				Logger().Warn("cascade close failed",
					zap.Stringer("kind", m.entry.Kind),
					zap.Uint64("id", uint64(m.entry.ID)),
					zap.Error(err))
			}
			result = multierror.Append(result, err)
		}

		t.mu.Lock()
		e := t.remove(m)
		t.mu.Unlock()

		t.notify(Event{Type: EventReleased, Entry: e, Err: err})
	}

	return result.ErrorOrNil()
}

// Leaks returns every live resource, oldest first.
func (t *Tracker) Leaks() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live resources.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Subscribe adds an observer for lifecycle events.
func (t *Tracker) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Tracker) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Tracker) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
