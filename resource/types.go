package resource

import "context"

// ID identifies a tracked resource. ID 0 is reserved and means "no parent".
type ID uint64

// Kind is the category of a tracked resource.
type Kind uint8

const (
	KindInstance Kind = iota + 1
	KindSession
	KindDatabase
	KindCursor
	KindTransaction
	KindCallback
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindSession:
		return "session"
	case KindDatabase:
		return "database"
	case KindCursor:
		return "cursor"
	case KindTransaction:
		return "transaction"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Closer releases the native side of a resource. It runs once, during
// CloseAll, after every descendant closer has run.
type Closer func(ctx context.Context) error

// Entry describes one tracked resource.
type Entry struct {
	Name   string
	ID     ID
	Parent ID
	// Thread is the OS thread that owns the resource; 0 means unbound.
	Thread uint64
	Kind   Kind
}

// EventType distinguishes resource lifecycle notifications.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventReleased
	EventRebound
)

// Event is a resource lifecycle notification. Err is set on EventReleased
// when the resource's closer failed.
type Event struct {
	Err   error
	Entry Entry
	Type  EventType
}

// Observer receives notifications about resource lifecycle events.
// Observers are called without tracker locks held.
type Observer interface {
	OnResourceEvent(Event)
}
