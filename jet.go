package jetruntime

import (
	"context"
	"fmt"
)

// Status is the signed 32-bit result of every foreign call.
// Negative values are errors, zero is unqualified success and positive
// values are warnings (success with a caveat).
type Status int32

// Well-known statuses shared by every backend.
const (
	StatusSuccess Status = 0

	StatusInvalidParameter       Status = -1003
	StatusTermInProgress         Status = -1000
	StatusBackupAbortByServer    Status = -801
	StatusNotInitialized         Status = -1029
	StatusAlreadyInitialized     Status = -1030
	StatusInvalidInstance        Status = -1115
	StatusInvalidSessionID       Status = -1104
	StatusInvalidTableID         Status = -1310
	StatusInvalidDatabaseID      Status = -1010
	StatusNotInTransaction       Status = -1054
	StatusTransTooDeep           Status = -1103
	StatusCallbackFailed         Status = -2101
	StatusCallbackNotRegistered  Status = -2102
	StatusDatabaseNotFound       Status = -1203
	StatusObjectNotFound         Status = -1305
	StatusSessionContextNotSet   Status = -1330
	StatusInstanceUnavailable    Status = -1090
	StatusEntryPointNotSupported Status = -9999

	WarningRemainingVersions  Status = 321
	WarningDatabaseAttached   Status = 1548
	WarningNoErrorInfo        Status = 1055
	WarningDefragAlreadyRuns  Status = 2000
	WarningDefragNotRunning   Status = 2001
	WarningColumnNull         Status = 1004
	WarningCallbackNotRunning Status = 2002
)

var statusNames = map[Status]string{
	StatusSuccess:                "success",
	StatusInvalidParameter:       "invalid parameter",
	StatusTermInProgress:         "termination in progress",
	StatusBackupAbortByServer:    "backup aborted by server",
	StatusNotInitialized:         "instance not initialized",
	StatusAlreadyInitialized:     "instance already initialized",
	StatusInvalidInstance:        "invalid instance handle",
	StatusInvalidSessionID:       "invalid session handle",
	StatusInvalidTableID:         "invalid table handle",
	StatusInvalidDatabaseID:      "invalid database handle",
	StatusNotInTransaction:       "not in a transaction",
	StatusTransTooDeep:           "transactions nested too deeply",
	StatusCallbackFailed:         "callback failed",
	StatusCallbackNotRegistered:  "callback not registered",
	StatusDatabaseNotFound:       "database not found",
	StatusObjectNotFound:         "object not found",
	StatusSessionContextNotSet:   "session context not set",
	StatusInstanceUnavailable:    "instance unavailable",
	StatusEntryPointNotSupported: "entry point not supported",
	WarningRemainingVersions:     "remaining versions",
	WarningDatabaseAttached:      "database already attached",
	WarningNoErrorInfo:           "no extended error info",
	WarningDefragAlreadyRuns:     "defragmentation already running",
	WarningDefragNotRunning:      "defragmentation not running",
	WarningColumnNull:            "column is null",
	WarningCallbackNotRunning:    "callback not running",
}

// IsError reports whether s denotes a failed call.
func (s Status) IsError() bool { return s < 0 }

// IsWarning reports whether s denotes a qualified success.
func (s Status) IsWarning() bool { return s > 0 }

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s (%d)", name, int32(s))
	}
	return fmt.Sprintf("status %d", int32(s))
}

// Warning is the qualifier of a successful result. The zero value means no warning.
type Warning Status

// None reports whether the call succeeded without qualification.
func (w Warning) None() bool { return w == 0 }

// Status returns the raw positive status.
func (w Warning) Status() Status { return Status(w) }

func (w Warning) String() string {
	if w == 0 {
		return "none"
	}
	return Status(w).String()
}

// WarningOf extracts the warning part of a non-error status.
func WarningOf(s Status) Warning {
	if s > 0 {
		return Warning(s)
	}
	return 0
}

// Proc is one resolved foreign entry point.
//
// Call arguments are plain integers (int, int32, int64, uint, uint32,
// uint64, uintptr, bool), String for text in the variant's encoding,
// Callback for a pinned callback handle, and *uint64 for output values.
// A non-nil error means the call could not be performed at all (trap,
// marshaling failure); engine-reported failures come back as a negative
// Status with a nil error.
type Proc interface {
	Symbol() string
	Call(ctx context.Context, args ...any) (Status, error)
}

// Library is a loaded engine build.
type Library interface {
	// Name identifies the build (path or label) for diagnostics.
	Name() string

	// Lookup resolves an exported symbol. The second result is false when
	// the build does not export it.
	Lookup(symbol string) (Proc, bool)

	// SetDispatcher installs the target of callbacks fired by the engine.
	// It must be called before any call that passes a Callback argument.
	SetDispatcher(d Dispatcher)

	// Close unloads the build.
	Close(ctx context.Context) error
}

// Dispatcher routes a callback fired by the engine to the pinned Go
// function identified by handle. It may be called from any goroutine or
// foreign thread.
type Dispatcher interface {
	Dispatch(ctx context.Context, handle uint64, args ...uint64) Status
}

// String is a text argument encoded for the selected variant:
// Wide selects UTF-16, otherwise the bytes are passed as-is (ANSI).
type String struct {
	Value string
	Wide  bool
}

// CallbackKind distinguishes native callback signatures.
type CallbackKind uint8

const (
	CallbackStatus CallbackKind = iota + 1
	CallbackTable
	CallbackDefrag
	CallbackRuntime
)

func (k CallbackKind) String() string {
	switch k {
	case CallbackStatus:
		return "status"
	case CallbackTable:
		return "table"
	case CallbackDefrag:
		return "defrag"
	case CallbackRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Callback passes a pinned callback handle to the engine. Backends turn it
// into whatever the engine needs to fire it later (an address plus context
// word for shared libraries, the raw handle for wasm builds).
type Callback struct {
	Handle uint64
	Kind   CallbackKind
}
