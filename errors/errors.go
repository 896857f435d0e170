package errors

import (
	"fmt"
	"sort"
	"strings"

	jetruntime "github.com/wippyai/jet-runtime"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCapability  Phase = "capability"  // version detection and feature checks
	PhaseDispatch    Phase = "dispatch"    // entry-point selection and binding
	PhaseCallback    Phase = "callback"    // callback pinning and invocation
	PhaseLifecycle   Phase = "lifecycle"   // instance/session/cursor open and close
	PhaseTransaction Phase = "transaction" // save points
	PhaseNative      Phase = "native"      // the foreign call itself
	PhaseLoad        Phase = "load"        // engine build loading
	PhaseConfig      Phase = "config"      // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindNative              Kind = "native"
	KindFeatureNotAvailable Kind = "feature_not_available"
	KindInvalidOperation    Kind = "invalid_operation"
	KindUsage               Kind = "usage"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindClosed              Kind = "closed"
	KindPanic               Kind = "panic"
)

// Sentinels for errors.Is. They match on Kind regardless of phase.
var (
	ErrNative              = &Error{Kind: KindNative}
	ErrFeatureNotAvailable = &Error{Kind: KindFeatureNotAvailable}
	ErrInvalidOperation    = &Error{Kind: KindInvalidOperation}
	ErrUsage               = &Error{Kind: KindUsage}
	ErrClosed              = &Error{Kind: KindClosed}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Symbol string
	Detail string
	Status jetruntime.Status
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Symbol != "" {
		b.WriteString(" (")
		b.WriteString(e.Symbol)
		b.WriteByte(')')
	}

	if e.Kind == KindNative {
		b.WriteString(": ")
		b.WriteString(e.Status.String())
	}

	if e.Detail != "" {
		if e.Kind == KindNative {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches any phase; a native target with a
// status only matches that status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Status != 0 && t.Status != e.Status {
		return false
	}
	return true
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the logical operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Symbol sets the foreign entry point involved
func (b *Builder) Symbol(symbol string) *Builder {
	b.err.Symbol = symbol
	return b
}

// Status sets the native status
func (b *Builder) Status(s jetruntime.Status) *Builder {
	b.err.Status = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Native creates an error for a foreign call that reported failure.
func Native(op, symbol string, status jetruntime.Status) *Error {
	return &Error{
		Phase:  PhaseNative,
		Kind:   KindNative,
		Op:     op,
		Symbol: symbol,
		Status: status,
	}
}

// NativeStatus is a target for errors.Is matching one specific native status.
func NativeStatus(status jetruntime.Status) *Error {
	return &Error{Kind: KindNative, Status: status}
}

// FeatureNotAvailable creates an error for a request the loaded build cannot serve.
func FeatureNotAvailable(op, feature string) *Error {
	return &Error{
		Phase:  PhaseCapability,
		Kind:   KindFeatureNotAvailable,
		Op:     op,
		Detail: fmt.Sprintf("requires %s", feature),
		Status: jetruntime.StatusEntryPointNotSupported,
	}
}

// InvalidOperation creates an error for a violated local state precondition.
func InvalidOperation(phase Phase, op, reason string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidOperation,
		Op:     op,
		Detail: reason,
	}
}

// Usage creates an error for a resource accessed by the wrong owner or thread.
func Usage(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUsage,
		Op:     op,
		Detail: detail,
	}
}

// Closed creates an error for use of a released resource.
func Closed(phase Phase, op, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Op:     op,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates an engine build loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Panic creates an error for a recovered panic inside a callback.
func Panic(op string, value any) *Error {
	return &Error{
		Phase:  PhaseCallback,
		Kind:   KindPanic,
		Op:     op,
		Value:  value,
		Detail: fmt.Sprintf("panic: %v", value),
	}
}

// MissingEntryPoint represents one operation the loaded build cannot serve
type MissingEntryPoint struct {
	Operation string // e.g., "CommitTransaction"
	Symbol    string // e.g., "JetCommitTransaction2"
}

// MissingEntryPointsError is returned when a build lacks entry points that
// its reported version claims to export.
type MissingEntryPointsError struct {
	Library string
	Missing []MissingEntryPoint
}

// NewMissingEntryPointsError creates an error from "operation#symbol" keys
func NewMissingEntryPointsError(library string, keys []string) *MissingEntryPointsError {
	result := &MissingEntryPointsError{
		Library: library,
		Missing: make([]MissingEntryPoint, 0, len(keys)),
	}
	for _, key := range keys {
		op, sym := parseEntryKey(key)
		result.Missing = append(result.Missing, MissingEntryPoint{
			Operation: op,
			Symbol:    sym,
		})
	}
	return result
}

func parseEntryKey(key string) (operation, symbol string) {
	op, sym, found := strings.Cut(key, "#")
	if found {
		return op, sym
	}
	return key, ""
}

func (e *MissingEntryPointsError) Error() string {
	if len(e.Missing) == 0 {
		return "[dispatch] not_found: no entry points specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s is missing %d entry point(s):\n", e.libraryName(), len(e.Missing))

	byOp := make(map[string][]string)
	var ops []string
	for _, m := range e.Missing {
		if _, exists := byOp[m.Operation]; !exists {
			ops = append(ops, m.Operation)
		}
		byOp[m.Operation] = append(byOp[m.Operation], m.Symbol)
	}
	sort.Strings(ops)

	for _, op := range ops {
		b.WriteString("\n  ")
		b.WriteString(op)
		b.WriteString(":\n")
		for _, sym := range byOp[op] {
			b.WriteString("    - ")
			b.WriteString(sym)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (e *MissingEntryPointsError) libraryName() string {
	if e.Library == "" {
		return "engine build"
	}
	return e.Library
}

// Is reports whether target matches this error type
func (e *MissingEntryPointsError) Is(target error) bool {
	_, ok := target.(*MissingEntryPointsError)
	return ok
}
