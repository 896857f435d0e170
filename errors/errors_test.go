package errors

import (
	"errors"
	"strings"
	"testing"

	jetruntime "github.com/wippyai/jet-runtime"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "native error",
			err: &Error{
				Phase:  PhaseNative,
				Kind:   KindNative,
				Op:     "CommitTransaction",
				Symbol: "JetCommitTransaction2",
				Status: jetruntime.StatusNotInTransaction,
				Detail: "during teardown",
			},
			contains: []string{"[native]", "native", "CommitTransaction", "JetCommitTransaction2", "not in a transaction", "-1054", "during teardown"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLifecycle,
				Kind:  KindClosed,
			},
			contains: []string{"[lifecycle]", "closed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindInvalidInput,
				Detail: "open library",
				Cause:  errors.New("no such file"),
			},
			contains: []string{"[load]", "invalid_input", "open library", "caused by", "no such file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidInput,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := Native("Rollback", "JetRollback", jetruntime.StatusNotInTransaction)

	if !errors.Is(err, ErrNative) {
		t.Error("Is should match kind sentinel")
	}
	if !errors.Is(err, NativeStatus(jetruntime.StatusNotInTransaction)) {
		t.Error("Is should match same status")
	}
	if errors.Is(err, NativeStatus(jetruntime.StatusInvalidSessionID)) {
		t.Error("Is should not match different status")
	}
	if errors.Is(err, ErrFeatureNotAvailable) {
		t.Error("Is should not match different kind")
	}
	if errors.Is(err, &Error{Phase: PhaseDispatch, Kind: KindNative}) {
		t.Error("Is should not match different phase")
	}
	if !errors.Is(err, &Error{Phase: PhaseNative, Kind: KindNative}) {
		t.Error("Is should match same phase and kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseNative, KindNative).
		Op("BeginSession").
		Symbol("JetBeginSessionW").
		Status(jetruntime.StatusInvalidInstance).
		Value(42).
		Cause(cause).
		Detail("instance %s", "main").
		Build()

	if err.Phase != PhaseNative {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseNative)
	}
	if err.Op != "BeginSession" || err.Symbol != "JetBeginSessionW" {
		t.Errorf("Op=%v Symbol=%v", err.Op, err.Symbol)
	}
	if err.Status != jetruntime.StatusInvalidInstance {
		t.Errorf("Status = %v", err.Status)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "instance main" {
		t.Errorf("Detail = %v, want 'instance main'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("FeatureNotAvailable", func(t *testing.T) {
		err := FeatureNotAvailable("CommitTransaction", "commit-id")
		if err.Kind != KindFeatureNotAvailable {
			t.Errorf("Kind = %v, want %v", err.Kind, KindFeatureNotAvailable)
		}
		if err.Status != jetruntime.StatusEntryPointNotSupported {
			t.Errorf("Status = %v", err.Status)
		}
		if !strings.Contains(err.Error(), "commit-id") {
			t.Errorf("message should name the feature: %s", err.Error())
		}
	})

	t.Run("InvalidOperation", func(t *testing.T) {
		err := InvalidOperation(PhaseTransaction, "Commit", "no active save point")
		if !errors.Is(err, ErrInvalidOperation) {
			t.Error("should match ErrInvalidOperation")
		}
	})

	t.Run("Usage", func(t *testing.T) {
		err := Usage(PhaseLifecycle, "EndSession", "wrong thread")
		if !errors.Is(err, ErrUsage) {
			t.Error("should match ErrUsage")
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseLifecycle, "OpenTable", "session")
		if !errors.Is(err, ErrClosed) {
			t.Error("should match ErrClosed")
		}
		if !strings.Contains(err.Detail, "session") {
			t.Errorf("Detail = %v", err.Detail)
		}
	})

	t.Run("Panic", func(t *testing.T) {
		err := Panic("status", "boom")
		if err.Kind != KindPanic || err.Value != "boom" {
			t.Errorf("Kind=%v Value=%v", err.Kind, err.Value)
		}
	})
}

func TestMissingEntryPointsError(t *testing.T) {
	t.Run("single entry point", func(t *testing.T) {
		err := NewMissingEntryPointsError("esent.wasm", []string{"CommitTransaction#JetCommitTransaction2"})
		if len(err.Missing) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(err.Missing))
		}
		if err.Missing[0].Operation != "CommitTransaction" {
			t.Errorf("operation = %q", err.Missing[0].Operation)
		}
		if err.Missing[0].Symbol != "JetCommitTransaction2" {
			t.Errorf("symbol = %q", err.Missing[0].Symbol)
		}
	})

	t.Run("grouped by operation", func(t *testing.T) {
		err := NewMissingEntryPointsError("", []string{
			"Init#JetInit3W",
			"Defragment#JetDefragment3",
			"Init#JetInit3",
		})
		msg := err.Error()
		for _, s := range []string{"engine build", "3 entry point", "Init:", "Defragment:", "JetInit3W"} {
			if !strings.Contains(msg, s) {
				t.Errorf("message %q should contain %q", msg, s)
			}
		}
		if strings.Index(msg, "Defragment:") > strings.Index(msg, "Init:") {
			t.Error("operations should be sorted")
		}
	})

	t.Run("empty", func(t *testing.T) {
		err := NewMissingEntryPointsError("x", nil)
		if !strings.Contains(err.Error(), "no entry points specified") {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingEntryPointsError("x", []string{"a#b"})
		if !errors.Is(err, &MissingEntryPointsError{}) {
			t.Error("errors.Is should match MissingEntryPointsError")
		}
	})
}
