// Package jetruntime is a Go facade over a native, transactional ISAM storage
// engine reached through a flat table of exported entry points.
//
// The engine itself (pages, indexes, logging, locking) is external. This
// module owns the calling layer: which entry points a loaded build exports,
// which variant of each to call, how Go callbacks stay reachable while the
// engine may still fire them, and how instances, sessions, cursors and
// transactions are opened and released in a safe order.
//
// # Architecture Overview
//
//	jetruntime/          Boundary contract: Status, Warning, Library, Proc, Dispatcher
//	├── runtime/         High-level API: Runtime → Instance → Session → Cursor / Transaction
//	├── capability/      Engine version decoding and the immutable capability set
//	├── dispatch/        Entry-point catalog and most-capable-first variant selection
//	├── callback/        Callback lifetime guard (pinned, generation-tagged handles)
//	├── resource/        Ownership index with thread affinity and cascade close
//	├── txn/             Save-point state machine
//	├── engine/          wazero backend for WebAssembly engine builds
//	│   ├── memory/      In-process simulated engine build
//	│   └── native/      Shared-library backend (dlopen / LoadLibrary)
//	├── config/          viper-based configuration
//	└── errors/          Structured error types
//
// # Quick Start
//
//	lib := memory.New(memory.WithVersion(capability.Release100))
//	rt, err := runtime.New(ctx, lib)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	inst, _, err := rt.CreateInstance(ctx, "main", runtime.InstanceOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Terminate(ctx, runtime.TermOptions{})
//
//	if _, err := inst.Init(ctx, runtime.InitOptions{}); err != nil {
//	    log.Fatal(err)
//	}
//
//	sess, _, err := inst.BeginSession(ctx, runtime.SessionOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tx, _, err := sess.BeginTransaction(ctx, runtime.BeginOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tx.Close(ctx) // rolls back unless committed
//
//	id, _, err := tx.Commit(ctx, runtime.CommitOptions{WantCommitID: true})
//
// # Status Codes
//
// Every foreign call returns a signed 32-bit Status. Negative values become
// typed errors, positive values are returned as a Warning next to the
// successful result and are never turned into errors.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. A Session and everything opened from it
// belong to the OS thread that created the session (see runtime.WithThreadAffinity);
// callers that use sessions from goroutines should lock them to their thread
// with runtime.LockOSThread or rebind with Session.SetContext.
package jetruntime
