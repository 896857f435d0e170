// Package runtime is the high-level API over a loaded engine build.
//
// A Runtime owns everything shared by one build: the detected capability
// set, one bound entry point per operation, the callback guard and the
// resource tracker. Objects are opened top-down and form a tree:
//
//	Runtime
//	└── Instance              CreateInstance, Init, Stop/Resume, Backup/Restore
//	    └── Session           BeginSession (bound to the calling thread)
//	        ├── Transaction   BeginTransaction, nested Begin, Commit/Rollback
//	        ├── Defragmentation
//	        └── Database      OpenDatabase
//	            └── Cursor    OpenTable, Dup
//	                └── Registration   RegisterCallback
//
// Closing any node closes its subtree first, youngest first, and every
// failure along the way is reported. Once a node is closed every call
// through it or its descendants fails with errors.ErrClosed.
//
// Optional engine features are never emulated. Asking for one the build
// lacks (a commit id before 10.0, a recovery path before 6.0) fails with
// errors.ErrFeatureNotAvailable before anything is sent to the engine.
// Positive engine statuses come back as a jetruntime.Warning next to a
// nil error.
//
// Sessions belong to the OS thread that began them. Goroutines using a
// session call runtime.LockOSThread first, or move the session with
// Session.SetContext.
package runtime
