// Package errors provides structured error types for jet-runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The four kinds callers branch on are:
//
//	KindNative              the foreign call returned a negative status
//	KindFeatureNotAvailable the loaded engine build cannot serve the request
//	KindInvalidOperation    a local state precondition failed (Commit while idle)
//	KindUsage               a resource was used by the wrong owner or thread
//
// InvalidOperation and Usage errors are raised before any foreign call is
// attempted. Warnings (positive statuses) are never errors.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseNative, errors.KindNative).
//		Op("CommitTransaction").
//		Symbol("JetCommitTransaction2").
//		Status(status).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Native("CommitTransaction", "JetCommitTransaction2", status)
//	err := errors.FeatureNotAvailable("CommitTransaction", "commit-id")
//
// Match with the standard library:
//
//	if errors.Is(err, jeterrors.ErrFeatureNotAvailable) { ... }
//	if errors.Is(err, jeterrors.NativeStatus(jetruntime.StatusNotInTransaction)) { ... }
package errors
