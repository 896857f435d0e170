// Package memory provides a simulated engine build.
//
// The simulated build answers every catalog entry point with the same
// status codes a real build would for the bookkeeping it keeps: instance
// state, sessions and their save-point depth, attached and open databases,
// open tables and registered table callbacks. It stores no data.
//
//	lib := memory.New(memory.WithVersion(capability.Release81))
//	rt, err := runtime.New(ctx, lib)
//
// The reported version decides which entry points are exported, exactly as
// dispatch.SymbolsFor computes them. WithoutSymbols removes exports to model
// builds that ship without a variant their version claims; WithStatus makes
// a symbol fail on demand.
//
// Callbacks are fired the way the engine fires them: backup and restore
// progress from a goroutine the caller does not own, defragmentation
// completion from a background goroutine, and table events through Fire.
package memory
