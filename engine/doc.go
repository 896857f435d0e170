// Package engine loads WebAssembly builds of the storage engine with wazero.
//
// A build is a core module that exports one function per entry point, named
// exactly like the symbol (JetInit3W, JetCommitTransaction2, ...). Every
// parameter is an i32 or i64 and the single i32 result is the engine status.
// Exports of any other shape (allocators, helpers) are not entry points.
//
// # Argument Marshaling
//
//	Go argument               Guest value
//	──────────────────────────────────────────────────────────────
//	integers, bool            the value itself
//	jetruntime.String         pointer to a NUL-terminated copy in guest memory
//	*uint64                   pointer to an 8-byte cell, copied back after the call
//	jetruntime.Callback       the callback handle
//
// Guest memory for strings and output cells comes from the module's
// allocator (cabi_realloc, or the older alloc/allocate exports) and is
// freed when the call returns.
//
// # Callbacks
//
// The host module "jet_host" exports
//
//	callback(handle i64, argv i32, argc i32) -> i32
//
// A build fires a callback by writing argc i64 words at argv and calling it
// with the handle it was given. The words reach the installed Dispatcher;
// its status is returned to the guest.
//
// Guest calls are serialized. A callback may call back into the build as
// long as it passes on the context it was given.
package engine
