// Package resource tracks the lifetime of engine resources.
//
// Every instance, session, database, cursor, transaction and callback
// registration the runtime opens is registered with a Tracker under its
// parent:
//
//	t := resource.NewTracker(true)
//	inst, _ := t.Register(0, resource.KindInstance, 0, "main", closeInstance)
//	sess, _ := t.Register(inst, resource.KindSession, thread.ID(), "", endSession)
//
// # Ownership
//
// Parents own their children; children only remember the parent ID. There
// are no pointer cycles between a session and its instance.
//
// Sessions and everything opened through them are bound to the OS thread
// that created them. With affinity enabled, Check and Unregister from any
// other thread fail with a usage error before the engine is called.
// Rebind moves a subtree to another thread.
//
// # Cascade Close
//
// CloseAll closes a resource and all of its descendants. Closers run from
// the deepest level up, newest first within a level, so a cursor always
// closes before its session and a session before its instance. A failing
// closer does not stop the cascade: every entry is removed and every
// failure is returned in one aggregated error.
//
// # Observers
//
// Observers receive Registered, Released and Rebound events. Leaks lists
// whatever is still open, which is useful at process shutdown and in tests.
package resource
