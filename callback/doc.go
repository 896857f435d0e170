// Package callback keeps engine-held callbacks alive for exactly as long as
// the engine may fire them.
//
// The engine stores callback addresses and fires them whenever it likes,
// often from threads it created itself. A Guard owns every such callback in
// an explicit table instead of relying on scope:
//
//	g := callback.NewGuard()
//	h, _ := g.Pin(sessionID, jetruntime.CallbackDefrag, fn)
//	// pass jetruntime.Callback{Handle: uint64(h)} to the engine
//	...
//	g.Unregister(h)
//
// Each handle moves through Pinned, optionally Revoked while a call is
// still running, and finally Released. Released is terminal: the slot may
// be reused, but under a new generation, so the old handle keeps resolving
// to nothing. Collect only ever reclaims revoked entries that have no call
// in flight.
//
// Guard implements jetruntime.Dispatcher, so a backend routes every engine
// callback through Dispatch.
package callback
