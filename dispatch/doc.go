// Package dispatch chooses which exported engine symbol serves each
// logical operation.
//
// Every operation has a ranked list of variants, newest first. A variant
// carries the capability flags it needs, its struct revision and whether it
// takes wide-character paths:
//
//	v, err := dispatch.Select(dispatch.OpInit, caps)
//	// v.Symbol == "JetInit3W" on 6.0 and newer
//
// Select is a pure function of the operation and the capability set, so it
// can be tested without loading an engine. Bind goes one step further: it
// probes the loaded library for each candidate and fixes the newest variant
// that is both supported and exported. A Binding never changes afterwards,
// so every instance created from it keeps using the same variants.
//
// When no variant is usable the operation fails with a FeatureNotAvailable
// error. That failure reflects a build mismatch and is not retryable.
package dispatch
