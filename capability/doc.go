// Package capability decodes engine build versions and derives the
// immutable set of optional features a build supports.
//
// A version is decomposed into major, minor, build and service-pack
// ordinals; every Flag is a monotonic threshold on that version:
//
//	s := capability.Detect(capability.Release81)
//	s.Has(capability.DurableCommit) // true, available since 8.0
//	s.Has(capability.CommitID)      // false, available since 10.0
//
// A Registry caches the set for one loaded build. It is an explicit object
// owned by the runtime rather than package state, so unrelated builds never
// share a cache.
package capability
