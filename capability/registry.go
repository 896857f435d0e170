package capability

import (
	"context"
	"sync"

	"github.com/wippyai/jet-runtime/errors"
)

// VersionSource queries the loaded engine for its raw version.
type VersionSource func(ctx context.Context) (uint32, error)

// Registry caches the capability set of one loaded engine build.
//
// The first successful Current call fixes the set for the life of the
// registry. An override, when present, takes priority and the source is
// never consulted.
type Registry struct {
	source   VersionSource
	override *Version
	cached   *Set
	mu       sync.Mutex
}

// NewRegistry creates a registry that lazily queries source.
func NewRegistry(source VersionSource) *Registry {
	return &Registry{source: source}
}

// NewFixedRegistry creates a registry pinned to v.
func NewFixedRegistry(v Version) *Registry {
	r := &Registry{}
	r.override = &v
	return r
}

// SetOverride forces the version used for detection. It fails once a set
// has been cached for a different version.
func (r *Registry) SetOverride(v Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && r.cached.version != v {
		return errors.InvalidOperation(errors.PhaseCapability, "SetOverride",
			"capabilities already detected as "+r.cached.version.String())
	}
	r.override = &v
	return nil
}

// Overridden reports whether detection bypasses the engine.
func (r *Registry) Overridden() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.override != nil
}

// Current returns the cached set, detecting it on first use.
// A failed query is not cached.
func (r *Registry) Current(ctx context.Context) (Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return *r.cached, nil
	}

	if r.override != nil {
		s := Detect(*r.override)
		r.cached = &s
		return s, nil
	}

	if r.source == nil {
		return Set{}, errors.InvalidOperation(errors.PhaseCapability, "DetectVersion",
			"no version source and no override")
	}

	raw, err := r.source(ctx)
	if err != nil {
		return Set{}, errors.Wrap(errors.PhaseCapability, errors.KindNotFound, err, "query engine version")
	}

	s := DetectRaw(raw)
	r.cached = &s
	return s, nil
}

// Require fails with FeatureNotAvailable naming op when f is unset in the
// current set.
func (r *Registry) Require(ctx context.Context, f Flag, op string) error {
	s, err := r.Current(ctx)
	if err != nil {
		return err
	}
	return s.Require(f, op)
}
