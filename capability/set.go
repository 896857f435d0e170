package capability

import (
	"strings"

	"github.com/wippyai/jet-runtime/errors"
)

// Flag is one optional engine feature.
type Flag uint8

// None is the requirement of base entry points every build exports.
const None Flag = 0

const (
	Revision2 Flag = iota + 1
	SessionContext
	DefragCallback
	UnicodePaths
	Revision3
	LargeKeys
	UnlimitedPassesFixed
	LargePages
	StopResume
	DurableCommit
	TransactionIDs
	ContextObjects
	CommitID

	flagCount
)

var flagNames = [...]string{
	None:                 "base",
	Revision2:            "revision-2",
	SessionContext:       "session-context",
	DefragCallback:       "defrag-callback",
	UnicodePaths:         "unicode-paths",
	Revision3:            "revision-3",
	LargeKeys:            "large-keys",
	UnlimitedPassesFixed: "unlimited-passes-fixed",
	LargePages:           "large-pages",
	StopResume:           "stop-resume",
	DurableCommit:        "durable-commit",
	TransactionIDs:       "transaction-ids",
	ContextObjects:       "context-objects",
	CommitID:             "commit-id",
}

// thresholds gives the first release exporting each flag. Every test is
// monotonic: once a release has a flag, all newer releases have it.
var thresholds = [flagCount]Version{
	Revision2:            Release52,
	SessionContext:       Release52,
	DefragCallback:       Release52,
	UnicodePaths:         Release60,
	Revision3:            Release60,
	LargeKeys:            Release60,
	UnlimitedPassesFixed: Release61,
	LargePages:           Release61,
	StopResume:           Release80,
	DurableCommit:        Release80,
	TransactionIDs:       Release80,
	ContextObjects:       Release81,
	CommitID:             Release100,
}

func (f Flag) String() string {
	if int(f) < len(flagNames) {
		return flagNames[f]
	}
	return "unknown"
}

// Since returns the first release that has f.
func (f Flag) Since() Version {
	if f == None || f >= flagCount {
		return Version{}
	}
	return thresholds[f]
}

// Flags lists every optional flag in declaration order.
func Flags() []Flag {
	out := make([]Flag, 0, flagCount-1)
	for f := Revision2; f < flagCount; f++ {
		out = append(out, f)
	}
	return out
}

// Set is the immutable feature profile of one engine version.
type Set struct {
	version Version
	bits    uint64
}

// Detect computes the capability set of version v. The result is a pure
// function of v.
func Detect(v Version) Set {
	s := Set{version: v}
	for f := Revision2; f < flagCount; f++ {
		if v.AtLeast(thresholds[f]) {
			s.bits |= 1 << f
		}
	}
	return s
}

// DetectRaw decodes raw and computes its capability set.
func DetectRaw(raw uint32) Set {
	return Detect(FromRaw(raw))
}

// Version returns the version the set was computed from.
func (s Set) Version() Version {
	return s.version
}

// Has reports whether f is available. None is always available.
func (s Set) Has(f Flag) bool {
	if f == None {
		return true
	}
	return s.bits&(1<<f) != 0
}

// HasAll reports whether every flag in fs is available.
func (s Set) HasAll(fs ...Flag) bool {
	for _, f := range fs {
		if !s.Has(f) {
			return false
		}
	}
	return true
}

// Require fails with FeatureNotAvailable naming op when f is unset.
func (s Set) Require(f Flag, op string) error {
	if s.Has(f) {
		return nil
	}
	return errors.FeatureNotAvailable(op, f.String())
}

// Enabled lists the available optional flags.
func (s Set) Enabled() []Flag {
	var out []Flag
	for f := Revision2; f < flagCount; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Superset reports whether s has every flag o has.
func (s Set) Superset(o Set) bool {
	return s.bits&o.bits == o.bits
}

func (s Set) String() string {
	names := make([]string, 0, flagCount)
	for _, f := range s.Enabled() {
		names = append(names, f.String())
	}
	return s.version.String() + " [" + strings.Join(names, " ") + "]"
}
