package capability

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a decoded engine build number.
type Version struct {
	Major       uint32
	Minor       uint32
	Build       uint32
	ServicePack uint32
}

// Engine releases that introduce capabilities.
var (
	Release51  = Version{Major: 5, Minor: 1}
	Release52  = Version{Major: 5, Minor: 2}
	Release60  = Version{Major: 6, Minor: 0}
	Release61  = Version{Major: 6, Minor: 1}
	Release80  = Version{Major: 8, Minor: 0}
	Release81  = Version{Major: 8, Minor: 1}
	Release100 = Version{Major: 10, Minor: 0}
)

// FromRaw decodes the 32-bit value reported by the engine:
// bits 28-31 major, 24-27 minor, 8-23 build, 0-7 service pack.
func FromRaw(raw uint32) Version {
	return Version{
		Major:       raw >> 28,
		Minor:       (raw >> 24) & 0xF,
		Build:       (raw >> 8) & 0xFFFF,
		ServicePack: raw & 0xFF,
	}
}

// Raw encodes v in the engine's 32-bit layout. Fields wider than their bit
// range are truncated.
func (v Version) Raw() uint32 {
	return (v.Major&0xF)<<28 | (v.Minor&0xF)<<24 | (v.Build&0xFFFF)<<8 | v.ServicePack&0xFF
}

// Compare orders versions by major, minor, build, then service pack.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmp(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmp(v.Minor, o.Minor)
	case v.Build != o.Build:
		return cmp(v.Build, o.Build)
	default:
		return cmp(v.ServicePack, o.ServicePack)
	}
}

// AtLeast reports whether v is o or newer.
func (v Version) AtLeast(o Version) bool {
	return v.Compare(o) >= 0
}

// IsZero reports whether no version was set.
func (v Version) IsZero() bool {
	return v == Version{}
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d", v.Major, v.Minor)
	if v.Build != 0 || v.ServicePack != 0 {
		s += fmt.Sprintf(".%d", v.Build)
	}
	if v.ServicePack != 0 {
		s += fmt.Sprintf(".%d", v.ServicePack)
	}
	return s
}

// ParseVersion accepts dotted versions ("8.1", "8.1.9600", "8.1.9600.2")
// and raw engine values in hex ("0x81258000") or decimal.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}

	if !strings.Contains(s, ".") {
		raw, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return Version{}, fmt.Errorf("parse raw version %q: %w", s, err)
		}
		return FromRaw(uint32(raw)), nil
	}

	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, fmt.Errorf("version %q has too many components", s)
	}

	var fields [4]uint32
	limits := [4]uint64{0xF, 0xF, 0xFFFF, 0xFF}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("parse version %q: %w", s, err)
		}
		if n > limits[i] {
			return Version{}, fmt.Errorf("version %q: component %d out of range", s, i)
		}
		fields[i] = uint32(n)
	}

	return Version{Major: fields[0], Minor: fields[1], Build: fields[2], ServicePack: fields[3]}, nil
}

func cmp(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
