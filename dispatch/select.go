package dispatch

import (
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/errors"
)

// Select returns the newest variant of op that caps supports.
// The result depends only on op and caps.
func Select(op Operation, caps capability.Set) (Variant, error) {
	return SelectWhere(op, caps, nil)
}

// SelectWhere is Select restricted to variants accepted by accept.
// A nil accept admits every variant.
func SelectWhere(op Operation, caps capability.Set, accept func(Variant) bool) (Variant, error) {
	s, ok := byOp[op]
	if !ok {
		return Variant{}, errors.NotFound(errors.PhaseDispatch, "operation", string(op))
	}

	for _, v := range s.Variants {
		if !v.Supported(caps) {
			continue
		}
		if accept != nil && !accept(v) {
			continue
		}
		return v, nil
	}

	return Variant{}, unsupported(s, caps)
}

func unsupported(s Strategy, caps capability.Set) *errors.Error {
	// Name the flags of the oldest variant; that is the smallest upgrade.
	feature := "an exported entry point"
	if n := len(s.Variants); n > 0 {
		oldest := s.Variants[n-1]
		for _, f := range oldest.Requires {
			if !caps.Has(f) {
				feature = f.String()
				break
			}
		}
	}
	return errors.FeatureNotAvailable(string(s.Op), feature)
}
