package dispatch

import (
	"context"
	"sort"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/errors"
	"go.uber.org/zap"
)

// Bound is a selected variant together with its resolved procedure.
type Bound struct {
	Proc    jetruntime.Proc
	Variant Variant
}

// Binding maps each operation to the variant chosen when the library was
// attached. It is immutable after Bind returns.
type Binding struct {
	caps    capability.Set
	bound   map[Operation]Bound
	missing map[Operation]error
	library string
}

// Bind probes lib for every catalog symbol and fixes one variant per
// operation: the newest that caps supports and lib exports. Operations with
// no usable variant are recorded and fail on use.
func Bind(lib jetruntime.Library, caps capability.Set) *Binding {
	b := &Binding{
		caps:    caps,
		bound:   make(map[Operation]Bound, len(Catalog)),
		missing: make(map[Operation]error),
		library: lib.Name(),
	}

	for _, s := range Catalog {
		var procs = make(map[string]jetruntime.Proc, len(s.Variants))
		v, err := SelectWhere(s.Op, caps, func(v Variant) bool {
			p, ok := lib.Lookup(v.Symbol)
			if !ok {
				Logger().Debug("entry point not exported, falling back",
					zap.String("op", string(s.Op)),
					zap.String("symbol", v.Symbol))
				return false
			}
			procs[v.Symbol] = p
			return true
		})
		if err != nil {
			b.missing[s.Op] = err
			continue
		}

		if want, _ := Select(s.Op, caps); want.Symbol != v.Symbol {
			Logger().Debug("operation bound to older variant",
				zap.String("op", string(s.Op)),
				zap.String("expected", want.Symbol),
				zap.String("bound", v.Symbol))
		}
		b.bound[s.Op] = Bound{Variant: v, Proc: procs[v.Symbol]}
	}

	Logger().Debug("entry points bound",
		zap.String("library", b.library),
		zap.Stringer("capabilities", caps),
		zap.Int("bound", len(b.bound)),
		zap.Int("missing", len(b.missing)))

	return b
}

// Capabilities returns the set the binding was made against.
func (b *Binding) Capabilities() capability.Set {
	return b.caps
}

// Proc returns the bound variant of op or the reason none is usable.
func (b *Binding) Proc(op Operation) (Bound, error) {
	if bd, ok := b.bound[op]; ok {
		return bd, nil
	}
	if err, ok := b.missing[op]; ok {
		return Bound{}, err
	}
	return Bound{}, errors.NotFound(errors.PhaseDispatch, "operation", string(op))
}

// Supports reports whether op has a usable variant.
func (b *Binding) Supports(op Operation) bool {
	_, ok := b.bound[op]
	return ok
}

// Call invokes the bound variant of op with fixed arguments. A negative
// status becomes a native error; a positive status is returned as a warning.
func (b *Binding) Call(ctx context.Context, op Operation, args ...any) (jetruntime.Warning, error) {
	return b.Invoke(ctx, op, func(Variant) []any { return args })
}

// Invoke is Call with arguments built for the bound variant, for
// operations whose revisions take different argument lists.
func (b *Binding) Invoke(ctx context.Context, op Operation, build func(Variant) []any) (jetruntime.Warning, error) {
	bd, err := b.Proc(op)
	if err != nil {
		return 0, err
	}

	st, err := bd.Proc.Call(ctx, build(bd.Variant)...)
	if err != nil {
		return 0, errors.New(errors.PhaseNative, errors.KindNative).
			Op(string(op)).
			Symbol(bd.Variant.Symbol).
			Status(jetruntime.StatusEntryPointNotSupported).
			Cause(err).
			Build()
	}
	if st.IsError() {
		return 0, errors.Native(string(op), bd.Variant.Symbol, st)
	}
	return jetruntime.WarningOf(st), nil
}

// Variant returns the variant bound for op.
func (b *Binding) Variant(op Operation) (Variant, error) {
	bd, err := b.Proc(op)
	return bd.Variant, err
}

// Operations lists the bound operations in name order.
func (b *Binding) Operations() []Operation {
	out := make([]Operation, 0, len(b.bound))
	for op := range b.bound {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Unexpected lists operations whose capability-supported variant the library
// does not export, as a MissingEntryPointsError. It returns nil when the
// library exports everything its version claims.
func (b *Binding) Unexpected() error {
	var keys []string
	for _, s := range Catalog {
		want, err := Select(s.Op, b.caps)
		if err != nil {
			continue
		}
		if got, ok := b.bound[s.Op]; ok && got.Variant.Symbol == want.Symbol {
			continue
		}
		keys = append(keys, string(s.Op)+"#"+want.Symbol)
	}
	if len(keys) == 0 {
		return nil
	}
	return errors.NewMissingEntryPointsError(b.library, keys)
}
