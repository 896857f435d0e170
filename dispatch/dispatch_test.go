package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
	"github.com/wippyai/jet-runtime/errors"
)

type stubProc struct {
	symbol string
	status jetruntime.Status
	calls  int
}

func (p *stubProc) Symbol() string { return p.symbol }

func (p *stubProc) Call(_ context.Context, _ ...any) (jetruntime.Status, error) {
	p.calls++
	return p.status, nil
}

type stubLibrary struct {
	procs map[string]*stubProc
}

func newStubLibrary(symbols ...string) *stubLibrary {
	l := &stubLibrary{procs: make(map[string]*stubProc)}
	for _, s := range symbols {
		l.procs[s] = &stubProc{symbol: s}
	}
	return l
}

func (l *stubLibrary) Name() string { return "stub" }

func (l *stubLibrary) Lookup(symbol string) (jetruntime.Proc, bool) {
	p, ok := l.procs[symbol]
	if !ok {
		return nil, false
	}
	return p, true
}

func (l *stubLibrary) SetDispatcher(jetruntime.Dispatcher) {}

func (l *stubLibrary) Close(context.Context) error { return nil }

var releases = []capability.Version{
	{Major: 5, Minor: 0},
	capability.Release51,
	capability.Release52,
	capability.Release60,
	capability.Release61,
	capability.Release80,
	capability.Release81,
	capability.Release100,
}

func TestSelect_NewestSupported(t *testing.T) {
	tests := []struct {
		op      Operation
		version capability.Version
		want    string
	}{
		{OpInit, capability.Release51, "JetInit"},
		{OpInit, capability.Release52, "JetInit2"},
		{OpInit, capability.Release60, "JetInit3W"},
		{OpCreateInstance, capability.Release52, "JetCreateInstance2"},
		{OpCreateInstance, capability.Release81, "JetCreateInstance2W"},
		{OpBeginTransaction, capability.Release61, "JetBeginTransaction2"},
		{OpBeginTransaction, capability.Release80, "JetBeginTransaction3"},
		{OpCommitTransaction, capability.Release61, "JetCommitTransaction"},
		{OpCommitTransaction, capability.Release80, "JetCommitTransaction2"},
		{OpDefragment, capability.Release51, "JetDefragment"},
		{OpDefragment, capability.Release52, "JetDefragment2"},
		{OpDefragment, capability.Release100, "JetDefragment3W"},
		{OpStopService, capability.Release61, "JetStopServiceInstance"},
		{OpStopService, capability.Release80, "JetStopServiceInstance2"},
	}

	for _, tt := range tests {
		t.Run(string(tt.op)+"@"+tt.version.String(), func(t *testing.T) {
			v, err := Select(tt.op, capability.Detect(tt.version))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Symbol)
		})
	}
}

func TestSelect_NeverPicksUnsupported(t *testing.T) {
	for _, s := range Catalog {
		for i, older := range releases {
			oldCaps := capability.Detect(older)
			for _, newer := range releases[i:] {
				newCaps := capability.Detect(newer)
				require.True(t, newCaps.Superset(oldCaps))

				vOld, errOld := Select(s.Op, oldCaps)
				vNew, errNew := Select(s.Op, newCaps)
				if errOld == nil {
					assert.True(t, vOld.Supported(oldCaps), "%s on %s picked %s", s.Op, older, vOld.Symbol)
					require.NoError(t, errNew, "%s supported on %s but not %s", s.Op, older, newer)
					assert.GreaterOrEqual(t, vNew.Revision, vOld.Revision)
				}
				if errNew == nil {
					// Nothing ranked before the choice may be supported.
					for _, cand := range s.Variants {
						if cand.Symbol == vNew.Symbol {
							break
						}
						assert.False(t, cand.Supported(newCaps), "%s skipped %s on %s", s.Op, cand.Symbol, newer)
					}
				}
			}
		}
	}
}

func TestSelect_FeatureNotAvailable(t *testing.T) {
	_, err := Select(OpSetSessionContext, capability.Detect(capability.Release51))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrFeatureNotAvailable)

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, string(OpSetSessionContext), e.Op)
	assert.Equal(t, jetruntime.StatusEntryPointNotSupported, e.Status)
	assert.Contains(t, e.Detail, "session-context")
}

func TestSelect_UnknownOperation(t *testing.T) {
	_, err := Select("Frobnicate", capability.Detect(capability.Release100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Frobnicate")
}

func TestSelectWhere_NarrowOnly(t *testing.T) {
	caps := capability.Detect(capability.Release100)
	v, err := SelectWhere(OpAttachDatabase, caps, func(v Variant) bool { return !v.Wide })
	require.NoError(t, err)
	assert.Equal(t, "JetAttachDatabase2", v.Symbol)
}

var optional = map[Operation]bool{
	OpSetSessionContext:   true,
	OpResetSessionContext: true,
}

func TestCatalog_WellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range Catalog {
		require.NotEmpty(t, s.Variants, s.Op)
		if !optional[s.Op] {
			assert.Empty(t, s.Variants[len(s.Variants)-1].Requires, "%s: oldest variant is gated", s.Op)
		}
		for i, v := range s.Variants {
			assert.False(t, seen[v.Symbol], "duplicate symbol %s", v.Symbol)
			seen[v.Symbol] = true
			if i > 0 {
				assert.LessOrEqual(t, v.Revision, s.Variants[i-1].Revision, "%s not ranked newest first", s.Op)
			}
		}
		_, ok := Lookup(s.Op)
		assert.True(t, ok)
	}
	assert.Len(t, Symbols(), len(seen))
}

func TestBind_FallsBackToExported(t *testing.T) {
	caps := capability.Detect(capability.Release81)
	// A build that claims 8.1 but ships without the wide Init.
	lib := newStubLibrary("JetInit3", "JetInit", "JetBeginSession")

	b := Bind(lib, caps)

	bd, err := b.Proc(OpInit)
	require.NoError(t, err)
	assert.Equal(t, "JetInit3", bd.Variant.Symbol)
	assert.Equal(t, "JetInit3", bd.Proc.Symbol())

	assert.True(t, b.Supports(OpBeginSession))
	assert.False(t, b.Supports(OpTerm))

	_, err = b.Proc(OpTerm)
	assert.ErrorIs(t, err, errors.ErrFeatureNotAvailable)

	unexpected := b.Unexpected()
	require.Error(t, unexpected)
	var missing *errors.MissingEntryPointsError
	require.ErrorAs(t, unexpected, &missing)
	assert.Contains(t, unexpected.Error(), "JetInit3W")
	assert.Contains(t, unexpected.Error(), "JetTerm2")
}

func TestBind_CompleteBuild(t *testing.T) {
	caps := capability.Detect(capability.Release100)
	b := Bind(newStubLibrary(SymbolsFor(caps)...), caps)

	for _, s := range Catalog {
		want, err := Select(s.Op, caps)
		require.NoError(t, err)
		got, err := b.Proc(s.Op)
		require.NoError(t, err)
		assert.Equal(t, want.Symbol, got.Variant.Symbol)
	}
	assert.NoError(t, b.Unexpected())
	assert.Len(t, b.Operations(), len(Catalog))
}

func TestBinding_Call(t *testing.T) {
	caps := capability.Detect(capability.Release60)
	lib := newStubLibrary("JetRollback", "JetEndSession", "JetCloseTable")
	lib.procs["JetEndSession"].status = jetruntime.StatusInvalidSessionID
	lib.procs["JetCloseTable"].status = jetruntime.WarningColumnNull
	b := Bind(lib, caps)

	ctx := context.Background()

	w, err := b.Call(ctx, OpRollback, uint64(1), uint32(0))
	require.NoError(t, err)
	assert.True(t, w.None())
	assert.Equal(t, 1, lib.procs["JetRollback"].calls)

	_, err = b.Call(ctx, OpEndSession, uint64(1), uint32(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.NativeStatus(jetruntime.StatusInvalidSessionID))

	w, err = b.Call(ctx, OpCloseTable, uint64(1), uint64(2))
	require.NoError(t, err)
	assert.Equal(t, jetruntime.Warning(jetruntime.WarningColumnNull), w)
}
