package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/capability"
)

func call(t *testing.T, l *Library, symbol string, list ...any) jetruntime.Status {
	t.Helper()
	p, ok := l.Lookup(symbol)
	require.True(t, ok, "%s not exported", symbol)
	st, err := p.Call(context.Background(), list...)
	require.NoError(t, err)
	return st
}

func narrow(s string) jetruntime.String { return jetruntime.String{Value: s} }

func TestExportsFollowVersion(t *testing.T) {
	old := New(WithVersion(capability.Release51))
	_, ok := old.Lookup("JetInit3")
	assert.False(t, ok)
	_, ok = old.Lookup("JetInit")
	assert.True(t, ok)

	cur := New()
	for _, sym := range []string{"JetInit3W", "JetCommitTransaction2", "JetSetSessionContext"} {
		_, ok := cur.Lookup(sym)
		assert.True(t, ok, sym)
	}

	hidden := New(WithoutSymbols("JetTerm2"))
	_, ok = hidden.Lookup("JetTerm2")
	assert.False(t, ok)

	only := New(WithSymbols("JetGetVersion"))
	_, ok = only.Lookup("JetInit")
	assert.False(t, ok)
}

func TestGetVersion(t *testing.T) {
	l := New(WithVersion(capability.Release81))
	var raw uint64
	assert.Zero(t, call(t, l, "JetGetVersion", uint64(0), &raw))
	assert.Equal(t, capability.Release81, capability.FromRaw(uint32(raw)))
}

func TestEncodingMismatch(t *testing.T) {
	l := New()
	var h uint64
	st := call(t, l, "JetCreateInstanceW", &h, narrow("a"))
	assert.Equal(t, jetruntime.StatusInvalidParameter, st)

	st = call(t, l, "JetCreateInstanceW", &h, jetruntime.String{Value: "a", Wide: true})
	assert.Zero(t, st)
	assert.NotZero(t, h)
}

func TestArgumentShape(t *testing.T) {
	l := New()
	p, _ := l.Lookup("JetBeginTransaction")

	_, err := p.Call(context.Background())
	assert.Error(t, err)

	_, err = p.Call(context.Background(), "session")
	assert.Error(t, err)
}

func TestForcedStatus(t *testing.T) {
	l := New(WithStatus("JetInit", jetruntime.StatusInvalidParameter))
	var h uint64
	require.Zero(t, call(t, l, "JetCreateInstance", &h, narrow("a")))

	assert.Equal(t, jetruntime.StatusInvalidParameter, call(t, l, "JetInit", h))
	assert.Equal(t, 2, len(l.Calls()))
}

func TestSessionLifecycle(t *testing.T) {
	l := New(WithVersion(capability.Release52))
	var inst, ses uint64
	require.Zero(t, call(t, l, "JetCreateInstance", &inst, narrow("a")))

	st := call(t, l, "JetBeginSession", inst, &ses, narrow(""), narrow(""))
	assert.Equal(t, jetruntime.StatusNotInitialized, st)

	require.Zero(t, call(t, l, "JetInit", inst))
	assert.Equal(t, jetruntime.StatusAlreadyInitialized, call(t, l, "JetInit", inst))
	require.Zero(t, call(t, l, "JetBeginSession", inst, &ses, narrow(""), narrow("")))

	assert.Equal(t, jetruntime.StatusNotInTransaction, call(t, l, "JetRollback", ses, uint64(0)))
	for i := 0; i < 7; i++ {
		require.Zero(t, call(t, l, "JetBeginTransaction", ses))
	}
	assert.Equal(t, jetruntime.StatusTransTooDeep, call(t, l, "JetBeginTransaction", ses))
	assert.Equal(t, 7, l.Depth(ses))

	assert.Zero(t, call(t, l, "JetRollback", ses, uint64(jetruntime.BitRollbackAll)))
	assert.Zero(t, l.Depth(ses))

	require.Zero(t, call(t, l, "JetTerm", inst))
	sessions, _, _ := l.Open()
	assert.Zero(t, sessions)
	assert.Equal(t, -1, l.Depth(ses))
}

func TestTableCallbacks(t *testing.T) {
	ctx := context.Background()
	l := New()
	var fired []uint64
	l.SetDispatcher(dispatcherFunc(func(_ context.Context, h uint64, args ...uint64) jetruntime.Status {
		fired = append(fired, h)
		return 0
	}))

	var inst, ses, db, tbl, reg uint64
	w := func(s string) jetruntime.String { return jetruntime.String{Value: s, Wide: true} }
	require.Zero(t, call(t, l, "JetCreateInstanceW", &inst, w("a")))
	require.Zero(t, call(t, l, "JetInit", inst))
	require.Zero(t, call(t, l, "JetBeginSessionW", inst, &ses, w(""), w("")))
	require.Zero(t, call(t, l, "JetAttachDatabaseW", ses, w("x.edb"), uint64(0)))
	assert.Equal(t, jetruntime.WarningDatabaseAttached, call(t, l, "JetAttachDatabaseW", ses, w("x.edb"), uint64(0)))
	require.Zero(t, call(t, l, "JetOpenDatabaseW", ses, w("x.edb"), w(""), &db, uint64(0)))
	require.Zero(t, call(t, l, "JetOpenTableW", ses, db, w("t"), &tbl, uint64(0)))

	cb := jetruntime.Callback{Handle: 77, Kind: jetruntime.CallbackTable}
	require.Zero(t, call(t, l, "JetRegisterCallback", ses, tbl, uint64(jetruntime.CbtypAfterInsert), cb, uint64(0), &reg))

	assert.Equal(t, []jetruntime.Status{0}, l.Fire(ctx, tbl, jetruntime.CbtypAfterInsert))
	assert.Equal(t, []uint64{77}, fired)

	require.Zero(t, call(t, l, "JetUnregisterCallback", ses, tbl, uint64(jetruntime.CbtypAfterInsert), reg))
	assert.Equal(t, jetruntime.StatusCallbackNotRegistered,
		call(t, l, "JetUnregisterCallback", ses, tbl, uint64(jetruntime.CbtypAfterInsert), reg))
	assert.Empty(t, l.Fire(ctx, tbl, jetruntime.CbtypAfterInsert))
}

func TestClose(t *testing.T) {
	l := New()
	require.NoError(t, l.Close(context.Background()))

	p, _ := l.Lookup("JetGetVersion")
	var raw uint64
	_, err := p.Call(context.Background(), uint64(0), &raw)
	assert.Error(t, err)
}

type dispatcherFunc func(ctx context.Context, h uint64, args ...uint64) jetruntime.Status

func (f dispatcherFunc) Dispatch(ctx context.Context, h uint64, args ...uint64) jetruntime.Status {
	return f(ctx, h, args...)
}
