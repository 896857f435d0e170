package native

import (
	"context"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jetruntime "github.com/wippyai/jet-runtime"
)

// fakeLoader stands in for a loaded library: entry points are Go
// functions keyed by fake addresses.
type fakeLoader struct {
	syms   map[string]uintptr
	fns    map[uintptr]func(args ...uintptr) uintptr
	closed bool
}

func (f *fakeLoader) lookup(symbol string) (uintptr, error) {
	if a, ok := f.syms[symbol]; ok {
		return a, nil
	}
	return 0, assert.AnError
}

func (f *fakeLoader) call(addr uintptr, args ...uintptr) uintptr {
	return f.fns[addr](args...)
}

func (f *fakeLoader) close() error {
	f.closed = true
	return nil
}

type recorder struct {
	handle uint64
	words  []uint64
}

func (r *recorder) Dispatch(_ context.Context, h uint64, args ...uint64) jetruntime.Status {
	r.handle = h
	r.words = append([]uint64(nil), args...)
	return 0
}

func withLibrary(t *testing.T, ld *fakeLoader) *Library {
	t.Helper()
	l := &Library{loader: ld, procs: map[string]*proc{}, missing: map[string]bool{}, path: "fake"}
	require.True(t, active.CompareAndSwap(nil, l))
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l
}

func TestLookup_CachesMisses(t *testing.T) {
	ld := &fakeLoader{syms: map[string]uintptr{"JetInit": 1}}
	l := withLibrary(t, ld)

	p, ok := l.Lookup("JetInit")
	require.True(t, ok)
	assert.Equal(t, "JetInit", p.Symbol())

	_, ok = l.Lookup("JetInit3W")
	assert.False(t, ok)
	assert.True(t, l.missing["JetInit3W"])
}

func TestCall_Marshaling(t *testing.T) {
	var got []uintptr
	ld := &fakeLoader{
		syms: map[string]uintptr{"JetBeginSession": 1},
		fns: map[uintptr]func(args ...uintptr) uintptr{
			1: func(args ...uintptr) uintptr {
				got = append([]uintptr(nil), args...)
				return encode(jetruntime.StatusInvalidInstance)
			},
		},
	}
	l := withLibrary(t, ld)
	p, _ := l.Lookup("JetBeginSession")

	var out uint64
	st, err := p.Call(context.Background(), uint64(7), &out, jetruntime.String{}, true)
	require.NoError(t, err)
	assert.Equal(t, jetruntime.StatusInvalidInstance, st)
	require.Len(t, got, 4)
	assert.Equal(t, uintptr(7), got[0])
	assert.NotZero(t, got[1])
	assert.NotZero(t, got[2])
	assert.Equal(t, uintptr(1), got[3])

	_, err = p.Call(context.Background(), 1.5)
	assert.Error(t, err)
}

func TestTrampolines_Route(t *testing.T) {
	l := withLibrary(t, &fakeLoader{})
	r := &recorder{}

	assert.Equal(t, encode(jetruntime.StatusCallbackNotRegistered), onTable(1, 2, 3, 4, 0, 0, 9, 0))

	l.SetDispatcher(r)
	assert.Zero(t, onTable(1, 2, 3, uintptr(jetruntime.CbtypAfterInsert), 0, 0, 9, 0))
	assert.Equal(t, uint64(9), r.handle)
	assert.Equal(t, []uint64{1, 2, 3, uint64(jetruntime.CbtypAfterInsert), 0, 0, 9}, r.words)

	defragCur.Store(11)
	onTable(1, 2, 3, uintptr(jetruntime.CbtypOnlineDefragCompleted), 0, 0, 0, 0)
	assert.Equal(t, uint64(11), r.handle)

	statusCur.Store(12)
	prog := snprog{size: 12, done: 1, total: 4}
	onStatus(0, uintptr(jetruntime.SnpBackup), uintptr(jetruntime.SntProgress), uintptrOf(&prog))
	assert.Equal(t, uint64(12), r.handle)
	assert.Equal(t, []uint64{0, uint64(jetruntime.SnpBackup), uint64(jetruntime.SntProgress), 25}, r.words)
}

func TestOpen_OneAtATime(t *testing.T) {
	withLibrary(t, &fakeLoader{})

	ld := &fakeLoader{}
	other := &Library{loader: ld}
	assert.False(t, active.CompareAndSwap(nil, other))
}

func TestClose(t *testing.T) {
	ld := &fakeLoader{syms: map[string]uintptr{"JetTerm": 1}}
	l := withLibrary(t, ld)
	p, _ := l.Lookup("JetTerm")

	require.NoError(t, l.Close(context.Background()))
	assert.True(t, ld.closed)
	assert.Nil(t, active.Load())

	_, err := p.Call(context.Background(), uint64(1))
	assert.Error(t, err)
	_, ok := l.Lookup("JetInit")
	assert.False(t, ok)
}

func uintptrOf(p *snprog) uintptr {
	return uintptr(unsafe.Pointer(p))
}
