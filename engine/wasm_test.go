package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jetruntime "github.com/wippyai/jet-runtime"
)

// Guest value types and opcodes used by the test build.
const (
	i32 = 0x7F
	i64 = 0x7E

	opLocalGet  = 0x20
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI64Load8U = 0x31
	opI64Store  = 0x37
	opI32Const  = 0x41
	opI64Const  = 0x42
	opI32Add    = 0x6A
	opI32Wrap   = 0xA7
	opCall      = 0x10
	opEnd       = 0x0B
)

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, body []byte) []byte {
	return append(append([]byte{id}, uleb(uint64(len(body)))...), body...)
}

func functype(params, results []byte) []byte {
	out := append([]byte{0x60}, uleb(uint64(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint64(len(results)))...)
	return append(out, results...)
}

func body(code ...[]byte) []byte {
	b := []byte{0x00} // no locals
	for _, c := range code {
		b = append(b, c...)
	}
	b = append(b, opEnd)
	return append(uleb(uint64(len(b))), b...)
}

func op(code byte, imm ...byte) []byte { return append([]byte{code}, imm...) }

func i64Store() []byte { return []byte{opI64Store, 3, 0} }

// testBuild assembles a build exporting:
//
//	JetGetVersion(sesid, out)                 writes raw to out
//	JetCreateInstance(out, name)              writes the first byte of name to out
//	JetRollback(sesid, grbit)                 returns StatusNotInTransaction
//	JetBackupInstance(inst, path, grbit, cb)  fires cb with words {9, 100}
//	alloc(size)                               bump allocator
func testBuild(raw uint32) []byte {
	types := vec(
		functype([]byte{i64, i32, i32}, []byte{i32}), // 0 host callback
		functype([]byte{i32}, []byte{i32}),           // 1 alloc
		functype([]byte{i64, i64}, []byte{i32}),      // 2
		functype([]byte{i64, i64, i64, i64}, []byte{i32}),
	)
	imports := vec(append(append(name(HostModule), name(HostCallback)...), 0x00, 0x00))
	funcs := vec([]byte{1}, []byte{2}, []byte{2}, []byte{2}, []byte{3})
	memory := vec([]byte{0x00, 0x01})
	globals := vec(append([]byte{i32, 0x01}, append(op(opI32Const, sleb(1024)...), opEnd)...))
	exports := vec(
		append(name("memory"), 0x02, 0x00),
		append(name("alloc"), 0x00, 0x01),
		append(name("JetGetVersion"), 0x00, 0x02),
		append(name("JetCreateInstance"), 0x00, 0x03),
		append(name("JetRollback"), 0x00, 0x04),
		append(name("JetBackupInstance"), 0x00, 0x05),
	)
	code := vec(
		body(
			op(opGlobalGet, 0), op(opGlobalGet, 0), op(opLocalGet, 0),
			op(opI32Add), op(opGlobalSet, 0),
		),
		body(
			op(opLocalGet, 1), op(opI32Wrap),
			op(opI64Const, sleb(int64(raw))...), i64Store(),
			op(opI32Const, 0),
		),
		body(
			op(opLocalGet, 0), op(opI32Wrap),
			op(opLocalGet, 1), op(opI32Wrap), op(opI64Load8U, 0, 0),
			i64Store(),
			op(opI32Const, 0),
		),
		body(op(opI32Const, sleb(int64(jetruntime.StatusNotInTransaction))...)),
		body(
			op(opI32Const, sleb(64)...), op(opI64Const, 9), i64Store(),
			op(opI32Const, sleb(72)...), op(opI64Const, sleb(100)...), i64Store(),
			op(opLocalGet, 3), op(opI32Const, sleb(64)...), op(opI32Const, 2),
			op(opCall, 0),
		),
	)

	var b bytes.Buffer
	b.Write([]byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00})
	b.Write(section(1, types))
	b.Write(section(2, imports))
	b.Write(section(3, funcs))
	b.Write(section(5, memory))
	b.Write(section(6, globals))
	b.Write(section(7, exports))
	b.Write(section(10, code))
	return b.Bytes()
}

type recorder struct {
	handle uint64
	words  []uint64
	status jetruntime.Status
}

func (r *recorder) Dispatch(_ context.Context, h uint64, args ...uint64) jetruntime.Status {
	r.handle = h
	r.words = append([]uint64(nil), args...)
	return r.status
}

func load(t *testing.T) *Library {
	t.Helper()
	ctx := context.Background()
	lib, err := Load(ctx, testBuild(0x81000000), &Config{Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close(ctx) })
	return lib
}

func call(t *testing.T, lib *Library, symbol string, args ...any) jetruntime.Status {
	t.Helper()
	p, ok := lib.Lookup(symbol)
	require.True(t, ok, symbol)
	st, err := p.Call(context.Background(), args...)
	require.NoError(t, err)
	return st
}

func TestLoad_EntryPoints(t *testing.T) {
	lib := load(t)

	assert.Equal(t, "test", lib.Name())
	assert.Equal(t, []string{"JetBackupInstance", "JetCreateInstance", "JetGetVersion", "JetRollback"}, lib.Symbols())
	_, ok := lib.Lookup("alloc")
	assert.False(t, ok)
	_, ok = lib.Lookup("JetInit")
	assert.False(t, ok)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(context.Background(), []byte("not wasm"), nil)
	require.Error(t, err)
}

func TestCall_OutputCell(t *testing.T) {
	lib := load(t)

	var raw uint64
	assert.Zero(t, call(t, lib, "JetGetVersion", uint64(0), &raw))
	assert.Equal(t, uint64(0x81000000), raw)
}

func TestCall_Strings(t *testing.T) {
	lib := load(t)

	tests := []struct {
		name string
		in   jetruntime.String
	}{
		{"narrow", jetruntime.String{Value: "q"}},
		{"wide", jetruntime.String{Value: "q", Wide: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out uint64
			assert.Zero(t, call(t, lib, "JetCreateInstance", &out, tt.in))
			assert.Equal(t, uint64('q'), out)
		})
	}
}

func TestCall_NegativeStatus(t *testing.T) {
	lib := load(t)
	assert.Equal(t, jetruntime.StatusNotInTransaction, call(t, lib, "JetRollback", uint64(1), uint32(0)))
}

func TestCall_ArgumentErrors(t *testing.T) {
	lib := load(t)
	p, _ := lib.Lookup("JetRollback")

	_, err := p.Call(context.Background(), uint64(1))
	assert.Error(t, err)

	_, err = p.Call(context.Background(), uint64(1), 3.5)
	assert.Error(t, err)
}

func TestCall_Callback(t *testing.T) {
	lib := load(t)

	assert.Equal(t, jetruntime.StatusCallbackNotRegistered,
		call(t, lib, "JetBackupInstance", uint64(1), jetruntime.String{Value: "b"}, uint32(0),
			jetruntime.Callback{Handle: 5, Kind: jetruntime.CallbackStatus}))

	r := &recorder{status: jetruntime.StatusCallbackFailed}
	lib.SetDispatcher(r)
	st := call(t, lib, "JetBackupInstance", uint64(1), jetruntime.String{Value: "b"}, uint32(0),
		jetruntime.Callback{Handle: 0x100000003, Kind: jetruntime.CallbackStatus})

	assert.Equal(t, jetruntime.StatusCallbackFailed, st)
	assert.Equal(t, uint64(0x100000003), r.handle)
	assert.Equal(t, []uint64{uint64(jetruntime.SnpBackup), 100}, r.words)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	lib, err := Load(ctx, testBuild(0), nil)
	require.NoError(t, err)
	p, _ := lib.Lookup("JetRollback")

	require.NoError(t, lib.Close(ctx))
	require.NoError(t, lib.Close(ctx))
	_, err = p.Call(ctx, uint64(1), uint32(0))
	assert.Error(t, err)
}
