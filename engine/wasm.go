package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/errors"
)

const (
	HostModule   = "jet_host"
	HostCallback = "callback"
)

// Config holds configuration for loading a build.
type Config struct {
	// Name identifies the build in diagnostics. Defaults to "wasm".
	Name string

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// Library is a WebAssembly engine build instantiated in its own wazero
// runtime. It implements jetruntime.Library.
type Library struct {
	runtime    wazero.Runtime
	module     api.Module
	memory     api.Memory
	alloc      *allocator
	dispatcher jetruntime.Dispatcher
	procs      map[string]*proc
	name       string
	mu         sync.Mutex
	dmu        sync.RWMutex
	closed     bool
}

// reentry marks a context that is already inside a guest call of lib.
type reentry struct{}

// LoadFile reads and loads the build at path.
func LoadFile(ctx context.Context, path string, cfg *Config) (*Library, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read "+path, err)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Name == "" {
		c := *cfg
		c.Name = path
		cfg = &c
	}
	return Load(ctx, b, cfg)
}

// Load compiles and instantiates wasmBytes. The module may import only the
// jet_host callback function.
func Load(ctx context.Context, wasmBytes []byte, cfg *Config) (*Library, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	name := "wasm"
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.Name != "" {
			name = cfg.Name
		}
	}

	l := &Library{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		procs:   make(map[string]*proc),
		name:    name,
	}

	_, err := l.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(l.hostCallback),
			[]api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32},
			[]api.ValueType{api.ValueTypeI32}).
		Export(HostCallback).
		Instantiate(ctx)
	if err != nil {
		_ = l.runtime.Close(ctx)
		return nil, errors.Load("instantiate host module", err)
	}

	compiled, err := l.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = l.runtime.Close(ctx)
		return nil, errors.Load("compile "+name, err)
	}

	mod, err := l.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = l.runtime.Close(ctx)
		return nil, errors.Load("instantiate "+name, err)
	}
	l.module = mod
	l.memory = mod.Memory()
	l.alloc = newAllocator(mod)

	for symbol, def := range compiled.ExportedFunctions() {
		if !entryPoint(symbol, def) {
			continue
		}
		l.procs[symbol] = &proc{lib: l, symbol: symbol, params: def.ParamTypes(), fn: mod.ExportedFunction(symbol)}
	}

	Logger().Debug("engine build loaded",
		zap.String("name", name),
		zap.Int("entry_points", len(l.procs)),
		zap.Bool("memory", l.memory != nil),
		zap.Bool("allocator", l.alloc.allocFn != nil))
	return l, nil
}

// entryPoint reports whether the export symbol has the shape of an engine entry point.
func entryPoint(symbol string, def api.FunctionDefinition) bool {
	switch symbol {
	case CabiRealloc, CabiFree, legacyRealloc, legacyAlloc, simpleAlloc, legacyDealloc, simpleFree:
		return false
	}
	results := def.ResultTypes()
	if len(results) != 1 || results[0] != api.ValueTypeI32 {
		return false
	}
	for _, t := range def.ParamTypes() {
		if t != api.ValueTypeI32 && t != api.ValueTypeI64 {
			return false
		}
	}
	return true
}

// Name returns the build name.
func (l *Library) Name() string {
	return l.name
}

// Lookup resolves an exported entry point.
func (l *Library) Lookup(symbol string) (jetruntime.Proc, bool) {
	p, ok := l.procs[symbol]
	if !ok {
		return nil, false
	}
	return p, true
}

// Symbols lists the exported entry points.
func (l *Library) Symbols() []string {
	out := make([]string, 0, len(l.procs))
	for s := range l.procs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SetDispatcher installs the target of guest callbacks.
func (l *Library) SetDispatcher(d jetruntime.Dispatcher) {
	l.dmu.Lock()
	l.dispatcher = d
	l.dmu.Unlock()
}

// Close releases the module and its runtime.
func (l *Library) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.runtime.Close(ctx)
}

// hostCallback implements jet_host.callback.
func (l *Library) hostCallback(ctx context.Context, mod api.Module, stack []uint64) {
	handle := stack[0]
	argv := api.DecodeU32(stack[1])
	argc := api.DecodeU32(stack[2])

	words := make([]uint64, argc)
	for i := range words {
		w, ok := mod.Memory().ReadUint64Le(argv + uint32(i)*8)
		if !ok {
			Logger().Warn("callback arguments out of guest memory",
				zap.Uint64("handle", handle), zap.Uint32("argv", argv), zap.Uint32("argc", argc))
			stack[0] = api.EncodeI32(int32(jetruntime.StatusInvalidParameter))
			return
		}
		words[i] = w
	}

	l.dmu.RLock()
	d := l.dispatcher
	l.dmu.RUnlock()

	st := jetruntime.StatusCallbackNotRegistered
	if d != nil {
		st = d.Dispatch(ctx, handle, words...)
	}
	stack[0] = api.EncodeI32(int32(st))
}

type proc struct {
	lib    *Library
	fn     api.Function
	symbol string
	params []api.ValueType
}

func (p *proc) Symbol() string {
	return p.symbol
}

// Call marshals args into guest values, runs the export and copies output
// cells back.
func (p *proc) Call(ctx context.Context, args ...any) (jetruntime.Status, error) {
	l := p.lib
	if len(args) != len(p.params) {
		return 0, fmt.Errorf("%s: want %d arguments, got %d", p.symbol, len(p.params), len(args))
	}

	fn := p.fn
	if ctx.Value(reentry{}) == l {
		// Nested call from a callback: the outer call holds the lock and
		// owns p.fn's call stack.
		fn = l.module.ExportedFunction(p.symbol)
	} else {
		l.mu.Lock()
		defer l.mu.Unlock()
		ctx = context.WithValue(ctx, reentry{}, l)
	}
	if l.closed {
		return 0, fmt.Errorf("%s: library closed", p.symbol)
	}

	f := frame{lib: l}
	defer f.release(ctx)

	stack := make([]uint64, max(len(args), 1))
	for i, arg := range args {
		v, err := f.lower(ctx, arg)
		if err != nil {
			return 0, fmt.Errorf("%s: argument %d: %w", p.symbol, i, err)
		}
		if p.params[i] == api.ValueTypeI32 {
			v = uint64(uint32(v))
		}
		stack[i] = v
	}

	if err := fn.CallWithStack(ctx, stack); err != nil {
		return 0, fmt.Errorf("%s: %w", p.symbol, err)
	}
	st := jetruntime.Status(api.DecodeI32(stack[0]))

	if err := f.lift(); err != nil {
		return 0, fmt.Errorf("%s: %w", p.symbol, err)
	}
	return st, nil
}

// block is one guest allocation made for a call.
type block struct {
	out   *uint64
	ptr   uint32
	size  uint32
	align uint32
}

// frame tracks the guest memory of one call.
type frame struct {
	lib    *Library
	blocks []block
}

func (f *frame) lower(ctx context.Context, arg any) (uint64, error) {
	switch v := arg.(type) {
	case jetruntime.String:
		b, err := v.Encode()
		if err != nil {
			return 0, err
		}
		ptr, err := f.reserve(ctx, uint32(len(b)), 2)
		if err != nil {
			return 0, err
		}
		if !f.lib.memory.Write(ptr, b) {
			return 0, fmt.Errorf("string of %d bytes out of guest memory", len(b))
		}
		return uint64(ptr), nil
	case jetruntime.Callback:
		return v.Handle, nil
	case *uint64:
		if v == nil {
			return 0, nil
		}
		ptr, err := f.reserve(ctx, 8, 8)
		if err != nil {
			return 0, err
		}
		if !f.lib.memory.WriteUint64Le(ptr, *v) {
			return 0, fmt.Errorf("output cell out of guest memory")
		}
		f.blocks[len(f.blocks)-1].out = v
		return uint64(ptr), nil
	default:
		w, ok := jetruntime.Uint64(arg)
		if !ok {
			return 0, fmt.Errorf("unsupported type %T", arg)
		}
		return w, nil
	}
}

func (f *frame) reserve(ctx context.Context, size, align uint32) (uint32, error) {
	if f.lib.memory == nil {
		return 0, fmt.Errorf("build exports no memory")
	}
	ptr, err := f.lib.alloc.Alloc(ctx, size, align)
	if err != nil {
		return 0, err
	}
	f.blocks = append(f.blocks, block{ptr: ptr, size: size, align: align})
	return ptr, nil
}

func (f *frame) lift() error {
	for _, b := range f.blocks {
		if b.out == nil {
			continue
		}
		v, ok := f.lib.memory.ReadUint64Le(b.ptr)
		if !ok {
			return fmt.Errorf("output cell %#x out of guest memory", b.ptr)
		}
		*b.out = v
	}
	return nil
}

func (f *frame) release(ctx context.Context) {
	for i := len(f.blocks) - 1; i >= 0; i-- {
		b := f.blocks[i]
		f.lib.alloc.Free(ctx, b.ptr, b.size, b.align)
	}
}
