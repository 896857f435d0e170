package native

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	jetruntime "github.com/wippyai/jet-runtime"
	"github.com/wippyai/jet-runtime/errors"
)

// loader is the platform half of a Library.
type loader interface {
	lookup(symbol string) (uintptr, error)
	call(addr uintptr, args ...uintptr) uintptr
	close() error
}

var (
	active    atomic.Pointer[Library]
	statusCur atomic.Uint64
	defragCur atomic.Uint64
)

// Library is a shared-library engine build. It implements
// jetruntime.Library.
type Library struct {
	loader     loader
	dispatcher atomic.Value
	procs      map[string]*proc
	missing    map[string]bool
	path       string
	mu         sync.Mutex
	closed     bool
}

type dispatcherBox struct {
	d jetruntime.Dispatcher
}

// Open loads the build at path.
func Open(path string) (*Library, error) {
	ld, err := openLoader(path)
	if err != nil {
		return nil, errors.Load("open "+path, err)
	}
	l := &Library{
		loader:  ld,
		procs:   make(map[string]*proc),
		missing: make(map[string]bool),
		path:    path,
	}
	if !active.CompareAndSwap(nil, l) {
		_ = ld.close()
		return nil, errors.Load("open "+path, fmt.Errorf("an engine library is already loaded in this process"))
	}
	Logger().Debug("engine library loaded", zap.String("path", path))
	return l, nil
}

// Name returns the library path.
func (l *Library) Name() string {
	return l.path
}

// Lookup resolves symbol, caching both hits and misses.
func (l *Library) Lookup(symbol string) (jetruntime.Proc, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.procs[symbol]; ok {
		return p, true
	}
	if l.closed || l.missing[symbol] {
		return nil, false
	}
	addr, err := l.loader.lookup(symbol)
	if err != nil || addr == 0 {
		l.missing[symbol] = true
		return nil, false
	}
	p := &proc{lib: l, symbol: symbol, addr: addr}
	l.procs[symbol] = p
	return p, true
}

// SetDispatcher installs the target of engine callbacks.
func (l *Library) SetDispatcher(d jetruntime.Dispatcher) {
	l.dispatcher.Store(dispatcherBox{d: d})
}

// Close unloads the library.
func (l *Library) Close(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	active.CompareAndSwap(l, nil)
	return l.loader.close()
}

func (l *Library) dispatch(handle uint64, args ...uint64) jetruntime.Status {
	box, _ := l.dispatcher.Load().(dispatcherBox)
	if box.d == nil || handle == 0 {
		return jetruntime.StatusCallbackNotRegistered
	}
	return box.d.Dispatch(context.Background(), handle, args...)
}

type proc struct {
	lib    *Library
	symbol string
	addr   uintptr
}

func (p *proc) Symbol() string {
	return p.symbol
}

// Call converts args to machine words and calls the entry point. Strings
// are copied into NUL-terminated buffers kept alive for the call; output
// cells are passed by address.
func (p *proc) Call(_ context.Context, args ...any) (jetruntime.Status, error) {
	p.lib.mu.Lock()
	closed := p.lib.closed
	p.lib.mu.Unlock()
	if closed {
		return 0, fmt.Errorf("%s: library closed", p.symbol)
	}

	var keep []any
	words := make([]uintptr, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case jetruntime.String:
			b, err := v.Encode()
			if err != nil {
				return 0, fmt.Errorf("%s: argument %d: %w", p.symbol, i, err)
			}
			keep = append(keep, b)
			words[i] = uintptr(unsafe.Pointer(&b[0]))
		case *uint64:
			if v != nil {
				keep = append(keep, v)
				words[i] = uintptr(unsafe.Pointer(v))
			}
		case jetruntime.Callback:
			words[i] = lowerCallback(v)
		default:
			w, ok := jetruntime.Uint64(arg)
			if !ok {
				return 0, fmt.Errorf("%s: argument %d: unsupported type %T", p.symbol, i, arg)
			}
			words[i] = uintptr(w)
		}
	}

	r := p.lib.loader.call(p.addr, words...)
	runtime.KeepAlive(keep)
	return jetruntime.Status(int32(uint32(r))), nil
}

// lowerCallback returns the trampoline address for cb. A zero handle means
// no callback.
func lowerCallback(cb jetruntime.Callback) uintptr {
	if cb.Handle == 0 {
		return 0
	}
	switch cb.Kind {
	case jetruntime.CallbackStatus:
		statusCur.Store(cb.Handle)
	case jetruntime.CallbackDefrag:
		defragCur.Store(cb.Handle)
	}
	return trampoline(cb.Kind)
}

// snprog mirrors the engine's progress record.
type snprog struct {
	size  uint32
	done  uint32
	total uint32
}

func onStatus(sesid, snp, snt, prog uintptr) uintptr {
	l := active.Load()
	if l == nil {
		return encode(jetruntime.StatusCallbackNotRegistered)
	}
	var percent uint64
	switch {
	case uint32(snt) == jetruntime.SntComplete:
		percent = 100
	case prog != 0:
		p := (*snprog)(unsafe.Pointer(prog))
		if p.total != 0 {
			percent = uint64(p.done) * 100 / uint64(p.total)
		}
	}
	return encode(l.dispatch(statusCur.Load(), uint64(sesid), uint64(snp), uint64(snt), percent))
}

func onTable(sesid, dbid, tableid, cbtyp, arg1, arg2, ctx, _ uintptr) uintptr {
	l := active.Load()
	if l == nil {
		return encode(jetruntime.StatusCallbackNotRegistered)
	}
	handle := uint64(ctx)
	if handle == 0 && uint32(cbtyp) == jetruntime.CbtypOnlineDefragCompleted {
		handle = defragCur.Load()
	}
	return encode(l.dispatch(handle,
		uint64(sesid), uint64(dbid), uint64(tableid), uint64(cbtyp),
		uint64(arg1), uint64(arg2), uint64(ctx)))
}

func encode(st jetruntime.Status) uintptr {
	return uintptr(int(st))
}
