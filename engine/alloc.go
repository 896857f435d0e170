package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

const (
	CabiRealloc = "cabi_realloc"
	CabiFree    = "cabi_free"

	// Names used by builds that predate cabi_realloc
	legacyRealloc = "canonical_abi_realloc"
	legacyAlloc   = "allocate"
	simpleAlloc   = "alloc"
	legacyDealloc = "deallocate"
	simpleFree    = "free"
)

// allocator reserves guest memory through the module's exported allocator.
type allocator struct {
	allocFn     api.Function
	freeFn      api.Function
	stackBuf    []uint64
	mu          sync.Mutex
	simple      bool
	simpleFree  bool
	reallocFree bool
}

func newAllocator(mod api.Module) *allocator {
	a := &allocator{stackBuf: make([]uint64, 4)}

	defs := mod.ExportedFunctionDefinitions()
	for _, name := range []string{CabiRealloc, legacyRealloc, legacyAlloc, simpleAlloc} {
		if def, ok := defs[name]; ok {
			a.allocFn = mod.ExportedFunction(name)
			a.simple = len(def.ParamTypes()) < 4
			break
		}
	}

	for _, name := range []string{CabiFree, legacyDealloc, simpleFree} {
		if def, ok := defs[name]; ok {
			a.freeFn = mod.ExportedFunction(name)
			a.simpleFree = len(def.ParamTypes()) == 1
			return a
		}
	}

	// cabi_realloc frees when asked to shrink a block to zero bytes.
	if a.allocFn != nil && !a.simple {
		a.reallocFree = true
	}
	return a
}

func (a *allocator) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, fmt.Errorf("no allocator available")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.simple {
		a.stackBuf[0] = uint64(size)
		if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:1]); err != nil {
			return 0, err
		}
		return uint32(a.stackBuf[0]), nil
	}
	a.stackBuf[0] = 0
	a.stackBuf[1] = 0
	a.stackBuf[2] = uint64(align)
	a.stackBuf[3] = uint64(size)
	if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:4]); err != nil {
		return 0, err
	}
	return uint32(a.stackBuf[0]), nil
}

func (a *allocator) Free(ctx context.Context, ptr, size, align uint32) {
	if ptr == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var err error
	switch {
	case a.freeFn != nil && a.simpleFree:
		a.stackBuf[0] = uint64(ptr)
		err = a.freeFn.CallWithStack(ctx, a.stackBuf[:1])
	case a.freeFn != nil:
		a.stackBuf[0] = uint64(ptr)
		a.stackBuf[1] = uint64(size)
		a.stackBuf[2] = uint64(align)
		err = a.freeFn.CallWithStack(ctx, a.stackBuf[:3])
	case a.reallocFree:
		a.stackBuf[0] = uint64(ptr)
		a.stackBuf[1] = uint64(size)
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = 0
		err = a.allocFn.CallWithStack(ctx, a.stackBuf[:4])
	default:
		// No free export; the block stays allocated.
		return
	}
	if err != nil {
		Logger().Warn("failed to free guest memory",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}
