//go:build (darwin || linux) && (amd64 || arm64)

package native

import (
	"sync"

	"github.com/ebitengine/purego"

	jetruntime "github.com/wippyai/jet-runtime"
)

type dlLoader struct {
	handle uintptr
}

func openLoader(path string) (loader, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &dlLoader{handle: h}, nil
}

func (d *dlLoader) lookup(symbol string) (uintptr, error) {
	return purego.Dlsym(d.handle, symbol)
}

func (d *dlLoader) call(addr uintptr, args ...uintptr) uintptr {
	r, _, _ := purego.SyscallN(addr, args...)
	return r
}

func (d *dlLoader) close() error {
	return purego.Dlclose(d.handle)
}

var (
	trampolinesOnce sync.Once
	statusTramp     uintptr
	tableTramp      uintptr
)

// trampoline returns the process-wide entry address for kind. purego can
// create only a limited number of callbacks, so each is made once.
func trampoline(kind jetruntime.CallbackKind) uintptr {
	trampolinesOnce.Do(func() {
		statusTramp = purego.NewCallback(onStatus)
		tableTramp = purego.NewCallback(onTable)
	})
	if kind == jetruntime.CallbackStatus {
		return statusTramp
	}
	return tableTramp
}
