//go:build windows && (amd64 || arm64)

package native

import (
	"sync"
	"syscall"

	"golang.org/x/sys/windows"

	jetruntime "github.com/wippyai/jet-runtime"
)

type dllLoader struct {
	dll *windows.DLL
}

func openLoader(path string) (loader, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, err
	}
	return &dllLoader{dll: dll}, nil
}

func (d *dllLoader) lookup(symbol string) (uintptr, error) {
	p, err := d.dll.FindProc(symbol)
	if err != nil {
		return 0, err
	}
	return p.Addr(), nil
}

func (d *dllLoader) call(addr uintptr, args ...uintptr) uintptr {
	r, _, _ := syscall.SyscallN(addr, args...)
	return r
}

func (d *dllLoader) close() error {
	return d.dll.Release()
}

var (
	trampolinesOnce sync.Once
	statusTramp     uintptr
	tableTramp      uintptr
)

// trampoline returns the process-wide entry address for kind. Windows
// callbacks are never freed, so each is made once.
func trampoline(kind jetruntime.CallbackKind) uintptr {
	trampolinesOnce.Do(func() {
		statusTramp = windows.NewCallback(onStatus)
		tableTramp = windows.NewCallback(onTable)
	})
	if kind == jetruntime.CallbackStatus {
		return statusTramp
	}
	return tableTramp
}
