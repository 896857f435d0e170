//go:build !(((darwin || linux) && (amd64 || arm64)) || (windows && (amd64 || arm64)))

package native

import (
	"fmt"
	"runtime"

	jetruntime "github.com/wippyai/jet-runtime"
)

func openLoader(string) (loader, error) {
	return nil, fmt.Errorf("native engine libraries are not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
}

func trampoline(jetruntime.CallbackKind) uintptr {
	return 0
}
