//go:build !(darwin || linux || freebsd)

package dylib

import (
	"runtime"

	"github.com/wippyai/wasm-native/errors"
)

// Open fails: dynamic loading of native artifacts is not implemented for
// this operating system.
func Open(path string) (*Library, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "dynamic loading on "+runtime.GOOS)
}

// Symbol fails; a Library cannot be obtained on this operating system.
func (l *Library) Symbol(name string) (uintptr, error) {
	return 0, errors.Unsupported(errors.PhaseLoad, "dynamic loading on "+runtime.GOOS)
}
