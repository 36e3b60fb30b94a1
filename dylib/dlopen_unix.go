//go:build darwin || linux || freebsd

package dylib

import (
	"github.com/ebitengine/purego"

	"github.com/wippyai/wasm-native/errors"
)

// Open maps the shared library at path into the process with immediate
// binding and local symbol visibility.
func Open(path string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, errors.LoadFailed(path, err)
	}
	return &Library{path: path, handle: handle}, nil
}

// Symbol resolves the address of an exported symbol.
func (l *Library) Symbol(name string) (uintptr, error) {
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil || addr == 0 {
		return 0, errors.SymbolMissing(name)
	}
	return addr, nil
}
