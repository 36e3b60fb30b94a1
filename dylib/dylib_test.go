//go:build darwin || linux || freebsd

package dylib

import (
	stderrors "errors"
	"os"
	"testing"
	"unsafe"

	"github.com/wippyai/wasm-native/errors"
)

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// systemLibrary returns a shared library expected on the host, skipping
// the test when none is found.
func systemLibrary(t *testing.T) string {
	t.Helper()
	candidates := []string{
		"/lib/x86_64-linux-gnu/libc.so.6",
		"/lib/aarch64-linux-gnu/libc.so.6",
		"/usr/lib/libc.so.6",
		"/lib/libc.so.6",
		"/usr/lib/libSystem.B.dylib",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("no known system library on this host")
	return ""
}

func TestOpenAndResolve(t *testing.T) {
	lib, err := Open(systemLibrary(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	addr, err := lib.Symbol("malloc")
	if err != nil {
		t.Fatalf("Symbol(malloc): %v", err)
	}
	if addr == 0 {
		t.Error("resolved address is zero")
	}
}

func TestSymbolMissing(t *testing.T) {
	lib, err := Open(systemLibrary(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_, err = lib.Symbol("wn_no_such_symbol")
	if err == nil {
		t.Fatal("expected error for missing symbol")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindSymbolMissing {
		t.Errorf("got %v, want symbol_missing", err)
	}
	if e.Symbol != "wn_no_such_symbol" {
		t.Errorf("Symbol = %q", e.Symbol)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/nonexistent/lib.so")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseLoad {
		t.Errorf("got %v, want load phase error", err)
	}
}

func TestView(t *testing.T) {
	buf := []byte{10, 20, 30, 40}
	view := View(addrOf(buf), len(buf))
	if len(view) != 4 || view[0] != 10 || view[3] != 40 {
		t.Errorf("view = %v", view)
	}
	view[1] = 99
	if buf[1] != 99 {
		t.Error("view does not alias the underlying memory")
	}
	if View(0, 0) != nil {
		t.Error("zero-length view should be nil")
	}
}
