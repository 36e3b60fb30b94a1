package dylib

import "unsafe"

// Library is a shared library mapped into the process.
//
// Natively compiled artifacts hand out raw code and data addresses inside
// the mapping, so a Library is never unloaded: there is no Close, and the
// mapping stays valid for the life of the process.
type Library struct {
	path   string
	handle uintptr
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// Bytes resolves sym and returns a view of n bytes of mapped data at its
// address.
func (l *Library) Bytes(sym string, n int) ([]byte, error) {
	addr, err := l.Symbol(sym)
	if err != nil {
		return nil, err
	}
	return View(addr, n), nil
}

// View returns a byte slice aliasing n bytes of process memory at addr.
// The caller guarantees the range is mapped and outlives the slice; for
// addresses resolved from a Library both hold for the process lifetime.
func View(addr uintptr, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
