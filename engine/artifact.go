package engine

import (
	"os"

	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/dylib"
	"github.com/wippyai/wasm-native/errors"
	"github.com/wippyai/wasm-native/metadata"
	"github.com/wippyai/wasm-native/objfile"
	"github.com/wippyai/wasm-native/wasm"
)

// Artifact is a loaded native build of a WebAssembly module: resolved code
// addresses for every module-defined function and its trampoline, plus the
// module metadata decoded in place from the library's data section.
//
// All symbol resolution happens at load time. A missing symbol is a
// builder/linker defect and fails the load; afterwards address lookups
// cannot fail.
type Artifact struct {
	target wasmnative.Triple
	lib    *dylib.Library
	meta   *metadata.Module

	funcAddrs  []uintptr
	trampAddrs []uintptr

	// libBytes holds the serialized library when the artifact was built
	// in-process; nil when it was loaded from a caller-provided file.
	libBytes []byte
}

// loadArtifact maps the library and resolves every expected symbol.
// expectFuncs >= 0 cross-checks the metadata's function count against the
// build that produced the library.
func loadArtifact(path string, target wasmnative.Triple, expectFuncs int) (*Artifact, error) {
	lib, err := dylib.Open(path)
	if err != nil {
		return nil, err
	}

	metaAddr, err := lib.Symbol(objfile.MetadataSymbol)
	if err != nil {
		return nil, err
	}
	meta, err := metadata.DecodeMapped(metaAddr)
	if err != nil {
		return nil, err
	}

	numLocal := int(meta.NumLocalFuncs())
	if expectFuncs >= 0 && numLocal != expectFuncs {
		return nil, errors.Internal(errors.PhaseLoad,
			"metadata describes %d functions, build produced %d", numLocal, expectFuncs)
	}

	a := &Artifact{
		target:     target,
		lib:        lib,
		meta:       meta,
		funcAddrs:  make([]uintptr, numLocal),
		trampAddrs: make([]uintptr, numLocal),
	}
	for i := 0; i < numLocal; i++ {
		if a.funcAddrs[i], err = lib.Symbol(objfile.FunctionSymbol(uint32(i))); err != nil {
			return nil, err
		}
		if a.trampAddrs[i], err = lib.Symbol(objfile.TrampolineSymbol(uint32(i))); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Metadata returns the module description carried by the library. The
// returned value aliases the library mapping and must not be modified.
func (a *Artifact) Metadata() *metadata.Module {
	return a.meta
}

// Target returns the triple the artifact was built for.
func (a *Artifact) Target() wasmnative.Triple {
	return a.target
}

// LibraryPath returns the file the artifact's library was loaded from.
func (a *Artifact) LibraryPath() string {
	return a.lib.Path()
}

// FunctionCount returns the number of module-defined functions.
func (a *Artifact) FunctionCount() int {
	return len(a.funcAddrs)
}

// Function returns a handle for the module-defined function with the
// given local index.
func (a *Artifact) Function(index uint32) (Function, error) {
	if int(index) >= len(a.funcAddrs) {
		return Function{}, errors.Internal(errors.PhaseLoad,
			"function index %d out of range (%d defined)", index, len(a.funcAddrs))
	}
	return Function{artifact: a, index: index}, nil
}

// ExportedFunction looks up a module-defined function by export name.
func (a *Artifact) ExportedFunction(name string) (Function, bool) {
	for _, exp := range a.meta.Exports {
		if exp.Name != name || exp.Kind != wasm.KindFunc {
			continue
		}
		if exp.Index < a.meta.NumImportedFuncs {
			// Re-exported import; it has no code in this library.
			return Function{}, false
		}
		fn, err := a.Function(exp.Index - a.meta.NumImportedFuncs)
		return fn, err == nil
	}
	return Function{}, false
}

// Serialize returns the artifact's shared library as bytes, suitable for
// writing to disk and loading later with LoadLibrary.
func (a *Artifact) Serialize() ([]byte, error) {
	if a.libBytes != nil {
		out := make([]byte, len(a.libBytes))
		copy(out, a.libBytes)
		return out, nil
	}
	b, err := os.ReadFile(a.lib.Path())
	if err != nil {
		return nil, errors.ObjectIO("read artifact library", err)
	}
	return b, nil
}

// Function is a handle to one module-defined function inside a loaded
// artifact. It stays valid as long as the process lives; the backing
// library is never unloaded.
type Function struct {
	artifact *Artifact
	index    uint32
}

// Index returns the function's local index.
func (f Function) Index() uint32 {
	return f.index
}

// Addr returns the address of the function's compiled body.
func (f Function) Addr() uintptr {
	return f.artifact.funcAddrs[f.index]
}

// TrampolineAddr returns the address of the function's call trampoline.
func (f Function) TrampolineAddr() uintptr {
	return f.artifact.trampAddrs[f.index]
}

// Type returns the function's signature.
func (f Function) Type() metadata.FuncType {
	meta := f.artifact.meta
	typeIdx := meta.FuncTypeIndices[meta.NumImportedFuncs+f.index]
	return meta.Types[typeIdx]
}

// CodeLength returns the byte length of the function's compiled body.
func (f Function) CodeLength() uint32 {
	return f.artifact.meta.BodyLengths[f.index]
}

// Code returns a read-only view of the function's machine code in the
// loaded library.
func (f Function) Code() []byte {
	return dylib.View(f.Addr(), int(f.CodeLength()))
}
