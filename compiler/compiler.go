package compiler

import (
	"fmt"

	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/wasm"
)

// RelocationKind identifies how a code location is patched once its target
// address is known. Kinds are target-neutral; the object builder translates
// them into the object format's relocation records.
type RelocationKind uint8

const (
	// RelocAbs64 patches an absolute 64-bit address.
	RelocAbs64 RelocationKind = iota
	// RelocPCRel32 patches a 32-bit PC-relative displacement.
	RelocPCRel32
	// RelocBranch patches a call/branch instruction's target
	// (rel32 on x86-64, a 26-bit branch on arm64).
	RelocBranch
)

func (k RelocationKind) String() string {
	switch k {
	case RelocAbs64:
		return "abs64"
	case RelocPCRel32:
		return "pcrel32"
	case RelocBranch:
		return "branch"
	default:
		return fmt.Sprintf("reloc(%d)", uint8(k))
	}
}

// TargetKind discriminates relocation targets.
type TargetKind uint8

const (
	// TargetFunction refers to a module-defined function by local index.
	// It resolves to a symbol defined in the same object file.
	TargetFunction TargetKind = iota
	// TargetSymbol refers to an engine- or runtime-provided symbol by name
	// (imported function stubs, libcalls). It stays an external reference
	// for the linker and dynamic loader to satisfy.
	TargetSymbol
)

// RelocationTarget names what a relocation points at.
type RelocationTarget struct {
	Kind     TargetKind
	Function uint32 // local function index when Kind == TargetFunction
	Symbol   string // symbol name when Kind == TargetSymbol
}

// FunctionTarget returns a target referring to a module-defined function.
func FunctionTarget(localIndex uint32) RelocationTarget {
	return RelocationTarget{Kind: TargetFunction, Function: localIndex}
}

// SymbolTarget returns a target referring to an external symbol by name.
func SymbolTarget(name string) RelocationTarget {
	return RelocationTarget{Kind: TargetSymbol, Symbol: name}
}

// Relocation is one patch instruction recorded by the compiler against a
// function body.
type Relocation struct {
	Offset uint32 // byte offset of the patched field within the body
	Addend int64
	Kind   RelocationKind
	Target RelocationTarget
}

// CompiledFunction is the code generator's output for one function: target
// machine code plus the relocations it needs.
type CompiledFunction struct {
	Body        []byte
	Relocations []Relocation
}

// CompiledModule is the full output of compiling a module: one entry per
// module-defined function, and one call trampoline per module-defined
// function bridging the embedder calling convention to the compiled code.
type CompiledModule struct {
	Functions   []CompiledFunction
	Trampolines []CompiledFunction
}

// Compiler translates validated WebAssembly functions into target machine
// code. Implementations are external to this repository; the engine treats
// them as opaque.
type Compiler interface {
	// Name identifies the backend (for diagnostics and unsupported
	// combination reporting).
	Name() string

	// Compile produces machine code and relocations for every
	// module-defined function. Unsupported features are reported with
	// *UnsupportedError, never a panic.
	Compile(m *wasm.Module, target wasmnative.Triple) (*CompiledModule, error)

	// PositionIndependent reports whether the backend emits
	// position-independent code for the given target. Backends that do
	// not cannot produce shared-library output and are rejected before
	// any toolchain runs.
	PositionIndependent(target wasmnative.Triple) bool
}

// UnsupportedError is the typed signal for a WebAssembly feature the
// backend cannot compile.
type UnsupportedError struct {
	Backend string
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("backend %q does not support %s", e.Backend, e.Feature)
}
