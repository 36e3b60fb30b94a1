package objfile

import (
	"fmt"
	"io"

	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/compiler"
	"github.com/wippyai/wasm-native/errors"
)

// Symbol naming scheme shared by the object builder and the artifact
// loader. Renaming any of these breaks every previously produced library.
const (
	// MetadataSymbol names the data symbol carrying the serialized module
	// metadata blob.
	MetadataSymbol = "wn_metadata"

	functionSymbolPrefix   = "wn_function_"
	trampolineSymbolPrefix = "wn_trampoline_"
)

// FunctionSymbol returns the symbol name of a module-defined function,
// indexed within the module-defined (local) function space.
func FunctionSymbol(index uint32) string {
	return fmt.Sprintf("%s%d", functionSymbolPrefix, index)
}

// TrampolineSymbol returns the symbol name of a function's call trampoline.
func TrampolineSymbol(index uint32) string {
	return fmt.Sprintf("%s%d", trampolineSymbolPrefix, index)
}

// funcAlign keeps every function body on its own 16-byte boundary in the
// text section.
const funcAlign = 16

type textSymbol struct {
	name   string
	offset uint32 // assigned at layout time
	code   []byte
	relocs []compiler.Relocation
}

// Builder assembles one relocatable native object file from compiled
// function bodies and a metadata blob. It is single-use and not safe for
// concurrent mutation; the engine drives one Builder per build.
type Builder struct {
	target  wasmnative.Triple
	format  wasmnative.Format
	syms    []textSymbol
	funcIdx map[uint32]int // local function index -> syms index
	meta    []byte
}

// New returns a builder producing an object file for target. Targets whose
// native container this engine cannot emit (COFF) are rejected here, before
// any compilation output is accepted.
func New(target wasmnative.Triple) (*Builder, error) {
	format := target.BinaryFormat()
	if format == wasmnative.COFF {
		return nil, errors.Unsupported(errors.PhaseObject, "COFF object emission for "+target.String())
	}
	if target.Arch != wasmnative.AMD64 && target.Arch != wasmnative.ARM64 {
		return nil, errors.Unsupported(errors.PhaseObject, "architecture "+string(target.Arch))
	}
	return &Builder{
		target:  target,
		format:  format,
		funcIdx: make(map[uint32]int),
	}, nil
}

// Target returns the triple this builder emits for.
func (b *Builder) Target() wasmnative.Triple {
	return b.target
}

// AddFunction adds the compiled body of the module-defined function with
// the given local index. Function relocation targets recorded anywhere in
// the object resolve against symbols added here.
func (b *Builder) AddFunction(index uint32, fn compiler.CompiledFunction) {
	b.funcIdx[index] = len(b.syms)
	b.syms = append(b.syms, textSymbol{
		name:   FunctionSymbol(index),
		code:   fn.Body,
		relocs: fn.Relocations,
	})
}

// AddTrampoline adds the call trampoline for the function with the given
// local index.
func (b *Builder) AddTrampoline(index uint32, fn compiler.CompiledFunction) {
	b.syms = append(b.syms, textSymbol{
		name:   TrampolineSymbol(index),
		code:   fn.Body,
		relocs: fn.Relocations,
	})
}

// SetMetadata sets the serialized metadata blob emitted into the data
// section under MetadataSymbol.
func (b *Builder) SetMetadata(blob []byte) {
	b.meta = blob
}

// Bytes lays out the object and serializes it in the target's container
// format. Output is deterministic for identical input.
func (b *Builder) Bytes() ([]byte, error) {
	var off uint32
	for i := range b.syms {
		off = alignUp(off, funcAlign)
		b.syms[i].offset = off
		off += uint32(len(b.syms[i].code))
	}

	switch b.format {
	case wasmnative.ELF:
		return b.writeELF()
	case wasmnative.MachO:
		return b.writeMachO()
	default:
		return nil, errors.Unsupported(errors.PhaseObject, b.format.String()+" object emission")
	}
}

// Write serializes the object and writes it to w.
func (b *Builder) Write(w io.Writer) error {
	out, err := b.Bytes()
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return errors.ObjectIO("write object file", err)
	}
	return nil
}

// text concatenates all function bodies with their alignment padding.
func (b *Builder) text() []byte {
	var size uint32
	if n := len(b.syms); n > 0 {
		last := &b.syms[n-1]
		size = last.offset + uint32(len(last.code))
	}
	buf := make([]byte, size)
	for i := range b.syms {
		copy(buf[b.syms[i].offset:], b.syms[i].code)
	}
	return buf
}

// resolveFunc maps a function relocation target to its text symbol,
// failing on references to functions never added.
func (b *Builder) resolveFunc(index uint32) (int, error) {
	i, ok := b.funcIdx[index]
	if !ok {
		return 0, errors.Internal(errors.PhaseObject, "relocation against unknown function %d", index)
	}
	return i, nil
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}
