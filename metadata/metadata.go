package metadata

import (
	"github.com/wippyai/wasm-native/wasm"
)

// Blob format constants. The metadata blob is the engine's only stable wire
// format: it is embedded in produced shared libraries and read back directly
// out of mapped memory, so its layout is fixed little-endian with naturally
// aligned integer fields.
const (
	// Magic is the format tag, "WNMD" read as a little-endian u32.
	Magic uint32 = 0x444D4E57
	// FormatVersion is bumped on any incompatible layout change.
	FormatVersion uint16 = 1
	// HeaderSize is the fixed byte length of the blob header.
	HeaderSize = 16
)

// Module is the decoded module-level structural metadata. It is immutable
// once produced; after a zero-copy decode its slices and strings reference
// the encoded blob in place, so the blob (and the library mapping backing
// it) must outlive the Module.
type Module struct {
	NumImportedFuncs uint32
	Types            []FuncType
	Imports          []Import
	Exports          []Export
	Memories         []MemoryPlan
	Tables           []TablePlan

	// FuncTypeIndices holds the type index of every function in the
	// module's function index space, imported functions first.
	FuncTypeIndices []uint32

	// BodyLengths holds the machine code length of every module-defined
	// function, in the same order as their symbols.
	BodyLengths []uint32

	Data     []DataInitializer
	Elements []ElementInitializer
}

// NumLocalFuncs returns the number of module-defined functions.
func (m *Module) NumLocalFuncs() uint32 {
	return uint32(len(m.FuncTypeIndices)) - m.NumImportedFuncs
}

// FuncType is a function signature.
type FuncType struct {
	Params  []wasm.ValType
	Results []wasm.ValType
}

// Import describes one imported definition.
type Import struct {
	Module string
	Name   string
	Kind   byte
	Index  uint32
}

// Export describes one exported definition.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// MemoryPlan is a linear memory's limits as planned at compile time.
type MemoryPlan struct {
	Min    uint32
	Max    uint32
	HasMax bool
	Shared bool
}

// TablePlan is a table's element type and limits.
type TablePlan struct {
	Elem   wasm.ValType
	Min    uint32
	Max    uint32
	HasMax bool
}

// DataInitializer is an active data segment: bytes copied into linear
// memory at instantiation.
type DataInitializer struct {
	MemoryIndex uint32
	Offset      uint64
	Bytes       []byte
}

// ElementInitializer is an active element segment: function indices copied
// into a table at instantiation.
type ElementInitializer struct {
	TableIndex uint32
	Offset     uint32
	Funcs      []uint32
}

// FromModule derives metadata from a validated module and its compiled
// function body lengths. Active segment offsets must be plain integer
// constant expressions; anything else is the caller's to reject first.
func FromModule(m *wasm.Module, bodyLengths []uint32) (*Module, error) {
	out := &Module{
		NumImportedFuncs: m.NumImportedFuncs(),
		FuncTypeIndices:  m.FuncTypeIndices(),
		BodyLengths:      bodyLengths,
	}

	for _, ft := range m.Types {
		out.Types = append(out.Types, FuncType{Params: ft.Params, Results: ft.Results})
	}

	for _, imp := range m.Imports {
		e := Import{Module: imp.Module, Name: imp.Name, Kind: imp.Desc.Kind}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			e.Index = imp.Desc.TypeIdx
		case wasm.KindMemory:
			out.Memories = append(out.Memories, planFromLimits(imp.Desc.Memory.Limits))
			e.Index = uint32(len(out.Memories) - 1)
		case wasm.KindTable:
			out.Tables = append(out.Tables, tablePlan(*imp.Desc.Table))
			e.Index = uint32(len(out.Tables) - 1)
		}
		out.Imports = append(out.Imports, e)
	}

	for _, exp := range m.Exports {
		out.Exports = append(out.Exports, Export{Name: exp.Name, Kind: exp.Kind, Index: exp.Index})
	}
	for _, mt := range m.Memories {
		out.Memories = append(out.Memories, planFromLimits(mt.Limits))
	}
	for _, tt := range m.Tables {
		out.Tables = append(out.Tables, tablePlan(tt))
	}

	for _, seg := range m.Data {
		if seg.Passive {
			continue
		}
		off, ok := wasm.EvalConstOffset(seg.Offset)
		if !ok {
			return nil, errNonConstOffset("data")
		}
		out.Data = append(out.Data, DataInitializer{
			MemoryIndex: seg.MemIndex,
			Offset:      off,
			Bytes:       seg.Init,
		})
	}

	for _, elem := range m.Elements {
		off, ok := wasm.EvalConstOffset(elem.Offset)
		if !ok {
			return nil, errNonConstOffset("element")
		}
		out.Elements = append(out.Elements, ElementInitializer{
			TableIndex: elem.TableIndex,
			Offset:     uint32(off),
			Funcs:      elem.Funcs,
		})
	}

	return out, nil
}

func planFromLimits(l wasm.Limits) MemoryPlan {
	return MemoryPlan{Min: l.Min, Max: l.Max, HasMax: l.HasMax, Shared: l.Shared}
}

func tablePlan(tt wasm.TableType) TablePlan {
	return TablePlan{Elem: tt.Elem, Min: tt.Limits.Min, Max: tt.Limits.Max, HasMax: tt.Limits.HasMax}
}
