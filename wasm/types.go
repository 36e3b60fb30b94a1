package wasm

// Module represents a parsed WebAssembly module
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for module-defined functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// DataCount holds the count from the DataCount section (ID 12),
	// present when bulk memory operations reference data indices.
	DataCount *uint32

	CustomSections []CustomSection
}

// FuncType represents a function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures match exactly.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i, p := range ft.Params {
		if other.Params[i] != p {
			return false
		}
	}
	for i, r := range ft.Results {
		if other.Results[i] != r {
			return false
		}
	}
	return true
}

// ValType is a WebAssembly value type
type ValType byte

// Value type encodings
const (
	I32       ValType = 0x7F
	I64       ValType = 0x7E
	F32       ValType = 0x7D
	F64       ValType = 0x7C
	V128      ValType = 0x7B
	Funcref   ValType = 0x70
	Externref ValType = 0x6F
)

// IsValid reports whether b encodes a known value type.
func (v ValType) IsValid() bool {
	switch v {
	case I32, I64, F32, F64, V128, Funcref, Externref:
		return true
	}
	return false
}

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "v128"
	case Funcref:
		return "funcref"
	case Externref:
		return "externref"
	default:
		return "valtype(0x" + hexByte(byte(v)) + ")"
	}
}

func hexByte(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0xf]})
}

// Import/export kinds
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Limits bound a table or memory size in units of elements or pages.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
	Shared bool
}

// TableType describes a table's element type and limits.
type TableType struct {
	Elem   ValType
	Limits Limits
}

// MemoryType describes a linear memory's limits.
type MemoryType struct {
	Limits Limits
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

// Global is a module-defined global with its constant initializer
// expression, stored as raw bytes including the terminating end opcode.
type Global struct {
	Type GlobalType
	Init []byte
}

// ImportDesc describes what an import binds to.
type ImportDesc struct {
	Kind    byte
	TypeIdx uint32 // KindFunc
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
}

// Import is a single import descriptor.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// Export is a single export descriptor.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Element is an active element segment: function indices copied into a
// table at instantiation.
type Element struct {
	TableIndex uint32
	Offset     []byte // constant expression, including end opcode
	Funcs      []uint32
}

// FuncBody is a module-defined function body: the raw code entry including
// local declarations and the terminating end opcode.
type FuncBody struct {
	Body []byte
}

// DataSegment initializes a region of linear memory.
type DataSegment struct {
	MemIndex uint32
	Offset   []byte // constant expression for active segments, nil when passive
	Init     []byte
	Passive  bool
}

// CustomSection preserves a custom section's name and contents.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the number of imported functions; module-defined
// functions occupy the index space after them.
func (m *Module) NumImportedFuncs() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			n++
		}
	}
	return n
}

// FuncTypeIndices returns the type index for every function in the module's
// function index space, imported functions first.
func (m *Module) FuncTypeIndices() []uint32 {
	out := make([]uint32, 0, len(m.Funcs)+int(m.NumImportedFuncs()))
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			out = append(out, imp.Desc.TypeIdx)
		}
	}
	return append(out, m.Funcs...)
}

// Binary format constants
const (
	Magic   uint32 = 0x6d736100 // "\0asm"
	Version uint32 = 0x1
)

// Section IDs
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// FuncTypeByte prefixes each entry of the type section.
const FuncTypeByte byte = 0x60

// Opcodes used when evaluating constant expressions.
const (
	OpI32Const  byte = 0x41
	OpI64Const  byte = 0x42
	OpGlobalGet byte = 0x23
	OpEnd       byte = 0x0B
)
