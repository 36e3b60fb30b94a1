package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasm-native/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule parses a WebAssembly binary module
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewBytesReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}

	// Track section ordering using canonical order, not raw section IDs.
	var lastSectionOrder int

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			order := sectionOrder(sectionID)
			if order < 0 {
				return nil, fmt.Errorf("unknown section id %d", sectionID)
			}
			if order <= lastSectionOrder {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSectionOrder = order
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		sr := binary.NewBytesReader(sectionData)

		switch sectionID {
		case SectionCustom:
			err = parseCustomSection(sr, sectionData, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, sectionData, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			err = parseElementSection(sr, sectionData, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			err = parseDataSection(sr, sectionData, m)
		case SectionDataCount:
			err = parseDataCountSection(sr, m)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", sectionID, err)
		}
	}

	return m, nil
}

// ParseModuleValidate parses and then validates the module.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// WASM spec section order: Type(1), Import(2), Function(3), Table(4),
// Memory(5), Global(6), Export(7), Start(8), Element(9), DataCount(12),
// Code(10), Data(11).
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionGlobal:
		return 6
	case SectionExport:
		return 7
	case SectionStart:
		return 8
	case SectionElement:
		return 9
	case SectionDataCount:
		return 10
	case SectionCode:
		return 11
	case SectionData:
		return 12
	default:
		return -1
	}
}

func parseCustomSection(r *binary.Reader, data []byte, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: data[r.Position():],
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: unsupported type form 0x%02x", i, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return fmt.Errorf("type %d params: %w", i, err)
		}
		results, err := readValTypes(r)
		if err != nil {
			return fmt.Errorf("type %d results: %w", i, err)
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	types := make([]ValType, 0, count)
	for i := uint32(0); i < count; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		v := ValType(b)
		if !v.IsValid() {
			return nil, fmt.Errorf("invalid value type 0x%02x", b)
		}
		types = append(types, v)
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("import %d module: %w", i, err)
		}
		name, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("import %d name: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
		case KindTable:
			var tt TableType
			tt, err = readTableType(r)
			imp.Desc.Table = &tt
		case KindMemory:
			var l Limits
			l, err = readLimits(r)
			imp.Desc.Memory = &MemoryType{Limits: l}
		case KindGlobal:
			var gt GlobalType
			gt, err = readGlobalType(r)
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("import %d: unknown kind 0x%02x", i, kind)
		}
		if err != nil {
			return fmt.Errorf("import %d: %w", i, err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	var l Limits
	switch flags {
	case 0x00:
	case 0x01:
		l.HasMax = true
	case 0x03:
		l.HasMax = true
		l.Shared = true
	default:
		return Limits{}, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	l.Min, err = r.ReadU32()
	if err != nil {
		return Limits{}, err
	}
	if l.HasMax {
		l.Max, err = r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
	}
	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	elem := ValType(b)
	if elem != Funcref && elem != Externref {
		return TableType{}, fmt.Errorf("invalid table element type 0x%02x", b)
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{Elem: elem, Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	v := ValType(b)
	if !v.IsValid() {
		return GlobalType{}, fmt.Errorf("invalid global value type 0x%02x", b)
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid mutability flag 0x%02x", mut)
	}
	return GlobalType{Type: v, Mutable: mut == 1}, nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tt, err := readTableType(r)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		l, err := readLimits(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		m.Memories = append(m.Memories, MemoryType{Limits: l})
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, data []byte, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		init, err := readConstExpr(r, data)
		if err != nil {
			return fmt.Errorf("global %d init: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

// readConstExpr parses a constant expression and returns its raw bytes
// including the terminating end opcode.
func readConstExpr(r *binary.Reader, data []byte) ([]byte, error) {
	start := r.Position()
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case OpEnd:
			return data[start:r.Position()], nil
		case OpI32Const:
			_, err = r.ReadS32()
		case OpI64Const:
			_, err = r.ReadS64()
		case 0x43: // f32.const
			_, err = r.ReadBytes(4)
		case 0x44: // f64.const
			_, err = r.ReadBytes(8)
		case OpGlobalGet:
			_, err = r.ReadU32()
		case 0xD0: // ref.null
			_, err = r.ReadByte()
		case 0xD2: // ref.func
			_, err = r.ReadU32()
		default:
			return nil, fmt.Errorf("opcode 0x%02x not allowed in constant expression", op)
		}
		if err != nil {
			return nil, err
		}
	}
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return fmt.Errorf("export %d: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindGlobal {
			return fmt.Errorf("export %d: unknown kind 0x%02x", i, kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, data []byte, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		// Only active funcref segments with implicit table 0 (flag 0) or an
		// explicit table index (flag 2) are supported.
		elem := Element{}
		switch flags {
		case 0:
		case 2:
			elem.TableIndex, err = r.ReadU32()
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("element %d: unsupported segment flags %d", i, flags)
		}
		elem.Offset, err = readConstExpr(r, data)
		if err != nil {
			return fmt.Errorf("element %d offset: %w", i, err)
		}
		if flags == 2 {
			kind, err := r.ReadByte()
			if err != nil {
				return err
			}
			if kind != 0x00 {
				return fmt.Errorf("element %d: unsupported elemkind 0x%02x", i, kind)
			}
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		elem.Funcs = make([]uint32, 0, n)
		for j := uint32(0); j < n; j++ {
			f, err := r.ReadU32()
			if err != nil {
				return err
			}
			elem.Funcs = append(elem.Funcs, f)
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("code %d: %w", i, err)
		}
		m.Code = append(m.Code, FuncBody{Body: body})
	}
	return nil
}

func parseDataSection(r *binary.Reader, data []byte, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.ReadU32()
		if err != nil {
			return err
		}
		seg := DataSegment{}
		switch flags {
		case 0: // active, memory 0
		case 1: // passive
			seg.Passive = true
		case 2: // active with explicit memory index
			seg.MemIndex, err = r.ReadU32()
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("data %d: unsupported segment flags %d", i, flags)
		}
		if !seg.Passive {
			seg.Offset, err = readConstExpr(r, data)
			if err != nil {
				return fmt.Errorf("data %d offset: %w", i, err)
			}
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		seg.Init, err = r.ReadBytes(int(n))
		if err != nil {
			return fmt.Errorf("data %d: %w", i, err)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func parseDataCountSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.DataCount = &count
	return nil
}
