package wasm

import (
	"github.com/wippyai/wasm-native/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				if imp.Desc.Table != nil {
					writeTableType(sec, *imp.Desc.Table)
				}
			case KindMemory:
				if imp.Desc.Memory != nil {
					writeLimits(sec, imp.Desc.Memory.Limits)
				}
			case KindGlobal:
				if imp.Desc.Global != nil {
					writeGlobalType(sec, *imp.Desc.Global)
				}
			}
		}
		writeSection(w, SectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec.Bytes())
	}

	if len(m.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tables)))
		for _, tt := range m.Tables {
			writeTableType(sec, tt)
		}
		writeSection(w, SectionTable, sec.Bytes())
	}

	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mt := range m.Memories {
			writeLimits(sec, mt.Limits)
		}
		writeSection(w, SectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.Write(g.Init)
		}
		writeSection(w, SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Index)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec.Bytes())
	}

	if len(m.Elements) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Elements)))
		for _, elem := range m.Elements {
			if elem.TableIndex == 0 {
				sec.WriteU32(0)
			} else {
				sec.WriteU32(2)
				sec.WriteU32(elem.TableIndex)
			}
			sec.Write(elem.Offset)
			if elem.TableIndex != 0 {
				sec.Byte(0x00) // elemkind: funcref
			}
			sec.WriteU32(uint32(len(elem.Funcs)))
			for _, f := range elem.Funcs {
				sec.WriteU32(f)
			}
		}
		writeSection(w, SectionElement, sec.Bytes())
	}

	if m.DataCount != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.DataCount)
		writeSection(w, SectionDataCount, sec.Bytes())
	}

	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			sec.WriteU32(uint32(len(body.Body)))
			sec.Write(body.Body)
		}
		writeSection(w, SectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			switch {
			case seg.Passive:
				sec.WriteU32(1)
			case seg.MemIndex != 0:
				sec.WriteU32(2)
				sec.WriteU32(seg.MemIndex)
			default:
				sec.WriteU32(0)
			}
			if !seg.Passive {
				sec.Write(seg.Offset)
			}
			sec.WriteU32(uint32(len(seg.Init)))
			sec.Write(seg.Init)
		}
		writeSection(w, SectionData, sec.Bytes())
	}

	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.Write(cs.Data)
		writeSection(w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, contents []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(contents)))
	w.Write(contents)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	switch {
	case l.Shared:
		w.Byte(0x03)
	case l.HasMax:
		w.Byte(0x01)
	default:
		w.Byte(0x00)
	}
	w.WriteU32(l.Min)
	if l.HasMax {
		w.WriteU32(l.Max)
	}
}

func writeTableType(w *binary.Writer, tt TableType) {
	w.Byte(byte(tt.Elem))
	writeLimits(w, tt.Limits)
}

func writeGlobalType(w *binary.Writer, gt GlobalType) {
	w.Byte(byte(gt.Type))
	if gt.Mutable {
		w.Byte(0x01)
	} else {
		w.Byte(0x00)
	}
}

// ConstI32 builds an i32.const constant expression for offset exprs in tests
// and synthesized modules.
func ConstI32(v int32) []byte {
	w := binary.NewWriter()
	w.Byte(OpI32Const)
	w.WriteS32(v)
	w.Byte(OpEnd)
	return w.Bytes()
}

// ConstI64 builds an i64.const constant expression.
func ConstI64(v int64) []byte {
	w := binary.NewWriter()
	w.Byte(OpI64Const)
	w.WriteS64(v)
	w.Byte(OpEnd)
	return w.Bytes()
}

// EvalConstOffset evaluates a constant expression used as an active segment
// offset. Only i32.const and i64.const are supported; anything else (such as
// global.get) reports ok=false.
func EvalConstOffset(expr []byte) (uint64, bool) {
	r := binary.NewBytesReader(expr)
	op, err := r.ReadByte()
	if err != nil {
		return 0, false
	}
	var v uint64
	switch op {
	case OpI32Const:
		n, err := r.ReadS32()
		if err != nil {
			return 0, false
		}
		v = uint64(uint32(n))
	case OpI64Const:
		n, err := r.ReadS64()
		if err != nil {
			return 0, false
		}
		v = uint64(n)
	default:
		return 0, false
	}
	end, err := r.ReadByte()
	if err != nil || end != OpEnd {
		return 0, false
	}
	return v, true
}
