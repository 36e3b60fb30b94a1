package objfile

import (
	"encoding/binary"

	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/compiler"
	"github.com/wippyai/wasm-native/errors"
)

// Mach-O constants used by the writer.
const (
	machoMagic64 = 0xFEEDFACF

	machoCPUX86_64 = 0x01000007
	machoCPUARM64  = 0x0100000C

	machoSubtypeX86_64All = 3
	machoSubtypeARM64All  = 0

	machoObject = 1 // MH_OBJECT

	machoFlagSubsectionsViaSymbols = 0x2000

	lcSegment64 = 0x19
	lcSymtab    = 0x2

	machoHeaderSize  = 32
	segment64Size    = 72
	section64Size    = 80
	symtabCmdSize    = 24
	nlist64Size      = 16
	relocEntrySize   = 8
	sectAttrPureInst = 0x80000000
	sectAttrSomeInst = 0x00000400

	nTypeSect = 0x0E // N_SECT
	nTypeExt  = 0x01 // N_EXT

	// Relocation types. The x86-64 and arm64 namespaces overlap
	// numerically but not semantically.
	relocX86Unsigned = 0 // X86_64_RELOC_UNSIGNED
	relocX86Signed   = 1 // X86_64_RELOC_SIGNED
	relocX86Branch   = 2 // X86_64_RELOC_BRANCH

	relocARM64Unsigned = 0  // ARM64_RELOC_UNSIGNED
	relocARM64Branch26 = 2  // ARM64_RELOC_BRANCH26
	relocARM64Addend   = 10 // ARM64_RELOC_ADDEND
)

type machoReloc struct {
	address int32
	word    uint32 // symbolnum | pcrel<<24 | length<<25 | extern<<27 | type<<28
}

func machoRelocWord(symbolnum uint32, pcrel bool, length uint32, extern bool, typ uint32) uint32 {
	w := symbolnum & 0xFFFFFF
	if pcrel {
		w |= 1 << 24
	}
	w |= length << 25
	if extern {
		w |= 1 << 27
	}
	return w | typ<<28
}

// writeMachO serializes the builder's layout as a 64-bit Mach-O object with
// one unnamed segment holding __text and __data, a symbol table, and extern
// relocations against the text section.
//
// Mach-O x86-64 relocations carry their addend in the patched instruction
// bytes, not in the relocation record. PC-relative fixups additionally bias
// by the 4 bytes between the fixup field and the next instruction, so a
// conventional addend of -4 is stored as 0. On arm64 a branch addend rides
// in a paired ARM64_RELOC_ADDEND record instead.
func (b *Builder) writeMachO() ([]byte, error) {
	text := b.text()

	// Symbol table layout: defined text symbols in insertion order, the
	// metadata symbol, then deduplicated undefined externals.
	type machoSym struct {
		name string
		sect byte
		addr uint64
	}
	var symbols []machoSym
	for i := range b.syms {
		symbols = append(symbols, machoSym{name: b.syms[i].name, sect: 1, addr: uint64(b.syms[i].offset)})
	}

	dataAddr := uint64(alignUp(uint32(len(text)), 8))
	if len(b.meta) > 0 {
		symbols = append(symbols, machoSym{name: MetadataSymbol, sect: 2, addr: dataAddr})
	}

	undef := make(map[string]uint32)
	undefSym := func(name string) uint32 {
		if idx, ok := undef[name]; ok {
			return idx
		}
		idx := uint32(len(symbols))
		undef[name] = idx
		symbols = append(symbols, machoSym{name: name})
		return idx
	}

	var relocs []machoReloc
	for i := range b.syms {
		s := &b.syms[i]
		for _, rel := range s.relocs {
			var symIdx uint32
			switch rel.Target.Kind {
			case compiler.TargetFunction:
				fi, err := b.resolveFunc(rel.Target.Function)
				if err != nil {
					return nil, err
				}
				symIdx = uint32(fi)
			default:
				symIdx = undefSym(rel.Target.Symbol)
			}
			addr := int32(s.offset) + int32(rel.Offset)
			field := text[uint32(s.offset)+rel.Offset:]

			switch b.target.Arch {
			case wasmnative.AMD64:
				switch rel.Kind {
				case compiler.RelocAbs64:
					binary.LittleEndian.PutUint64(field, uint64(rel.Addend))
					relocs = append(relocs, machoReloc{addr, machoRelocWord(symIdx, false, 3, true, relocX86Unsigned)})
				case compiler.RelocPCRel32:
					binary.LittleEndian.PutUint32(field, uint32(int32(rel.Addend)+4))
					relocs = append(relocs, machoReloc{addr, machoRelocWord(symIdx, true, 2, true, relocX86Signed)})
				case compiler.RelocBranch:
					binary.LittleEndian.PutUint32(field, uint32(int32(rel.Addend)+4))
					relocs = append(relocs, machoReloc{addr, machoRelocWord(symIdx, true, 2, true, relocX86Branch)})
				}
			case wasmnative.ARM64:
				switch rel.Kind {
				case compiler.RelocAbs64:
					binary.LittleEndian.PutUint64(field, uint64(rel.Addend))
					relocs = append(relocs, machoReloc{addr, machoRelocWord(symIdx, false, 3, true, relocARM64Unsigned)})
				case compiler.RelocBranch:
					if rel.Addend != 0 {
						relocs = append(relocs, machoReloc{addr, machoRelocWord(uint32(rel.Addend)&0xFFFFFF, false, 2, false, relocARM64Addend)})
					}
					relocs = append(relocs, machoReloc{addr, machoRelocWord(symIdx, true, 2, true, relocARM64Branch26)})
				default:
					return nil, errors.Unsupported(errors.PhaseObject, "relocation "+rel.Kind.String()+" in mach-o on arm64")
				}
			}
		}
	}

	strtab := newStringTable()
	nameOffs := make([]uint32, len(symbols))
	for i, s := range symbols {
		nameOffs[i] = strtab.add("_" + s.name)
	}

	// File layout: header and load commands, text, data, relocation
	// entries, symbol table, string table.
	cmdsSize := segment64Size + 2*section64Size + symtabCmdSize
	contentOff := machoHeaderSize + cmdsSize

	textOff := alignUp(uint32(contentOff), funcAlign)
	dataOff := alignUp(textOff+uint32(len(text)), 8)
	relocOff := alignUp(dataOff+uint32(len(b.meta)), 8)
	symOff := relocOff + uint32(relocEntrySize*len(relocs))
	strOff := symOff + uint32(nlist64Size*len(symbols))

	e := &enc{}

	// Header.
	e.u32(machoMagic64)
	if b.target.Arch == wasmnative.ARM64 {
		e.u32(machoCPUARM64)
		e.u32(machoSubtypeARM64All)
	} else {
		e.u32(machoCPUX86_64)
		e.u32(machoSubtypeX86_64All)
	}
	e.u32(machoObject)
	e.u32(2) // ncmds
	e.u32(uint32(cmdsSize))
	e.u32(machoFlagSubsectionsViaSymbols)
	e.u32(0) // reserved

	// LC_SEGMENT_64 with __text and __data. Object files use a single
	// unnamed segment.
	vmsize := dataAddr + uint64(len(b.meta))
	e.u32(lcSegment64)
	e.u32(uint32(segment64Size + 2*section64Size))
	e.bytes(make([]byte, 16)) // segname
	e.u64(0)                  // vmaddr
	e.u64(vmsize)
	e.u64(uint64(textOff)) // fileoff
	e.u64(vmsize)          // filesize
	e.u32(7)               // maxprot rwx
	e.u32(7)               // initprot rwx
	e.u32(2)               // nsects
	e.u32(0)               // flags

	writeSect := func(sect, seg string, addr, size uint64, off uint32, align uint32, reloff, nreloc, flags uint32) {
		name := make([]byte, 16)
		copy(name, sect)
		e.bytes(name)
		name = make([]byte, 16)
		copy(name, seg)
		e.bytes(name)
		e.u64(addr)
		e.u64(size)
		e.u32(off)
		e.u32(align)
		e.u32(reloff)
		e.u32(nreloc)
		e.u32(flags)
		e.u32(0)
		e.u32(0)
		e.u32(0)
	}
	writeSect("__text", "__TEXT", 0, uint64(len(text)), textOff, 4, relocOff, uint32(len(relocs)), sectAttrPureInst|sectAttrSomeInst)
	writeSect("__data", "__DATA", dataAddr, uint64(len(b.meta)), dataOff, 3, 0, 0, 0)

	// LC_SYMTAB.
	e.u32(lcSymtab)
	e.u32(symtabCmdSize)
	e.u32(symOff)
	e.u32(uint32(len(symbols)))
	e.u32(strOff)
	e.u32(uint32(len(strtab.b)))

	e.pad(int(funcAlign))
	e.bytes(text)
	e.pad(8)
	e.bytes(b.meta)
	e.pad(8)

	for _, r := range relocs {
		e.i32(r.address)
		e.u32(r.word)
	}

	for i, s := range symbols {
		e.u32(nameOffs[i])
		if s.sect != 0 {
			e.u8(nTypeSect | nTypeExt)
		} else {
			e.u8(nTypeExt) // N_UNDF | N_EXT
		}
		e.u8(s.sect)
		e.u16(0) // n_desc
		e.u64(s.addr)
	}

	e.bytes(strtab.b)

	return e.b, nil
}
