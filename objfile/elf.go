package objfile

import (
	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/compiler"
	"github.com/wippyai/wasm-native/errors"
)

// ELF constants used by the writer, limited to what a relocatable object
// needs.
const (
	elfTypeRel = 1

	elfMachineX86_64  = 62
	elfMachineAArch64 = 183

	elfOSABISysV    = 0
	elfOSABIFreeBSD = 9

	shtProgbits = 1
	shtSymtab   = 2
	shtStrtab   = 3
	shtRela     = 4

	shfWrite     = 0x1
	shfAlloc     = 0x2
	shfExecinstr = 0x4
	shfInfoLink  = 0x40

	stbGlobal = 1
	sttObject = 1
	sttFunc   = 2

	ehdrSize   = 64
	shdrSize   = 64
	symSize    = 24
	relaSize   = 24
	numShdrs   = 7
	shnUndef   = 0
	shnText    = 1
	shnData    = 2
	shnRela    = 3
	shnSymtab  = 4
	shnStrtab  = 5
	shnShstrta = 6
)

// ELF relocation types, x86-64 and AArch64.
const (
	relX86_64_64    = 1
	relX86_64_PC32  = 2
	relX86_64_PLT32 = 4

	relAArch64_ABS64  = 257
	relAArch64_PREL32 = 261
	relAArch64_CALL26 = 283
)

func elfRelocType(arch wasmnative.Arch, kind compiler.RelocationKind) (uint32, error) {
	switch arch {
	case wasmnative.AMD64:
		switch kind {
		case compiler.RelocAbs64:
			return relX86_64_64, nil
		case compiler.RelocPCRel32:
			return relX86_64_PC32, nil
		case compiler.RelocBranch:
			return relX86_64_PLT32, nil
		}
	case wasmnative.ARM64:
		switch kind {
		case compiler.RelocAbs64:
			return relAArch64_ABS64, nil
		case compiler.RelocPCRel32:
			return relAArch64_PREL32, nil
		case compiler.RelocBranch:
			return relAArch64_CALL26, nil
		}
	}
	return 0, errors.Unsupported(errors.PhaseObject, "relocation "+kind.String()+" on "+string(arch))
}

type elfSymbol struct {
	nameOff uint32
	info    byte
	shndx   uint16
	value   uint64
	size    uint64
}

type elfRela struct {
	offset uint64
	sym    uint32
	typ    uint32
	addend int64
}

// writeELF serializes the builder's layout as an ELF64 relocatable object.
// All symbols are emitted global: defined text and data symbols first (in
// insertion order, so function relocations can index them directly), then
// deduplicated undefined externals.
func (b *Builder) writeELF() ([]byte, error) {
	text := b.text()

	strtab := newStringTable()
	symbols := []elfSymbol{{}}
	for i := range b.syms {
		s := &b.syms[i]
		symbols = append(symbols, elfSymbol{
			nameOff: strtab.add(s.name),
			info:    stbGlobal<<4 | sttFunc,
			shndx:   shnText,
			value:   uint64(s.offset),
			size:    uint64(len(s.code)),
		})
	}
	if len(b.meta) > 0 {
		symbols = append(symbols, elfSymbol{
			nameOff: strtab.add(MetadataSymbol),
			info:    stbGlobal<<4 | sttObject,
			shndx:   shnData,
			size:    uint64(len(b.meta)),
		})
	}

	undef := make(map[string]uint32)
	undefSym := func(name string) uint32 {
		if idx, ok := undef[name]; ok {
			return idx
		}
		idx := uint32(len(symbols))
		undef[name] = idx
		symbols = append(symbols, elfSymbol{
			nameOff: strtab.add(name),
			info:    stbGlobal << 4,
			shndx:   shnUndef,
		})
		return idx
	}

	var relas []elfRela
	for i := range b.syms {
		s := &b.syms[i]
		for _, rel := range s.relocs {
			typ, err := elfRelocType(b.target.Arch, rel.Kind)
			if err != nil {
				return nil, err
			}
			var symIdx uint32
			switch rel.Target.Kind {
			case compiler.TargetFunction:
				fi, err := b.resolveFunc(rel.Target.Function)
				if err != nil {
					return nil, err
				}
				symIdx = uint32(fi) + 1
			default:
				symIdx = undefSym(rel.Target.Symbol)
			}
			relas = append(relas, elfRela{
				offset: uint64(s.offset) + uint64(rel.Offset),
				sym:    symIdx,
				typ:    typ,
				addend: rel.Addend,
			})
		}
	}

	shstrtab := newStringTable()
	shNames := [numShdrs]uint32{
		shnText:    shstrtab.add(".text"),
		shnData:    shstrtab.add(".data"),
		shnRela:    shstrtab.add(".rela.text"),
		shnSymtab:  shstrtab.add(".symtab"),
		shnStrtab:  shstrtab.add(".strtab"),
		shnShstrta: shstrtab.add(".shstrtab"),
	}

	// File layout: header, section contents in index order, section header
	// table last.
	e := &enc{}
	e.b = make([]byte, ehdrSize)

	e.pad(16)
	textOff := e.len()
	e.bytes(text)

	e.pad(8)
	dataOff := e.len()
	e.bytes(b.meta)

	e.pad(8)
	relaOff := e.len()
	for _, r := range relas {
		e.u64(r.offset)
		e.u64(uint64(r.sym)<<32 | uint64(r.typ))
		e.i64(r.addend)
	}

	e.pad(8)
	symtabOff := e.len()
	for _, s := range symbols {
		e.u32(s.nameOff)
		e.u8(s.info)
		e.u8(0) // st_other
		e.u16(s.shndx)
		e.u64(s.value)
		e.u64(s.size)
	}

	strtabOff := e.len()
	e.bytes(strtab.b)

	shstrtabOff := e.len()
	e.bytes(shstrtab.b)

	e.pad(8)
	shoff := e.len()

	type shdr struct {
		typ, link, info    uint32
		flags              uint64
		off, size          int
		addralign, entsize uint64
	}
	shdrs := [numShdrs]shdr{
		shnText:    {typ: shtProgbits, flags: shfAlloc | shfExecinstr, off: textOff, size: len(text), addralign: funcAlign},
		shnData:    {typ: shtProgbits, flags: shfAlloc | shfWrite, off: dataOff, size: len(b.meta), addralign: 8},
		shnRela:    {typ: shtRela, flags: shfInfoLink, off: relaOff, size: relaSize * len(relas), link: shnSymtab, info: shnText, addralign: 8, entsize: relaSize},
		shnSymtab:  {typ: shtSymtab, off: symtabOff, size: symSize * len(symbols), link: shnStrtab, info: 1, addralign: 8, entsize: symSize},
		shnStrtab:  {typ: shtStrtab, off: strtabOff, size: len(strtab.b), addralign: 1},
		shnShstrta: {typ: shtStrtab, off: shstrtabOff, size: len(shstrtab.b), addralign: 1},
	}
	for i, sh := range shdrs {
		e.u32(shNames[i])
		e.u32(sh.typ)
		e.u64(sh.flags)
		e.u64(0) // sh_addr
		e.u64(uint64(sh.off))
		e.u64(uint64(sh.size))
		e.u32(sh.link)
		e.u32(sh.info)
		e.u64(sh.addralign)
		e.u64(sh.entsize)
	}

	// Header, filled in last now that shoff is known.
	h := &enc{}
	h.bytes([]byte{0x7F, 'E', 'L', 'F', 2, 1, 1, b.elfOSABI()})
	h.u64(0) // ABI version and padding
	h.u16(elfTypeRel)
	h.u16(b.elfMachine())
	h.u32(1) // EV_CURRENT
	h.u64(0) // e_entry
	h.u64(0) // e_phoff
	h.u64(uint64(shoff))
	h.u32(0) // e_flags
	h.u16(ehdrSize)
	h.u16(0) // e_phentsize
	h.u16(0) // e_phnum
	h.u16(shdrSize)
	h.u16(numShdrs)
	h.u16(shnShstrta)
	copy(e.b, h.b)

	return e.b, nil
}

func (b *Builder) elfMachine() uint16 {
	if b.target.Arch == wasmnative.ARM64 {
		return elfMachineAArch64
	}
	return elfMachineX86_64
}

func (b *Builder) elfOSABI() byte {
	if b.target.OS == wasmnative.FreeBSD {
		return elfOSABIFreeBSD
	}
	return elfOSABISysV
}
