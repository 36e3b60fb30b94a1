package metadata

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/wippyai/wasm-native/errors"
	"github.com/wippyai/wasm-native/wasm"
)

// Blob layout, all integers little-endian:
//
//	header (16 bytes)
//	  magic      u32
//	  version    u16
//	  reserved   u16
//	  payloadLen u64
//	payload
//	  directory: 11 entries of {offset u64, count u32, reserved u32}
//	  section records (fixed-size, 8-byte aligned offsets)
//	  pool: variable-length payloads (names, value types, segment bytes,
//	        function index arrays) addressed by absolute payload offsets
//
// Record offsets stored in the directory and pool offsets stored in records
// are relative to the payload start. The layout is chosen so a decode can
// overlay the mapped blob: fixed records are read field-wise, and every
// variable-length payload is referenced in place.
const (
	secModuleInfo = iota
	secTypes
	secImports
	secExports
	secMemories
	secTables
	secFuncTypeIndices
	secBodyLengths
	secData
	secElements
	secPool
	numSections
)

const (
	dirEntrySize = 16
	dirSize      = numSections * dirEntrySize

	moduleInfoSize = 8
	typeRecSize    = 16
	importRecSize  = 24
	exportRecSize  = 16
	memoryRecSize  = 16
	tableRecSize   = 16
	dataRecSize    = 24
	elementRecSize = 16
)

func errNonConstOffset(what string) error {
	return errors.Unsupported(errors.PhaseMetadata, "non-constant "+what+" segment offset")
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// Encode serializes m into a self-describing, versioned blob.
func Encode(m *Module) ([]byte, error) {
	// Section offsets are computable up front: every fixed section size
	// follows from the element counts.
	offsets := [numSections]int{}
	sizes := [numSections]int{
		secModuleInfo:      moduleInfoSize,
		secTypes:           typeRecSize * len(m.Types),
		secImports:         importRecSize * len(m.Imports),
		secExports:         exportRecSize * len(m.Exports),
		secMemories:        memoryRecSize * len(m.Memories),
		secTables:          tableRecSize * len(m.Tables),
		secFuncTypeIndices: align8(4 * len(m.FuncTypeIndices)),
		secBodyLengths:     align8(4 * len(m.BodyLengths)),
		secData:            dataRecSize * len(m.Data),
		secElements:        elementRecSize * len(m.Elements),
	}
	off := dirSize
	for s := secModuleInfo; s < secPool; s++ {
		offsets[s] = off
		off += sizes[s]
	}
	offsets[secPool] = off

	pool := newPoolWriter(off)

	payloadHint := off
	payload := make([]byte, payloadHint)
	le := binary.LittleEndian

	put32 := func(at int, v uint32) { le.PutUint32(payload[at:], v) }
	put64 := func(at int, v uint64) { le.PutUint64(payload[at:], v) }

	// Module info.
	put32(offsets[secModuleInfo], m.NumImportedFuncs)

	// Types.
	for i, ft := range m.Types {
		rec := offsets[secTypes] + i*typeRecSize
		pOff, pLen := pool.addBytes(valTypeBytes(ft.Params), 1)
		rOff, rLen := pool.addBytes(valTypeBytes(ft.Results), 1)
		put32(rec, pOff)
		put32(rec+4, pLen)
		put32(rec+8, rOff)
		put32(rec+12, rLen)
	}

	// Imports.
	for i, imp := range m.Imports {
		rec := offsets[secImports] + i*importRecSize
		mOff, mLen := pool.addBytes([]byte(imp.Module), 1)
		nOff, nLen := pool.addBytes([]byte(imp.Name), 1)
		put32(rec, mOff)
		put32(rec+4, mLen)
		put32(rec+8, nOff)
		put32(rec+12, nLen)
		put32(rec+16, imp.Index)
		payload[rec+20] = imp.Kind
	}

	// Exports.
	for i, exp := range m.Exports {
		rec := offsets[secExports] + i*exportRecSize
		nOff, nLen := pool.addBytes([]byte(exp.Name), 1)
		put32(rec, nOff)
		put32(rec+4, nLen)
		put32(rec+8, exp.Index)
		payload[rec+12] = exp.Kind
	}

	// Memory plans.
	for i, mp := range m.Memories {
		rec := offsets[secMemories] + i*memoryRecSize
		put32(rec, mp.Min)
		put32(rec+4, mp.Max)
		var flags byte
		if mp.HasMax {
			flags |= 1
		}
		if mp.Shared {
			flags |= 2
		}
		payload[rec+8] = flags
	}

	// Table plans.
	for i, tp := range m.Tables {
		rec := offsets[secTables] + i*tableRecSize
		put32(rec, tp.Min)
		put32(rec+4, tp.Max)
		payload[rec+8] = byte(tp.Elem)
		if tp.HasMax {
			payload[rec+9] = 1
		}
	}

	// Function type indices and body lengths.
	for i, v := range m.FuncTypeIndices {
		put32(offsets[secFuncTypeIndices]+4*i, v)
	}
	for i, v := range m.BodyLengths {
		put32(offsets[secBodyLengths]+4*i, v)
	}

	// Data initializers.
	for i, d := range m.Data {
		rec := offsets[secData] + i*dataRecSize
		bOff, bLen := pool.addBytes(d.Bytes, 1)
		put32(rec, d.MemoryIndex)
		put64(rec+8, d.Offset)
		put32(rec+16, bOff)
		put32(rec+20, bLen)
	}

	// Element initializers.
	for i, e := range m.Elements {
		rec := offsets[secElements] + i*elementRecSize
		fOff, fLen := pool.addU32s(e.Funcs)
		put32(rec, e.TableIndex)
		put32(rec+4, e.Offset)
		put32(rec+8, fOff)
		put32(rec+12, fLen)
	}

	payload = append(payload, pool.buf...)
	if len(payload) > math.MaxUint32 {
		return nil, errors.Internal(errors.PhaseMetadata, "metadata payload exceeds 4 GiB")
	}

	// Directory.
	counts := [numSections]int{
		secModuleInfo:      1,
		secTypes:           len(m.Types),
		secImports:         len(m.Imports),
		secExports:         len(m.Exports),
		secMemories:        len(m.Memories),
		secTables:          len(m.Tables),
		secFuncTypeIndices: len(m.FuncTypeIndices),
		secBodyLengths:     len(m.BodyLengths),
		secData:            len(m.Data),
		secElements:        len(m.Elements),
		secPool:            len(pool.buf),
	}
	for s := 0; s < numSections; s++ {
		ent := s * dirEntrySize
		put64(ent, uint64(offsets[s]))
		put32(ent+8, uint32(counts[s]))
	}

	blob := make([]byte, HeaderSize+len(payload))
	le.PutUint32(blob, Magic)
	le.PutUint16(blob[4:], FormatVersion)
	le.PutUint64(blob[8:], uint64(len(payload)))
	copy(blob[HeaderSize:], payload)
	return blob, nil
}

// poolWriter accumulates variable-length payloads, handing out absolute
// payload offsets.
type poolWriter struct {
	base int
	buf  []byte
}

func newPoolWriter(base int) *poolWriter {
	return &poolWriter{base: base}
}

func (p *poolWriter) addBytes(b []byte, align int) (off, length uint32) {
	if len(b) == 0 {
		return 0, 0
	}
	for (p.base+len(p.buf))%align != 0 {
		p.buf = append(p.buf, 0)
	}
	off = uint32(p.base + len(p.buf))
	p.buf = append(p.buf, b...)
	return off, uint32(len(b))
}

func (p *poolWriter) addU32s(vs []uint32) (off, count uint32) {
	if len(vs) == 0 {
		return 0, 0
	}
	raw := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}
	off, _ = p.addBytes(raw, 4)
	return off, uint32(len(vs))
}

func valTypeBytes(vs []wasm.ValType) []byte {
	if len(vs) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vs[0])), len(vs))
}

// ReadHeader parses and checks the fixed-size blob header, returning the
// declared payload length. Callers loading the blob out of a mapped shared
// library use it to size the full region before Decode.
func ReadHeader(b []byte) (payloadLen uint64, err error) {
	if len(b) < HeaderSize {
		return 0, errors.MetadataTruncated(HeaderSize, len(b))
	}
	le := binary.LittleEndian
	if magic := le.Uint32(b); magic != Magic {
		return 0, errors.MetadataBadMagic(magic)
	}
	if version := le.Uint16(b[4:]); version != FormatVersion {
		return 0, errors.MetadataVersion(version, FormatVersion)
	}
	return le.Uint64(b[8:]), nil
}

// DecodeMapped decodes a blob already mapped into the process at addr,
// such as the metadata symbol of a loaded shared library. The header is
// read first to size the full region; the returned Module aliases the
// mapping.
func DecodeMapped(addr uintptr) (*Module, error) {
	head := unsafe.Slice((*byte)(unsafe.Pointer(addr)), HeaderSize)
	payloadLen, err := ReadHeader(head)
	if err != nil {
		return nil, err
	}
	blob := unsafe.Slice((*byte)(unsafe.Pointer(addr)), HeaderSize+int(payloadLen))
	return Decode(blob)
}

// Decode deserializes a blob produced by Encode. The returned Module's
// strings and slices reference b in place wherever possible; b must remain
// valid and unmodified for the Module's lifetime. Decode fails closed: an
// unrecognized tag or version, a payload length not matching the available
// bytes, or any out-of-range internal offset is an error, never a partial
// result.
func Decode(b []byte) (*Module, error) {
	payloadLen, err := ReadHeader(b)
	if err != nil {
		return nil, err
	}
	if payloadLen != uint64(len(b)-HeaderSize) {
		return nil, errors.MetadataTruncated(int(payloadLen), len(b)-HeaderSize)
	}
	payload := b[HeaderSize:]
	if len(payload) < dirSize {
		return nil, errors.MetadataInvalid("payload shorter than section directory")
	}

	le := binary.LittleEndian
	var dir [numSections]struct {
		off   uint64
		count uint32
	}
	for s := 0; s < numSections; s++ {
		ent := s * dirEntrySize
		dir[s].off = le.Uint64(payload[ent:])
		dir[s].count = le.Uint32(payload[ent+8:])
	}

	section := func(s, recSize int) ([]byte, error) {
		need := uint64(recSize) * uint64(dir[s].count)
		if dir[s].off > uint64(len(payload)) || need > uint64(len(payload))-dir[s].off {
			return nil, errors.MetadataInvalid("section %d at %d (%d bytes) out of range", s, dir[s].off, need)
		}
		return payload[dir[s].off : dir[s].off+need], nil
	}
	poolView := func(off, length uint32) ([]byte, error) {
		if length == 0 {
			return nil, nil
		}
		if uint64(off) > uint64(len(payload)) || uint64(length) > uint64(len(payload))-uint64(off) {
			return nil, errors.MetadataInvalid("pool range [%d, %d) out of range", off, off+length)
		}
		return payload[off : off+length], nil
	}

	m := &Module{}

	if dir[secModuleInfo].count != 1 {
		return nil, errors.MetadataInvalid("module info count %d", dir[secModuleInfo].count)
	}
	info, err := section(secModuleInfo, moduleInfoSize)
	if err != nil {
		return nil, err
	}
	m.NumImportedFuncs = le.Uint32(info)

	types, err := section(secTypes, typeRecSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(dir[secTypes].count); i++ {
		rec := types[i*typeRecSize:]
		params, err := poolView(le.Uint32(rec), le.Uint32(rec[4:]))
		if err != nil {
			return nil, err
		}
		results, err := poolView(le.Uint32(rec[8:]), le.Uint32(rec[12:]))
		if err != nil {
			return nil, err
		}
		m.Types = append(m.Types, FuncType{
			Params:  overlayValTypes(params),
			Results: overlayValTypes(results),
		})
	}

	imports, err := section(secImports, importRecSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(dir[secImports].count); i++ {
		rec := imports[i*importRecSize:]
		mod, err := poolView(le.Uint32(rec), le.Uint32(rec[4:]))
		if err != nil {
			return nil, err
		}
		name, err := poolView(le.Uint32(rec[8:]), le.Uint32(rec[12:]))
		if err != nil {
			return nil, err
		}
		m.Imports = append(m.Imports, Import{
			Module: overlayString(mod),
			Name:   overlayString(name),
			Index:  le.Uint32(rec[16:]),
			Kind:   rec[20],
		})
	}

	exports, err := section(secExports, exportRecSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(dir[secExports].count); i++ {
		rec := exports[i*exportRecSize:]
		name, err := poolView(le.Uint32(rec), le.Uint32(rec[4:]))
		if err != nil {
			return nil, err
		}
		m.Exports = append(m.Exports, Export{
			Name:  overlayString(name),
			Index: le.Uint32(rec[8:]),
			Kind:  rec[12],
		})
	}

	memories, err := section(secMemories, memoryRecSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(dir[secMemories].count); i++ {
		rec := memories[i*memoryRecSize:]
		flags := rec[8]
		m.Memories = append(m.Memories, MemoryPlan{
			Min:    le.Uint32(rec),
			Max:    le.Uint32(rec[4:]),
			HasMax: flags&1 != 0,
			Shared: flags&2 != 0,
		})
	}

	tables, err := section(secTables, tableRecSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(dir[secTables].count); i++ {
		rec := tables[i*tableRecSize:]
		m.Tables = append(m.Tables, TablePlan{
			Min:    le.Uint32(rec),
			Max:    le.Uint32(rec[4:]),
			Elem:   wasm.ValType(rec[8]),
			HasMax: rec[9] != 0,
		})
	}

	m.FuncTypeIndices, err = overlayU32s(payload, dir[secFuncTypeIndices].off, dir[secFuncTypeIndices].count)
	if err != nil {
		return nil, err
	}
	m.BodyLengths, err = overlayU32s(payload, dir[secBodyLengths].off, dir[secBodyLengths].count)
	if err != nil {
		return nil, err
	}
	if m.NumImportedFuncs > uint32(len(m.FuncTypeIndices)) {
		return nil, errors.MetadataInvalid("%d imported functions exceed %d total", m.NumImportedFuncs, len(m.FuncTypeIndices))
	}
	if uint32(len(m.BodyLengths)) != m.NumLocalFuncs() {
		return nil, errors.MetadataInvalid("%d body lengths for %d defined functions", len(m.BodyLengths), m.NumLocalFuncs())
	}
	for _, ti := range m.FuncTypeIndices {
		if ti >= dir[secTypes].count {
			return nil, errors.MetadataInvalid("type index %d out of range (%d types)", ti, dir[secTypes].count)
		}
	}

	data, err := section(secData, dataRecSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(dir[secData].count); i++ {
		rec := data[i*dataRecSize:]
		bytes, err := poolView(le.Uint32(rec[16:]), le.Uint32(rec[20:]))
		if err != nil {
			return nil, err
		}
		m.Data = append(m.Data, DataInitializer{
			MemoryIndex: le.Uint32(rec),
			Offset:      le.Uint64(rec[8:]),
			Bytes:       bytes,
		})
	}

	elements, err := section(secElements, elementRecSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(dir[secElements].count); i++ {
		rec := elements[i*elementRecSize:]
		funcs, err := overlayU32s(payload, uint64(le.Uint32(rec[8:])), le.Uint32(rec[12:]))
		if err != nil {
			return nil, err
		}
		m.Elements = append(m.Elements, ElementInitializer{
			TableIndex: le.Uint32(rec),
			Offset:     le.Uint32(rec[4:]),
			Funcs:      funcs,
		})
	}

	return m, nil
}

// overlayString references b in place as a string. The blob is immutable,
// which makes the aliasing safe.
func overlayString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// overlayValTypes reinterprets pool bytes as value types without copying.
func overlayValTypes(b []byte) []wasm.ValType {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*wasm.ValType)(unsafe.Pointer(&b[0])), len(b))
}

// overlayU32s reinterprets a 4-aligned payload range as a []uint32. The
// blob format is little-endian only, matching every supported target.
func overlayU32s(payload []byte, off uint64, count uint32) ([]uint32, error) {
	if count == 0 {
		return nil, nil
	}
	need := 4 * uint64(count)
	if off > uint64(len(payload)) || need > uint64(len(payload))-off {
		return nil, errors.MetadataInvalid("u32 array at %d (%d entries) out of range", off, count)
	}
	if off%4 != 0 {
		return nil, errors.MetadataInvalid("u32 array at %d misaligned", off)
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&payload[off])), count), nil
}
