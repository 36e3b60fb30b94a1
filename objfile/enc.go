package objfile

import "encoding/binary"

// enc is a little-endian byte assembler for the object writers. Every
// supported target is little-endian, so the byte order is fixed.
type enc struct {
	b []byte
}

func (e *enc) u8(v byte)    { e.b = append(e.b, v) }
func (e *enc) u16(v uint16) { e.b = binary.LittleEndian.AppendUint16(e.b, v) }
func (e *enc) u32(v uint32) { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *enc) u64(v uint64) { e.b = binary.LittleEndian.AppendUint64(e.b, v) }
func (e *enc) i32(v int32)  { e.u32(uint32(v)) }
func (e *enc) i64(v int64)  { e.u64(uint64(v)) }

func (e *enc) bytes(b []byte) { e.b = append(e.b, b...) }

func (e *enc) pad(align int) {
	for len(e.b)%align != 0 {
		e.b = append(e.b, 0)
	}
}

func (e *enc) len() int { return len(e.b) }

// stringTable builds a NUL-separated string table with a leading empty
// entry, deduplicating repeated names.
type stringTable struct {
	b   []byte
	off map[string]uint32
}

func newStringTable() *stringTable {
	return &stringTable{b: []byte{0}, off: make(map[string]uint32)}
}

func (s *stringTable) add(name string) uint32 {
	if name == "" {
		return 0
	}
	if off, ok := s.off[name]; ok {
		return off
	}
	off := uint32(len(s.b))
	s.off[name] = off
	s.b = append(s.b, name...)
	s.b = append(s.b, 0)
	return off
}
