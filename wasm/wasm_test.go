package wasm

import (
	"reflect"
	"testing"
)

// testModule builds a module exercising every supported section.
func testModule() *Module {
	start := uint32(1)
	dataCount := uint32(2)
	return &Module{
		Types: []FuncType{
			{Params: []ValType{I32, I32}, Results: []ValType{I32}},
			{},
		},
		Imports: []Import{
			{Module: "env", Name: "log", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 1}},
			{Module: "env", Name: "mem", Desc: ImportDesc{
				Kind:   KindMemory,
				Memory: &MemoryType{Limits: Limits{Min: 1, Max: 4, HasMax: true}},
			}},
		},
		Funcs:    []uint32{0, 1},
		Tables:   []TableType{{Elem: Funcref, Limits: Limits{Min: 2, Max: 2, HasMax: true}}},
		Memories: nil,
		Globals: []Global{
			{Type: GlobalType{Type: I32, Mutable: true}, Init: ConstI32(7)},
		},
		Exports: []Export{
			{Name: "add", Kind: KindFunc, Index: 1},
			{Name: "tab", Kind: KindTable, Index: 0},
		},
		Start: &start,
		Elements: []Element{
			{TableIndex: 0, Offset: ConstI32(0), Funcs: []uint32{1, 2}},
		},
		Code: []FuncBody{
			{Body: []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}}, // local.get 0; local.get 1; i32.add; end
			{Body: []byte{0x00, 0x0b}},                               // end
		},
		Data: []DataSegment{
			{MemIndex: 0, Offset: ConstI32(16), Init: []byte("hello")},
			{Passive: true, Init: []byte{1, 2, 3}},
		},
		DataCount: &dataCount,
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	orig := testModule()
	encoded := orig.Encode()

	parsed, err := ParseModule(encoded)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if !reflect.DeepEqual(orig, parsed) {
		t.Errorf("round trip mismatch:\n orig: %+v\n parsed: %+v", orig, parsed)
	}
}

func TestParseModuleValidate(t *testing.T) {
	if _, err := ParseModuleValidate(testModule().Encode()); err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}
}

func TestParseModuleBadMagic(t *testing.T) {
	data := testModule().Encode()
	data[0] = 'X'
	if _, err := ParseModule(data); err != ErrInvalidMagic {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestParseModuleBadVersion(t *testing.T) {
	data := testModule().Encode()
	data[4] = 9
	if _, err := ParseModule(data); err != ErrInvalidVersion {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestParseModuleTruncated(t *testing.T) {
	data := testModule().Encode()
	for _, n := range []int{5, 9, len(data) / 2, len(data) - 1} {
		if _, err := ParseModule(data[:n]); err == nil {
			t.Errorf("truncation to %d bytes accepted", n)
		}
	}
}

func TestParseModuleOutOfOrderSections(t *testing.T) {
	// Code section before function section.
	m := &Module{
		Types: []FuncType{{}},
		Funcs: []uint32{0},
		Code:  []FuncBody{{Body: []byte{0x00, 0x0b}}},
	}
	data := m.Encode()

	// Swap the function (id 3) and code (id 10) sections by re-encoding
	// manually: type section, code section, function section.
	var out []byte
	out = append(out, data[:8]...)
	sections := splitSections(t, data[8:])
	out = append(out, sections[1]...) // type
	out = append(out, sections[10]...)
	out = append(out, sections[3]...)
	if _, err := ParseModule(out); err == nil {
		t.Error("out-of-order sections accepted")
	}
}

// splitSections cuts the section stream into id -> raw section bytes.
func splitSections(t *testing.T, data []byte) map[byte][]byte {
	t.Helper()
	out := make(map[byte][]byte)
	for len(data) > 0 {
		id := data[0]
		// Sections in these tests are short, single-byte LEB sizes.
		size := int(data[1])
		end := 2 + size
		if end > len(data) {
			t.Fatalf("malformed test section stream")
		}
		out[id] = data[:end]
		data = data[end:]
	}
	return out
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Module)
	}{
		{"func type out of range", func(m *Module) { m.Funcs[0] = 99 }},
		{"import type out of range", func(m *Module) { m.Imports[0].Desc.TypeIdx = 99 }},
		{"code count mismatch", func(m *Module) { m.Code = m.Code[:1] }},
		{"export index out of range", func(m *Module) { m.Exports[0].Index = 99 }},
		{"duplicate export", func(m *Module) { m.Exports[1].Name = "add" }},
		{"start out of range", func(m *Module) { idx := uint32(99); m.Start = &idx }},
		{"element func out of range", func(m *Module) { m.Elements[0].Funcs[0] = 99 }},
		{"element table out of range", func(m *Module) { m.Elements[0].TableIndex = 9 }},
		{"data memory out of range", func(m *Module) { m.Data[0].MemIndex = 9 }},
		{"data count mismatch", func(m *Module) { n := uint32(7); m.DataCount = &n }},
		{"memory max below min", func(m *Module) {
			m.Memories = []MemoryType{{Limits: Limits{Min: 4, Max: 1, HasMax: true}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModule()
			tt.mutate(m)
			if err := m.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNumImportedFuncs(t *testing.T) {
	m := testModule()
	if got := m.NumImportedFuncs(); got != 1 {
		t.Errorf("NumImportedFuncs = %d, want 1", got)
	}
	if got := m.FuncTypeIndices(); !reflect.DeepEqual(got, []uint32{1, 0, 1}) {
		t.Errorf("FuncTypeIndices = %v, want [1 0 1]", got)
	}
}

func TestEvalConstOffset(t *testing.T) {
	tests := []struct {
		expr   []byte
		want   uint64
		wantOK bool
	}{
		{ConstI32(0), 0, true},
		{ConstI32(65536), 65536, true},
		{ConstI32(-1), 0xFFFFFFFF, true},
		{ConstI64(1 << 33), 1 << 33, true},
		{[]byte{OpGlobalGet, 0x00, OpEnd}, 0, false},
		{[]byte{OpI32Const, 0x2a}, 0, false}, // missing end
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := EvalConstOffset(tt.expr)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("EvalConstOffset(% x) = (%d, %v), want (%d, %v)", tt.expr, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCustomSectionRoundTrip(t *testing.T) {
	m := &Module{
		Types:          []FuncType{{}},
		CustomSections: []CustomSection{{Name: "producers", Data: []byte{1, 2, 3}}},
	}
	parsed, err := ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(parsed.CustomSections) != 1 || parsed.CustomSections[0].Name != "producers" {
		t.Fatalf("custom section lost: %+v", parsed.CustomSections)
	}
}

func TestSharedMemoryLimits(t *testing.T) {
	m := &Module{
		Memories: []MemoryType{{Limits: Limits{Min: 1, Max: 8, HasMax: true, Shared: true}}},
	}
	parsed, err := ParseModule(m.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	l := parsed.Memories[0].Limits
	if !l.Shared || !l.HasMax || l.Max != 8 {
		t.Errorf("shared limits lost: %+v", l)
	}
}
