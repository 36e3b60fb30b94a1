package objfile

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"encoding/binary"
	stderrors "errors"
	"testing"

	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/compiler"
	"github.com/wippyai/wasm-native/errors"
)

// testBuilder assembles a small object: two functions (the first calling
// the second and an external helper), one trampoline, and a metadata blob.
func testBuilder(t *testing.T, target wasmnative.Triple) *Builder {
	t.Helper()
	b, err := New(target)
	if err != nil {
		t.Fatalf("New(%s): %v", target, err)
	}
	b.AddFunction(0, compiler.CompiledFunction{
		Body: []byte{0xE8, 0, 0, 0, 0, 0xE8, 0, 0, 0, 0, 0xC3},
		Relocations: []compiler.Relocation{
			{Offset: 1, Addend: -4, Kind: compiler.RelocBranch, Target: compiler.FunctionTarget(1)},
			{Offset: 6, Addend: -4, Kind: compiler.RelocBranch, Target: compiler.SymbolTarget("wn_probe_stack")},
		},
	})
	b.AddFunction(1, compiler.CompiledFunction{
		Body: []byte{0xB8, 0x2A, 0, 0, 0, 0xC3},
	})
	b.AddTrampoline(0, compiler.CompiledFunction{
		Body: []byte{0xFF, 0xE0},
	})
	b.SetMetadata([]byte("metadata blob"))
	return b
}

func TestNewRejectsCOFF(t *testing.T) {
	_, err := New(wasmnative.Triple{OS: wasmnative.Windows, Arch: wasmnative.AMD64})
	if err == nil {
		t.Fatal("expected error for COFF target")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindUnsupported {
		t.Errorf("got %v, want unsupported", err)
	}
}

func TestSymbolNames(t *testing.T) {
	if got := FunctionSymbol(7); got != "wn_function_7" {
		t.Errorf("FunctionSymbol(7) = %q", got)
	}
	if got := TrampolineSymbol(0); got != "wn_trampoline_0" {
		t.Errorf("TrampolineSymbol(0) = %q", got)
	}
}

func TestELFObject(t *testing.T) {
	target := wasmnative.Triple{OS: wasmnative.Linux, Arch: wasmnative.AMD64}
	raw, err := testBuilder(t, target).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("not a valid ELF object: %v", err)
	}
	defer f.Close()

	if f.Type != elf.ET_REL {
		t.Errorf("type = %v, want ET_REL", f.Type)
	}
	if f.Machine != elf.EM_X86_64 {
		t.Errorf("machine = %v", f.Machine)
	}

	syms, err := f.Symbols()
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	bySym := map[string]elf.Symbol{}
	for _, s := range syms {
		bySym[s.Name] = s
	}

	fn0, ok := bySym["wn_function_0"]
	if !ok {
		t.Fatal("wn_function_0 not in symbol table")
	}
	if fn0.Size != 11 || fn0.Value != 0 {
		t.Errorf("wn_function_0 value=%d size=%d", fn0.Value, fn0.Size)
	}
	fn1, ok := bySym["wn_function_1"]
	if !ok {
		t.Fatal("wn_function_1 not in symbol table")
	}
	if fn1.Value != 16 {
		t.Errorf("wn_function_1 value = %d, want 16-byte alignment", fn1.Value)
	}
	if _, ok := bySym["wn_trampoline_0"]; !ok {
		t.Error("wn_trampoline_0 not in symbol table")
	}
	meta, ok := bySym["wn_metadata"]
	if !ok {
		t.Fatal("wn_metadata not in symbol table")
	}
	if meta.Size != uint64(len("metadata blob")) {
		t.Errorf("wn_metadata size = %d", meta.Size)
	}
	ext, ok := bySym["wn_probe_stack"]
	if !ok {
		t.Fatal("external symbol not in symbol table")
	}
	if ext.Section != elf.SHN_UNDEF {
		t.Errorf("external symbol section = %v, want SHN_UNDEF", ext.Section)
	}

	data := f.Section(".data")
	if data == nil {
		t.Fatal("no .data section")
	}
	blob, err := data.Data()
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != "metadata blob" {
		t.Errorf(".data = %q", blob)
	}

	relaSec := f.Section(".rela.text")
	if relaSec == nil {
		t.Fatal("no .rela.text section")
	}
	relaData, err := relaSec.Data()
	if err != nil {
		t.Fatal(err)
	}
	var relas []elf.Rela64
	r := bytes.NewReader(relaData)
	for r.Len() > 0 {
		var rela elf.Rela64
		if err := binary.Read(r, binary.LittleEndian, &rela); err != nil {
			t.Fatal(err)
		}
		relas = append(relas, rela)
	}
	if len(relas) != 2 {
		t.Fatalf("got %d relocations, want 2", len(relas))
	}
	if relas[0].Off != 1 || relas[0].Addend != -4 {
		t.Errorf("rela[0] off=%d addend=%d", relas[0].Off, relas[0].Addend)
	}
	if typ := elf.R_X86_64(elf.R_TYPE64(relas[0].Info)); typ != elf.R_X86_64_PLT32 {
		t.Errorf("rela[0] type = %v, want R_X86_64_PLT32", typ)
	}
	// Symbol indices are 1-based into the parsed symbol list.
	target0 := syms[elf.R_SYM64(relas[0].Info)-1]
	if target0.Name != "wn_function_1" {
		t.Errorf("rela[0] target = %q", target0.Name)
	}
	target1 := syms[elf.R_SYM64(relas[1].Info)-1]
	if target1.Name != "wn_probe_stack" {
		t.Errorf("rela[1] target = %q", target1.Name)
	}
}

func TestELFObjectARM64(t *testing.T) {
	target := wasmnative.Triple{OS: wasmnative.Linux, Arch: wasmnative.ARM64}
	raw, err := testBuilder(t, target).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("not a valid ELF object: %v", err)
	}
	defer f.Close()
	if f.Machine != elf.EM_AARCH64 {
		t.Errorf("machine = %v", f.Machine)
	}
}

func TestMachOObject(t *testing.T) {
	target := wasmnative.Triple{OS: wasmnative.Darwin, Arch: wasmnative.ARM64}
	b, err := New(target)
	if err != nil {
		t.Fatal(err)
	}
	b.AddFunction(0, compiler.CompiledFunction{
		Body: []byte{0, 0, 0, 0x94, 0xC0, 0x03, 0x5F, 0xD6},
		Relocations: []compiler.Relocation{
			{Offset: 0, Kind: compiler.RelocBranch, Target: compiler.FunctionTarget(1)},
		},
	})
	b.AddFunction(1, compiler.CompiledFunction{
		Body: []byte{0xC0, 0x03, 0x5F, 0xD6},
	})
	b.SetMetadata([]byte{1, 2, 3, 4})

	raw, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f, err := macho.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("not a valid Mach-O object: %v", err)
	}
	defer f.Close()

	if f.Type != macho.TypeObj {
		t.Errorf("type = %v, want MH_OBJECT", f.Type)
	}
	if f.Cpu != macho.CpuArm64 {
		t.Errorf("cpu = %v", f.Cpu)
	}

	text := f.Section("__text")
	if text == nil {
		t.Fatal("no __text section")
	}
	if text.Size != 8+8+4 {
		t.Errorf("__text size = %d", text.Size)
	}
	data := f.Section("__data")
	if data == nil {
		t.Fatal("no __data section")
	}
	blob, err := data.Data()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob, []byte{1, 2, 3, 4}) {
		t.Errorf("__data = %v", blob)
	}

	want := map[string]bool{"_wn_function_0": false, "_wn_function_1": false, "_wn_metadata": false}
	for _, s := range f.Symtab.Syms {
		if _, ok := want[s.Name]; ok {
			want[s.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("symbol %s not in symbol table", name)
		}
	}

	if len(text.Relocs) != 1 {
		t.Fatalf("got %d text relocations, want 1", len(text.Relocs))
	}
	rel := text.Relocs[0]
	if !rel.Extern || !rel.Pcrel || rel.Type != 2 {
		t.Errorf("reloc = %+v, want extern pcrel BRANCH26", rel)
	}
	if f.Symtab.Syms[rel.Value].Name != "_wn_function_1" {
		t.Errorf("reloc target = %q", f.Symtab.Syms[rel.Value].Name)
	}
}

func TestMachOArm64BranchAddend(t *testing.T) {
	target := wasmnative.Triple{OS: wasmnative.Darwin, Arch: wasmnative.ARM64}
	b, err := New(target)
	if err != nil {
		t.Fatal(err)
	}
	b.AddFunction(0, compiler.CompiledFunction{
		Body: []byte{0, 0, 0, 0x94, 0xC0, 0x03, 0x5F, 0xD6},
		Relocations: []compiler.Relocation{
			{Offset: 0, Addend: 8, Kind: compiler.RelocBranch, Target: compiler.FunctionTarget(1)},
		},
	})
	b.AddFunction(1, compiler.CompiledFunction{
		Body: []byte{0xC0, 0x03, 0x5F, 0xD6},
	})

	raw, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	f, err := macho.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("not a valid Mach-O object: %v", err)
	}
	defer f.Close()

	text := f.Section("__text")
	if text == nil {
		t.Fatal("no __text section")
	}
	if len(text.Relocs) != 2 {
		t.Fatalf("got %d relocations, want ADDEND + BRANCH26 pair", len(text.Relocs))
	}

	// The addend record carries the value in r_symbolnum and must not be
	// marked extern, or the loader reads it as a symbol-table index.
	addend := text.Relocs[0]
	if addend.Type != 10 || addend.Extern || addend.Pcrel {
		t.Errorf("addend record = %+v, want non-extern ARM64_RELOC_ADDEND", addend)
	}
	if addend.Value != 8 {
		t.Errorf("addend value = %d, want 8", addend.Value)
	}

	branch := text.Relocs[1]
	if branch.Type != 2 || !branch.Extern || !branch.Pcrel {
		t.Errorf("branch record = %+v, want extern pcrel ARM64_RELOC_BRANCH26", branch)
	}
	if branch.Addr != addend.Addr {
		t.Errorf("pair addresses differ: %d vs %d", branch.Addr, addend.Addr)
	}
	if f.Symtab.Syms[branch.Value].Name != "_wn_function_1" {
		t.Errorf("branch target = %q", f.Symtab.Syms[branch.Value].Name)
	}
}

func TestMachOAmd64PCRelAddend(t *testing.T) {
	target := wasmnative.Triple{OS: wasmnative.Darwin, Arch: wasmnative.AMD64}
	b, err := New(target)
	if err != nil {
		t.Fatal(err)
	}
	b.AddFunction(0, compiler.CompiledFunction{
		Body: []byte{0xE8, 0, 0, 0, 0, 0xC3},
		Relocations: []compiler.Relocation{
			{Offset: 1, Addend: -4, Kind: compiler.RelocBranch, Target: compiler.SymbolTarget("wn_probe_stack")},
		},
	})

	raw, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	f, err := macho.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("not a valid Mach-O object: %v", err)
	}
	defer f.Close()

	// The -4 addend cancels against the implicit next-instruction bias,
	// leaving zero in the patched field.
	text, err := f.Section("__text").Data()
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(text[1:]); got != 0 {
		t.Errorf("patched field = %#x, want 0", got)
	}
}

func TestBytesDeterministic(t *testing.T) {
	target := wasmnative.Triple{OS: wasmnative.Linux, Arch: wasmnative.AMD64}
	a, err := testBuilder(t, target).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	b, err := testBuilder(t, target).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical builders produced different objects")
	}
}

func TestUnknownFunctionRelocation(t *testing.T) {
	target := wasmnative.Triple{OS: wasmnative.Linux, Arch: wasmnative.AMD64}
	b, err := New(target)
	if err != nil {
		t.Fatal(err)
	}
	b.AddFunction(0, compiler.CompiledFunction{
		Body: []byte{0xE8, 0, 0, 0, 0},
		Relocations: []compiler.Relocation{
			{Offset: 1, Kind: compiler.RelocBranch, Target: compiler.FunctionTarget(9)},
		},
	})
	if _, err := b.Bytes(); err == nil {
		t.Fatal("expected error for relocation against unknown function")
	}
}
