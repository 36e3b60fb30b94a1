//go:build linux && amd64

package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ebitengine/purego"
	"github.com/tetratelabs/wazero"
	"github.com/wippyai/wasm-native/link"
)

// ret42 is mov eax, 42; ret. The canned backend emits it for every
// function, so any artifact call must produce 42.
var ret42 = []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}

func buildAnswer(t *testing.T) *Artifact {
	t.Helper()
	if _, err := link.Find(); err != nil {
		t.Skipf("no C toolchain on host: %v", err)
	}
	e, err := New(Config{Compiler: &cannedCompiler{pic: true, body: ret42}})
	if err != nil {
		t.Fatal(err)
	}
	art, err := e.Build(context.Background(), answerModule())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return art
}

func TestBuildAndCall(t *testing.T) {
	art := buildAnswer(t)

	if art.FunctionCount() != 1 {
		t.Fatalf("FunctionCount = %d", art.FunctionCount())
	}
	fn, err := art.Function(0)
	if err != nil {
		t.Fatal(err)
	}
	r1, _, _ := purego.SyscallN(fn.Addr())
	if uint32(r1) != 42 {
		t.Errorf("function returned %d, want 42", uint32(r1))
	}
	r1, _, _ = purego.SyscallN(fn.TrampolineAddr())
	if uint32(r1) != 42 {
		t.Errorf("trampoline returned %d, want 42", uint32(r1))
	}
	if got := fn.Code(); len(got) != len(ret42) || got[0] != 0xB8 {
		t.Errorf("Code() = %x", got)
	}
}

func TestArtifactMatchesReferenceInterpreter(t *testing.T) {
	art := buildAnswer(t)

	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, answerModule())
	if err != nil {
		t.Fatalf("reference instantiate: %v", err)
	}
	res, err := mod.ExportedFunction("answer").Call(ctx)
	if err != nil {
		t.Fatalf("reference call: %v", err)
	}

	fn, ok := art.ExportedFunction("answer")
	if !ok {
		t.Fatal("answer not exported by artifact")
	}
	r1, _, _ := purego.SyscallN(fn.Addr())
	if uint32(r1) != uint32(res[0]) {
		t.Errorf("native returned %d, reference returned %d", uint32(r1), res[0])
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	art := buildAnswer(t)

	blob, err := art.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	path := filepath.Join(t.TempDir(), "answer.so")
	if err := os.WriteFile(path, blob, 0o755); err != nil {
		t.Fatal(err)
	}

	headless, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := headless.LoadLibrary(path)
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}
	fn, ok := loaded.ExportedFunction("answer")
	if !ok {
		t.Fatal("answer not exported after round trip")
	}
	r1, _, _ := purego.SyscallN(fn.Addr())
	if uint32(r1) != 42 {
		t.Errorf("loaded function returned %d, want 42", uint32(r1))
	}
	if loaded.Metadata().NumLocalFuncs() != 1 {
		t.Errorf("NumLocalFuncs = %d", loaded.Metadata().NumLocalFuncs())
	}
}

func TestConcurrentBuilds(t *testing.T) {
	if _, err := link.Find(); err != nil {
		t.Skipf("no C toolchain on host: %v", err)
	}
	e, err := New(Config{Compiler: &cannedCompiler{pic: true, body: ret42}})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			art, err := e.Build(context.Background(), answerModule())
			if err != nil {
				t.Errorf("Build: %v", err)
				return
			}
			fn, err := art.Function(0)
			if err != nil {
				t.Error(err)
				return
			}
			if r1, _, _ := purego.SyscallN(fn.Addr()); uint32(r1) != 42 {
				t.Errorf("got %d, want 42", uint32(r1))
			}
		}()
	}
	wg.Wait()
}

func TestScratchDirRemoved(t *testing.T) {
	if _, err := link.Find(); err != nil {
		t.Skipf("no C toolchain on host: %v", err)
	}
	work := t.TempDir()
	e, err := New(Config{Compiler: &cannedCompiler{pic: true, body: ret42}, WorkDir: work})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Build(context.Background(), answerModule()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	entries, err := os.ReadDir(work)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch directories left behind: %v", entries)
	}
}
