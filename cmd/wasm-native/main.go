package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tetratelabs/wazero"
	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/engine"
	"github.com/wippyai/wasm-native/link"
	"github.com/wippyai/wasm-native/metadata"
	"github.com/wippyai/wasm-native/wasm"
	"go.uber.org/zap"
)

func main() {
	var (
		wasmFile  = flag.String("wasm", "", "Path to a wasm binary to inspect")
		libFile   = flag.String("lib", "", "Path to a compiled shared library to inspect")
		funcName  = flag.String("func", "", "Exported function to run with the reference interpreter")
		toolchain = flag.Bool("toolchain", false, "Probe and print the host linker driver")
		verbose   = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			engine.SetLogger(logger)
			link.SetLogger(logger)
		}
	}

	switch {
	case *toolchain:
		if err := probeToolchain(); err != nil {
			fail(err)
		}
	case *libFile != "":
		if err := inspectLibrary(*libFile); err != nil {
			fail(err)
		}
	case *wasmFile != "":
		if err := inspectModule(*wasmFile, *funcName); err != nil {
			fail(err)
		}
	default:
		fmt.Fprintln(os.Stderr, "Usage: wasm-native -wasm <file.wasm> [-func name]")
		fmt.Fprintln(os.Stderr, "       wasm-native -lib <file.so>")
		fmt.Fprintln(os.Stderr, "       wasm-native -toolchain")
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func probeToolchain() error {
	tc, err := link.Find()
	if err != nil {
		return err
	}
	fmt.Printf("Linker driver: %s\n", tc.Path)
	fmt.Printf("Host target:   %s\n", wasmnative.Host())
	return nil
}

// inspectLibrary loads a prebuilt artifact headless and prints its
// metadata.
func inspectLibrary(path string) error {
	e, err := engine.New(engine.Config{})
	if err != nil {
		return err
	}
	art, err := e.LoadLibrary(path)
	if err != nil {
		return err
	}

	meta := art.Metadata()
	fmt.Printf("Library:   %s\n", path)
	fmt.Printf("Target:    %s\n", art.Target())
	fmt.Printf("Functions: %d defined, %d imported\n", meta.NumLocalFuncs(), meta.NumImportedFuncs)
	fmt.Printf("Types:     %d\n", len(meta.Types))
	fmt.Printf("Memories:  %d\n", len(meta.Memories))
	fmt.Printf("Tables:    %d\n", len(meta.Tables))

	for _, imp := range meta.Imports {
		fmt.Printf("  import %s.%s (%s)\n", imp.Module, imp.Name, kindName(imp.Kind))
	}
	for _, exp := range meta.Exports {
		fmt.Printf("  export %s (%s, index %d)\n", exp.Name, kindName(exp.Kind), exp.Index)
	}
	for i := 0; i < art.FunctionCount(); i++ {
		fn, err := art.Function(uint32(i))
		if err != nil {
			return err
		}
		fmt.Printf("  function %d at %#x: %s, %d code bytes\n",
			i, fn.Addr(), signature(fn.Type()), fn.CodeLength())
	}
	return nil
}

// inspectModule parses a wasm binary, prints its structure, and optionally
// runs one exported function with the reference interpreter.
func inspectModule(path, funcName string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := wasm.ParseModuleValidate(data)
	if err != nil {
		return err
	}

	fmt.Printf("Module:    %s\n", path)
	fmt.Printf("Functions: %d defined, %d imported\n", len(m.Funcs), m.NumImportedFuncs())
	fmt.Printf("Types:     %d\n", len(m.Types))
	fmt.Printf("Exports:   %d\n", len(m.Exports))

	if funcName == "" {
		return nil
	}

	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, data)
	if err != nil {
		return err
	}
	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		return fmt.Errorf("function %q not exported", funcName)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return err
	}
	strs := make([]string, len(results))
	for i, r := range results {
		strs[i] = fmt.Sprintf("%d", r)
	}
	fmt.Printf("%s() = [%s]\n", funcName, strings.Join(strs, ", "))
	return nil
}

func kindName(k byte) string {
	switch k {
	case wasm.KindFunc:
		return "func"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

func signature(ft metadata.FuncType) string {
	params := make([]string, len(ft.Params))
	for i, p := range ft.Params {
		params[i] = p.String()
	}
	results := make([]string, len(ft.Results))
	for i, r := range ft.Results {
		results[i] = r.String()
	}
	return fmt.Sprintf("(%s) -> (%s)", strings.Join(params, ", "), strings.Join(results, ", "))
}
