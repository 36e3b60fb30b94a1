// Package wasmnative implements a native-code execution engine for a modular
// WebAssembly runtime.
//
// The engine turns a validated WebAssembly module into natively executable
// code by emitting a platform object file, invoking the host C toolchain to
// link it into a shared library, and dynamically loading that library back
// into the running process. The produced shared library is a persistent
// artifact: it can be cached to disk, shipped, and loaded by a process that
// never runs a compiler at all ("headless" mode).
//
// # Architecture Overview
//
// The repository is organized into packages along the pipeline:
//
//	wasmnative/         Root package with target triple and format types
//	├── engine/         Pipeline orchestration, Engine and Artifact
//	├── compiler/       Contract consumed from the external code generator
//	├── wasm/           Core WASM binary parsing, encoding and validation
//	├── metadata/       Versioned, zero-copy module metadata codec
//	├── objfile/        Native object file assembly (ELF, Mach-O)
//	├── link/           Host C toolchain discovery and invocation
//	├── dylib/          Shared library loading and symbol resolution
//	└── errors/         Structured error types for debugging
//
// Data flows leaves-first: module bytes are parsed by wasm, compiled through
// the compiler contract, assembled by objfile with an embedded metadata blob,
// linked by link, loaded by dylib, and exposed to the VM as an engine.Artifact.
//
// # Quick Start
//
// Compile a module and call through the resulting artifact:
//
//	eng, err := engine.New(engine.Config{Compiler: myCompiler})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	art, err := eng.Build(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fn, _ := art.Function(0)
//	// fn.Addr() is valid for the lifetime of art.
//
// Load a previously built shared library without a compiler:
//
//	eng, _ := engine.New(engine.Config{}) // headless
//	art, err := eng.LoadLibrary("module.so")
//
// # Thread Safety
//
// Engine configuration is read-only after construction; an Engine services
// many concurrent Build calls, each with its own scoped temporary directory.
// Artifacts are immutable after construction and safe for concurrent reads.
package wasmnative
