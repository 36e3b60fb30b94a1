// Package compiler defines the contract between the native engine and the
// external instruction-selecting code generator.
//
// The engine consumes a Compiler as an opaque function from (module, target)
// to per-function machine code, relocation lists and call trampolines. No
// backend ships in this repository; register allocation and WebAssembly
// semantics live entirely behind this interface.
package compiler
