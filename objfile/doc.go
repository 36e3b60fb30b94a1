// Package objfile emits relocatable native object files from compiled
// function bodies.
//
// A Builder collects machine code for module-defined functions and their
// call trampolines plus the serialized metadata blob, lays them out into a
// text and a data section, and serializes the result in the target's
// container format: ELF64 for Linux and FreeBSD targets, 64-bit Mach-O for
// macOS. Windows (COFF) emission is not implemented and is rejected when
// the builder is created.
//
// Function code is exported under deterministic symbol names
// (wn_function_N, wn_trampoline_N, wn_metadata) so the loader can resolve
// everything back out of the linked shared library by index alone.
// Relocations recorded by the compiler are translated into the container's
// native relocation records; references to engine-provided runtime symbols
// stay undefined for the system linker and dynamic loader to satisfy.
package objfile
