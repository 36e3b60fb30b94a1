// Package engine orchestrates the native build pipeline and manages loaded
// artifacts.
//
// A full engine takes a WebAssembly binary through parse, compile, object
// emission, system-linker invocation and dynamic loading in one Build
// call. A headless engine (no compiler configured) only loads libraries
// built elsewhere, which keeps deployment hosts free of both the backend
// and a C toolchain.
//
// Artifacts tie together the loaded library, its decoded metadata and the
// resolved per-function code addresses. They are immutable and safe for
// concurrent use.
package engine
