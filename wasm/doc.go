// Package wasm provides WebAssembly binary format parsing and encoding for
// the native engine.
//
// The engine consumes validated module structures; this package produces
// them from raw bytes and can re-encode modules constructed in memory. The
// subset implemented is the core WebAssembly 1.0 module structure plus
// shared-memory limits, passive data segments and the DataCount section.
// Function bodies are carried as opaque byte ranges: instruction selection
// is the external compiler's concern, and the engine only needs section
// structure, signatures, import/export descriptors, memory and table
// limits, and segment initializers.
//
// Parse a module:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// Encode a module built in memory:
//
//	encoded := module.Encode()
//
// Round-trip parsing and encoding preserves module semantics.
package wasm
