// Package metadata defines the module description embedded in natively
// compiled artifacts and its binary codec.
//
// A compiled shared library carries everything needed to instantiate the
// module without the original wasm binary: function signatures, import and
// export listings, memory and table plans, and active segment initializers.
// Encode packs that description into a versioned little-endian blob that is
// placed in the library's data section; Decode reads it back directly from
// the loaded library's memory, aliasing strings and arrays in place rather
// than copying them out.
//
// The format is strict. Decode rejects unknown versions, truncated payloads
// and out-of-range internal offsets outright, so a stale or corrupted
// artifact fails at load time instead of misbehaving later.
package metadata
