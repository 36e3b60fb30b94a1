// Package dylib loads shared libraries and resolves their exported
// symbols without cgo.
//
// It is a thin layer over the platform dynamic loader (dlopen/dlsym via
// purego) with one deliberate restriction: libraries are never unloaded.
// Compiled artifacts expose function pointers and metadata addresses into
// the mapping, and those must stay valid as long as any artifact handle
// exists, so every mapping is kept for the process lifetime.
package dylib
