// Package link discovers the host C toolchain and drives it to turn
// relocatable objects into shared libraries.
//
// No linking logic lives in this repository: the system compiler driver
// (cc, gcc or clang) is located once, cached, and invoked as a subprocess
// per build. Driver discovery tries PATH first and falls back to the usual
// installation directories, in a fixed order so the same machine always
// picks the same driver. Linker stderr is captured and surfaced verbatim
// in link failures.
package link
