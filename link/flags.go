package link

import (
	wasmnative "github.com/wippyai/wasm-native"
)

// linkArgs builds the driver argument list producing a shared library from
// one relocatable object. Symbols the object leaves undefined (engine
// runtime hooks, imported function stubs) are resolved at load time, so
// the linker is told not to reject them.
func linkArgs(target wasmnative.Triple, objPath, outPath string) []string {
	args := []string{"-shared"}

	switch target.OS {
	case wasmnative.Darwin:
		args = append(args, "-Wl,-undefined,dynamic_lookup")
		args = append(args, "-arch", darwinArch(target.Arch))
	default:
		// No C runtime startup objects; the library carries only
		// compiled wasm code and data.
		args = append(args, "-nostartfiles", "-Wl,--unresolved-symbols=ignore-all")
	}

	args = append(args, "-o", outPath, objPath)
	return args
}

func darwinArch(arch wasmnative.Arch) string {
	if arch == wasmnative.AMD64 {
		return "x86_64"
	}
	return string(arch)
}
