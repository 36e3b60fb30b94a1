package wasmnative

import (
	"fmt"
	"runtime"
	"strings"
)

// OS identifies a target operating system. Values follow GOOS naming.
type OS string

// Supported operating systems.
const (
	Linux   OS = "linux"
	Darwin  OS = "darwin"
	FreeBSD OS = "freebsd"
	Windows OS = "windows"
)

// Arch identifies a target CPU architecture. Values follow GOARCH naming.
type Arch string

// Supported architectures.
const (
	AMD64 Arch = "amd64"
	ARM64 Arch = "arm64"
)

// Format identifies a native object / shared library container format.
type Format int

// Object file formats by operating system.
const (
	ELF Format = iota
	MachO
	COFF
)

func (f Format) String() string {
	switch f {
	case ELF:
		return "elf"
	case MachO:
		return "mach-o"
	case COFF:
		return "coff"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Triple identifies the (operating system, architecture) pair a build
// targets. The zero value is not valid; use Host or ParseTriple.
type Triple struct {
	OS   OS
	Arch Arch
}

// Host returns the triple of the running process.
func Host() Triple {
	return Triple{OS: OS(runtime.GOOS), Arch: Arch(runtime.GOARCH)}
}

// ParseTriple parses an "os/arch" pair such as "linux/amd64".
func ParseTriple(s string) (Triple, error) {
	osName, arch, ok := strings.Cut(s, "/")
	if !ok || osName == "" || arch == "" {
		return Triple{}, fmt.Errorf("invalid target triple %q, expected os/arch", s)
	}
	return Triple{OS: OS(osName), Arch: Arch(arch)}, nil
}

func (t Triple) String() string {
	return string(t.OS) + "/" + string(t.Arch)
}

// IsZero reports whether the triple is unset.
func (t Triple) IsZero() bool {
	return t.OS == "" && t.Arch == ""
}

// IsHost reports whether the triple matches the running process.
func (t Triple) IsHost() bool {
	return t == Host()
}

// BinaryFormat returns the object file format used on the target OS.
func (t Triple) BinaryFormat() Format {
	switch t.OS {
	case Darwin:
		return MachO
	case Windows:
		return COFF
	default:
		return ELF
	}
}

// LibExt returns the shared library file extension for the target OS,
// without the leading dot.
func (t Triple) LibExt() string {
	switch t.OS {
	case Darwin:
		return "dylib"
	case Windows:
		return "dll"
	default:
		return "so"
	}
}

// LibraryName returns base with the target's shared library extension.
func (t Triple) LibraryName(base string) string {
	return base + "." + t.LibExt()
}

// Shared library magic headers, used to classify candidate artifact bytes
// without parsing the full container.
var (
	magicELF64   = []byte{0x7f, 'E', 'L', 'F', 2}
	magicELF32   = []byte{0x7f, 'E', 'L', 'F', 1}
	magicMachO64 = []byte{0xcf, 0xfa, 0xed, 0xfe}
	magicCOFF    = []byte{'M', 'Z'}
)

// IsNativeArtifact reports whether b starts like a shared library in the
// given format. It checks only the container magic; a true result does not
// guarantee the library carries engine metadata.
func IsNativeArtifact(b []byte, f Format) bool {
	switch f {
	case ELF:
		return hasPrefix(b, magicELF64) || hasPrefix(b, magicELF32)
	case MachO:
		return hasPrefix(b, magicMachO64)
	case COFF:
		return hasPrefix(b, magicCOFF)
	default:
		return false
	}
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i, c := range prefix {
		if b[i] != c {
			return false
		}
	}
	return true
}
