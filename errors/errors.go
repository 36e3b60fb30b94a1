package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the build pipeline the error occurred
type Phase string

const (
	PhaseParse    Phase = "parse"    // module byte parsing
	PhaseValidate Phase = "validate" // module validation
	PhaseCompile  Phase = "compile"  // external code generation
	PhaseObject   Phase = "object"   // object file assembly
	PhaseLink     Phase = "link"     // toolchain invocation
	PhaseLoad     Phase = "load"     // dynamic loading
	PhaseMetadata Phase = "metadata" // metadata blob codec
	PhaseConfig   Phase = "config"   // engine configuration
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported       Kind = "unsupported"
	KindUnsupportedCombo  Kind = "unsupported_combination"
	KindCompilerMissing   Kind = "compiler_unavailable"
	KindIO                Kind = "io"
	KindToolchainMissing  Kind = "toolchain_missing"
	KindLinkFailed        Kind = "link_failed"
	KindSymbolMissing     Kind = "symbol_missing"
	KindBadFormat         Kind = "bad_format"
	KindVersionMismatch   Kind = "version_mismatch"
	KindTruncated         Kind = "truncated"
	KindInvalidData       Kind = "invalid_data"
	KindInternal          Kind = "internal"
	KindCompilationFailed Kind = "compilation_failed"
)

// Error is the structured error type used throughout the engine
type Error struct {
	Cause      error
	Phase      Phase
	Kind       Kind
	Symbol     string // offending symbol name, if any
	Tool       string // toolchain executable, if any
	Detail     string
	Diagnostic string // captured subprocess output, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Symbol != "" {
		b.WriteString(": symbol ")
		b.WriteString(strconvQuote(e.Symbol))
	}
	if e.Tool != "" {
		b.WriteString(": ")
		b.WriteString(e.Tool)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	if e.Diagnostic != "" {
		b.WriteString("\n")
		b.WriteString(indent(e.Diagnostic))
	}

	return b.String()
}

func strconvQuote(s string) string {
	return fmt.Sprintf("%q", s)
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  | " + l
	}
	return strings.Join(lines, "\n")
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Symbol sets the offending symbol name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Tool sets the toolchain executable
func (b *Builder) Tool(path string) *Builder {
	b.err.Tool = path
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Diagnostic sets captured subprocess output
func (b *Builder) Diagnostic(out string) *Builder {
	b.err.Diagnostic = out
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Compilation wraps an error from the external compiler
func Compilation(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompilationFailed,
		Detail: "compile module",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported feature/operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// UnsupportedCombination reports a (backend, platform) pair known not to
// support shared library output. It is raised before any subprocess runs.
func UnsupportedCombination(backend, target, reason string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindUnsupportedCombo,
		Detail: fmt.Sprintf("backend %q cannot target %s: %s", backend, target, reason),
	}
}

// CompilerUnavailable reports an operation that needs compilation requested
// from a headless engine.
func CompilerUnavailable() *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindCompilerMissing,
		Detail: "engine has no compiler; headless mode can only load prebuilt libraries",
	}
}

// ObjectIO reports an I/O failure while writing the object file
func ObjectIO(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseObject,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// Internal reports an invariant violation; these are defects, not user errors
func Internal(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// ToolchainMissing reports that no usable linker was found
func ToolchainMissing(candidates []string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindToolchainMissing,
		Detail: fmt.Sprintf("no usable linker found (tried %s)", strings.Join(candidates, ", ")),
	}
}

// LinkFailed reports a non-zero linker exit with its captured diagnostics
func LinkFailed(tool, diagnostic string, cause error) *Error {
	return &Error{
		Phase:      PhaseLink,
		Kind:       KindLinkFailed,
		Tool:       tool,
		Detail:     "linker exited with error",
		Diagnostic: diagnostic,
		Cause:      cause,
	}
}

// LoadFailed reports a dynamic load failure
func LoadFailed(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindBadFormat,
		Detail: fmt.Sprintf("load shared library %q", path),
		Cause:  cause,
	}
}

// SymbolMissing reports an expected exported symbol absent after loading.
// This indicates an object builder / linker mismatch, never an absent
// WebAssembly function.
func SymbolMissing(name string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSymbolMissing,
		Symbol: name,
		Detail: "expected symbol not exported by library",
	}
}

// MetadataBadMagic reports an unrecognized metadata format tag
func MetadataBadMagic(got uint32) *Error {
	return &Error{
		Phase:  PhaseMetadata,
		Kind:   KindBadFormat,
		Detail: fmt.Sprintf("unrecognized metadata magic 0x%08x", got),
	}
}

// MetadataVersion reports a metadata format version mismatch
func MetadataVersion(got, want uint16) *Error {
	return &Error{
		Phase:  PhaseMetadata,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("metadata version %d, expected %d", got, want),
	}
}

// MetadataTruncated reports a declared payload length not matching the
// available bytes
func MetadataTruncated(declared, available int) *Error {
	return &Error{
		Phase:  PhaseMetadata,
		Kind:   KindTruncated,
		Detail: fmt.Sprintf("metadata declares %d payload bytes, %d available", declared, available),
	}
}

// MetadataInvalid reports structurally invalid metadata content
func MetadataInvalid(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseMetadata,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// ParseFailed wraps a module parsing error
func ParseFailed(cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: "parse module",
		Cause:  cause,
	}
}

// ValidateFailed wraps a module validation error
func ValidateFailed(cause error) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidData,
		Detail: "validate module",
		Cause:  cause,
	}
}
