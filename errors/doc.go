// Package errors provides structured error types for the native engine.
//
// Errors are categorized by Phase (which pipeline step failed) and Kind
// (error category). Every pipeline component surfaces a typed error to its
// caller; the engine never retries automatically, and the original error and
// its immediate cause (for example captured linker stderr) are preserved
// together.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindLinkFailed).
//		Tool("/usr/bin/cc").
//		Diagnostic(stderr).
//		Detail("linker exited with error").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.SymbolMissing("wn_function_3")
//	err := errors.MetadataTruncated(1024, 512)
//
// All errors implement the standard error interface and support errors.Is/As;
// two *Error values match under errors.Is when Phase and Kind agree.
package errors
