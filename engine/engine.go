package engine

import (
	"context"
	"os"
	"path/filepath"

	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/compiler"
	"github.com/wippyai/wasm-native/errors"
	"github.com/wippyai/wasm-native/link"
	"github.com/wippyai/wasm-native/metadata"
	"github.com/wippyai/wasm-native/objfile"
	"github.com/wippyai/wasm-native/wasm"
	"go.uber.org/zap"
)

// Config configures an Engine.
type Config struct {
	// Compiler is the code generation backend. A nil Compiler makes the
	// engine headless: it can load prebuilt libraries but not build.
	Compiler compiler.Compiler

	// Target selects the (OS, architecture) built artifacts run on.
	// The zero value means the host.
	Target wasmnative.Triple

	// WorkDir is where per-build scratch directories are created.
	// Empty means the system temp directory.
	WorkDir string

	// KeepTemp leaves each build's scratch directory behind for
	// debugging instead of removing it.
	KeepTemp bool

	// Logger receives this engine's log output. Nil means the package
	// logger, which defaults to a no-op. The link package keeps its own
	// logger; configure it with link.SetLogger.
	Logger *zap.Logger
}

// Engine builds WebAssembly modules into native shared libraries and
// loads them back as artifacts. An Engine is safe for concurrent use;
// concurrent Builds each get their own scratch directory and the
// toolchain cache is internally synchronized.
type Engine struct {
	compiler compiler.Compiler
	target   wasmnative.Triple
	workDir  string
	keepTemp bool
	logger   *zap.Logger

	toolchain link.Cache
}

// New creates an engine from cfg.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}
	target := cfg.Target
	if target.IsZero() {
		target = wasmnative.Host()
	}
	if target.BinaryFormat() == wasmnative.COFF {
		return nil, errors.Unsupported(errors.PhaseConfig, "target "+target.String())
	}
	return &Engine{
		compiler: cfg.Compiler,
		target:   target,
		workDir:  cfg.WorkDir,
		keepTemp: cfg.KeepTemp,
		logger:   logger,
	}, nil
}

// Target returns the triple this engine builds for.
func (e *Engine) Target() wasmnative.Triple {
	return e.target
}

// Headless reports whether the engine was created without a compiler.
func (e *Engine) Headless() bool {
	return e.compiler == nil
}

// Build compiles a WebAssembly binary into a native shared library, loads
// it, and returns the resulting artifact. The intermediate object and
// library files live in a scratch directory removed before Build returns;
// the loaded library's mapping stays valid for the process lifetime.
func (e *Engine) Build(ctx context.Context, wasmBytes []byte) (*Artifact, error) {
	if e.compiler == nil {
		return nil, errors.CompilerUnavailable()
	}

	// Everything that can fail cheaply is checked before the linker
	// subprocess is ever spawned.
	if !e.target.IsHost() {
		return nil, errors.UnsupportedCombination(e.compiler.Name(), e.target.String(),
			"cross-built libraries cannot be loaded into this process")
	}
	if !e.compiler.PositionIndependent(e.target) {
		return nil, errors.UnsupportedCombination(e.compiler.Name(), e.target.String(),
			"backend does not emit position-independent code")
	}

	mod, err := wasm.ParseModuleValidate(wasmBytes)
	if err != nil {
		return nil, err
	}

	compiled, err := e.compiler.Compile(mod, e.target)
	if err != nil {
		return nil, errors.Compilation(err)
	}
	numLocal := len(mod.Funcs)
	if len(compiled.Functions) != numLocal {
		return nil, errors.Internal(errors.PhaseCompile,
			"backend produced %d functions for %d defined", len(compiled.Functions), numLocal)
	}
	if len(compiled.Trampolines) != numLocal {
		return nil, errors.Internal(errors.PhaseCompile,
			"backend produced %d trampolines for %d defined functions", len(compiled.Trampolines), numLocal)
	}

	bodyLengths := make([]uint32, numLocal)
	for i, fn := range compiled.Functions {
		bodyLengths[i] = uint32(len(fn.Body))
	}
	meta, err := metadata.FromModule(mod, bodyLengths)
	if err != nil {
		return nil, err
	}
	blob, err := metadata.Encode(meta)
	if err != nil {
		return nil, err
	}

	builder, err := objfile.New(e.target)
	if err != nil {
		return nil, err
	}
	for i, fn := range compiled.Functions {
		builder.AddFunction(uint32(i), fn)
	}
	for i, fn := range compiled.Trampolines {
		builder.AddTrampoline(uint32(i), fn)
	}
	builder.SetMetadata(blob)
	object, err := builder.Bytes()
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(e.workDir, "wasm-native-build-*")
	if err != nil {
		return nil, errors.ObjectIO("create scratch directory", err)
	}
	if !e.keepTemp {
		defer os.RemoveAll(scratch)
	}

	objPath := filepath.Join(scratch, "module.o")
	if err := os.WriteFile(objPath, object, 0o644); err != nil {
		return nil, errors.ObjectIO("write object file", err)
	}

	tc, err := e.toolchain.Get()
	if err != nil {
		return nil, err
	}
	libPath := filepath.Join(scratch, e.target.LibraryName("module"))
	if err := tc.Link(ctx, e.target, objPath, libPath); err != nil {
		// The cached driver may have vanished since discovery; force a
		// fresh probe on the next build.
		e.toolchain.Invalidate()
		return nil, err
	}

	// The library bytes are retained in memory so the artifact can be
	// serialized after the scratch directory is gone.
	libBytes, err := os.ReadFile(libPath)
	if err != nil {
		return nil, errors.ObjectIO("read linked library", err)
	}

	art, err := loadArtifact(libPath, e.target, numLocal)
	if err != nil {
		return nil, err
	}
	art.libBytes = libBytes

	e.logger.Info("module built",
		zap.String("target", e.target.String()),
		zap.Int("functions", numLocal),
		zap.Int("library_bytes", len(libBytes)))
	return art, nil
}

// LoadLibrary loads a previously built shared library as an artifact.
// It works on headless engines; no compiler or toolchain is involved.
func (e *Engine) LoadLibrary(path string) (*Artifact, error) {
	head := make([]byte, 8)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.LoadFailed(path, err)
	}
	n, _ := f.Read(head)
	f.Close()
	if !wasmnative.IsNativeArtifact(head[:n], e.target.BinaryFormat()) {
		return nil, errors.New(errors.PhaseLoad, errors.KindBadFormat).
			Detail("%q is not a %s shared library", path, e.target.BinaryFormat()).
			Build()
	}
	art, err := loadArtifact(path, e.target, -1)
	if err != nil {
		return nil, err
	}
	e.logger.Info("library loaded",
		zap.String("path", path),
		zap.Int("functions", len(art.funcAddrs)))
	return art, nil
}
