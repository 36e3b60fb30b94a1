package link

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/wippyai/wasm-native/errors"
	"go.uber.org/zap"
)

// Candidate driver names per host OS, tried in order. The generic cc
// alias comes first so the system default wins when present.
var candidatesByOS = map[string][]string{
	"linux":   {"cc", "gcc", "clang"},
	"freebsd": {"cc", "gcc", "clang"},
	"darwin":  {"cc", "clang", "gcc"},
}

// Directories probed after PATH. Build environments frequently run with a
// stripped PATH that misses the package-manager prefixes.
var knownDirs = []string{
	"/usr/bin",
	"/usr/local/bin",
	"/opt/homebrew/bin",
	"/opt/local/bin",
}

// Toolchain is a discovered C compiler driver used for linking.
type Toolchain struct {
	// Path is the resolved driver executable.
	Path string
}

// Find locates a usable linker driver on the host: first via PATH lookup,
// then by probing well-known installation directories. Candidate order is
// fixed, so discovery is deterministic for a given filesystem state.
func Find() (*Toolchain, error) {
	candidates := candidatesByOS[runtime.GOOS]
	if candidates == nil {
		candidates = candidatesByOS["linux"]
	}

	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			Logger().Debug("toolchain found in PATH",
				zap.String("driver", name),
				zap.String("path", path))
			return &Toolchain{Path: path}, nil
		}
	}
	for _, dir := range knownDirs {
		for _, name := range candidates {
			path := filepath.Join(dir, name)
			if isExecutable(path) {
				Logger().Debug("toolchain found in known directory",
					zap.String("path", path))
				return &Toolchain{Path: path}, nil
			}
		}
	}
	return nil, errors.ToolchainMissing(candidates)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// Cache memoizes toolchain discovery across builds. A cached driver that
// later fails (deleted, replaced) can be dropped with Invalidate so the
// next Get re-probes.
type Cache struct {
	mu sync.Mutex
	tc *Toolchain
}

// Get returns the cached toolchain, running discovery on first use.
// Discovery failure is not cached; every Get retries until one succeeds.
func (c *Cache) Get() (*Toolchain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tc != nil {
		return c.tc, nil
	}
	tc, err := Find()
	if err != nil {
		return nil, err
	}
	c.tc = tc
	return tc, nil
}

// Invalidate drops the cached toolchain.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.tc = nil
	c.mu.Unlock()
}
