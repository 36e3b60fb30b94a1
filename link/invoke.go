package link

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	wasmnative "github.com/wippyai/wasm-native"
	"github.com/wippyai/wasm-native/errors"
	"go.uber.org/zap"
)

// Link runs the driver to produce a shared library at outPath from the
// relocatable object at objPath. The subprocess inherits the parent
// environment; stderr is captured and attached to the returned error.
func (t *Toolchain) Link(ctx context.Context, target wasmnative.Triple, objPath, outPath string) error {
	args := linkArgs(target, objPath, outPath)

	Logger().Debug("invoking linker",
		zap.String("tool", t.Path),
		zap.Strings("args", args))

	cmd := exec.CommandContext(ctx, t.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		diag := strings.TrimSpace(stderr.String())
		Logger().Warn("linker failed",
			zap.String("tool", t.Path),
			zap.Duration("elapsed", elapsed),
			zap.String("stderr", diag),
			zap.Error(err))
		return errors.LinkFailed(t.Path, diag, err)
	}

	Logger().Debug("linker succeeded",
		zap.String("output", outPath),
		zap.Duration("elapsed", elapsed))
	return nil
}
