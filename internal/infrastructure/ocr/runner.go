package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// stderrLimit bounds how much tool diagnostics are kept per invocation.
const stderrLimit = 8 << 10

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func NewExecRunner(logger *slog.Logger) Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return execRunner{logger: logger}
}

// Run executes the tool and returns its full stdout and the tail of its stderr. When the
// context ends first the error names the tool and wraps the context error.
func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrLimit}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	tool := filepath.Base(name)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%s interrupted: %w", tool, ctx.Err())
	}

	attrs := []any{"tool", tool, "elapsed_ms", time.Since(start).Milliseconds(), "stdout_bytes", stdout.Len()}
	if err != nil {
		r.logger.Warn("ocr.exec_failed", append(attrs, "args", args, "error", err, "stderr", stderr.String())...)
	} else {
		r.logger.Debug("ocr.exec_ok", attrs...)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// tailBuffer keeps the last limit bytes written to it. Tools print the actual failure last,
// after progress noise.
type tailBuffer struct {
	limit   int
	buf     []byte
	dropped bool
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.dropped = true
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte { return b.buf }

func (b *tailBuffer) String() string {
	if b.dropped {
		return "..." + string(b.buf)
	}
	return string(b.buf)
}

// HasBinary reports whether name resolves on PATH or as an absolute path.
func HasBinary(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
