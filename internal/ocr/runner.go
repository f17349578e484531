package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// maxLoggedStderr bounds the stderr excerpt attached to failure logs.
const maxLoggedStderr = 8 << 10

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	start := time.Now()
	err := cmd.Run()
	log := r.logger.With("cmd", name, "argc", len(args), "duration_ms", time.Since(start).Milliseconds())

	if err == nil {
		log.Debug("ocr.exec.ok", "stdout_bytes", stdout.Len())
		return stdout.Bytes(), stderr.Bytes(), nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	excerpt := stderr.Bytes()
	if len(excerpt) > maxLoggedStderr {
		excerpt = append(excerpt[:maxLoggedStderr:maxLoggedStderr], "...(truncated)"...)
	}
	log.Error("ocr.exec.failed", "exit_code", exitCode, "error", err, "stderr", string(excerpt))
	return stdout.Bytes(), stderr.Bytes(), err
}
