// Package runner starts external conversion tools as child processes.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/stackvity/asset-compiler/pkg/dispatch/convertors/external"
)

const (
	// maxLogOutputBytes limits the size of stderr quoted in errors and logs.
	maxLogOutputBytes = 1024
	// maxReadBytes caps captured stdout/stderr so a runaway tool cannot exhaust memory.
	maxReadBytes = 10 * 1024 * 1024
)

// ErrOutputTooLarge is returned when a tool writes more than the capture limit to stdout.
var ErrOutputTooLarge = errors.New("tool output exceeded capture limit")

// execRunner implements external.ToolRunner using os/exec.
type execRunner struct {
	logger   *slog.Logger
	maxBytes int64
}

// NewExecRunner creates a runner that executes tools as external processes.
func NewExecRunner(loggerHandler slog.Handler) external.ToolRunner {
	if loggerHandler == nil {
		loggerHandler = slog.DiscardHandler
	}
	return &execRunner{
		logger:   slog.New(loggerHandler).With(slog.String("component", "toolRunner")),
		maxBytes: maxReadBytes,
	}
}

// Run starts command, writes stdin to it and returns what it printed on
// stdout. A non-zero exit, a cancelled context or an oversized stdout are
// errors; stderr is quoted in the error of a failed run.
func (r *execRunner) Run(ctx context.Context, command []string, stdin []byte) ([]byte, error) {
	if len(command) == 0 {
		return nil, errors.New("tool command cannot be empty")
	}
	logArgs := []any{slog.String("command", command[0])}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe for '%s': %w", command[0], err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe for '%s': %w", command[0], err)
	}

	if err := cmd.Start(); err != nil {
		r.logger.Error("Failed to start tool process", append(logArgs, slog.String("args", strings.Join(command, " ")), slog.Any("error", err))...)
		return nil, fmt.Errorf("failed to start '%s': %w", command[0], err)
	}
	r.logger.Debug("Tool process started", logArgs...)

	var wg sync.WaitGroup
	var stdout, stderr []byte
	var stdoutErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		stdout, stdoutErr = r.capture(stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		// Truncated stderr is still useful for diagnostics.
		stderr, _ = r.capture(stderrPipe)
	}()
	// Pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	stderrText := strings.TrimSpace(string(stderr))
	if len(stderrText) > maxLogOutputBytes {
		stderrText = stderrText[:maxLogOutputBytes] + "... (truncated)"
	}
	if stderrText != "" {
		logArgs = append(logArgs, slog.String("stderr", stderrText))
	}

	if ctx.Err() != nil {
		r.logger.Error("Tool execution cancelled or timed out", append(logArgs, slog.Any("error", ctx.Err()))...)
		return nil, fmt.Errorf("'%s' cancelled: %w", command[0], ctx.Err())
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.logger.Debug("Tool exited with an error", append(logArgs, slog.Int("exitCode", exitCode))...)
		if stderrText != "" {
			return nil, fmt.Errorf("'%s' exited with code %d: %w: %s", command[0], exitCode, waitErr, stderrText)
		}
		return nil, fmt.Errorf("'%s' exited with code %d: %w", command[0], exitCode, waitErr)
	}
	if stdoutErr != nil {
		return nil, fmt.Errorf("reading stdout of '%s': %w", command[0], stdoutErr)
	}

	r.logger.Debug("Tool finished successfully", logArgs...)
	return stdout, nil
}

// capture reads at most maxBytes and drains the rest so the child never
// blocks on a full pipe.
func (r *execRunner) capture(rd io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rd, r.maxBytes+1))
	if err != nil && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EPIPE) {
		return buf.Bytes(), err
	}
	if n > r.maxBytes {
		_, _ = io.Copy(io.Discard, rd)
		return buf.Bytes()[:r.maxBytes], ErrOutputTooLarge
	}
	return buf.Bytes(), nil
}
