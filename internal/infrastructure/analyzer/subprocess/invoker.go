// Package subprocess runs the external analyzer as a child process:
// <interpreter> <script> <filePath> <submissionId>, one JSON document on stdout.
package subprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	DefaultInterpreter    = "python"
	DefaultMaxOutputBytes = 200 * 1024 * 1024
	stderrTailBytes       = 2048
)

var (
	ErrScriptNotConfigured = errors.New("analyzer script path is not configured")
	ErrEmptyOutput         = errors.New("analyzer returned empty output")
	ErrOutputTooLarge      = errors.New("analyzer output exceeds limit")
)

type Config struct {
	Interpreter    string
	ScriptPath     string
	MaxOutputBytes int64
	// Timeout of zero leaves the child running until it exits.
	Timeout time.Duration
}

type Invoker struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Invoker {
	if strings.TrimSpace(cfg.Interpreter) == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{cfg: cfg, logger: logger}
}

func (i *Invoker) Analyze(ctx context.Context, filePath, submissionID string) (json.RawMessage, error) {
	out, err := i.run(ctx, filePath, submissionID)
	if err != nil {
		return nil, fmt.Errorf("analyzer execution failed: %w", err)
	}
	return out, nil
}

func (i *Invoker) run(ctx context.Context, filePath, submissionID string) (json.RawMessage, error) {
	if strings.TrimSpace(i.cfg.ScriptPath) == "" {
		return nil, ErrScriptNotConfigured
	}
	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.Command(i.cfg.Interpreter, i.cfg.ScriptPath, filePath, submissionID)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := &cappedBuffer{limit: i.cfg.MaxOutputBytes}
	stderr := &cappedBuffer{limit: stderrTailBytes, keepTail: true}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	runErr := runWithContext(ctx, cmd)

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		i.logger.Warn("analyzer_stderr",
			"submission_id", submissionID,
			"stderr", msg,
			"stderr_bytes", stderr.total,
		)
	}
	i.logger.Debug("analyzer_finished",
		"submission_id", submissionID,
		"duration_ms", time.Since(started).Milliseconds(),
		"stdout_bytes", stdout.total,
	)

	if runErr != nil {
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			return nil, fmt.Errorf("%w: %s", runErr, tail)
		}
		return nil, runErr
	}
	if stdout.overflow {
		return nil, fmt.Errorf("%w: %d bytes", ErrOutputTooLarge, i.cfg.MaxOutputBytes)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("analyzer output is not valid JSON: %s", preview(out))
	}
	return json.RawMessage(out), nil
}

// runWithContext kills the whole process group on cancellation so that
// interpreters spawning their own workers do not outlive the request.
func runWithContext(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		err := <-done
		if err == nil {
			err = ctx.Err()
		}
		return fmt.Errorf("command timed out: %w", err)
	}
}

// cappedBuffer keeps at most limit bytes and keeps draining the pipe past it,
// so a chatty child never blocks on a full pipe.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	keepTail bool
	total    int64
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.total += int64(len(p))
	if b.keepTail {
		b.buf.Write(p)
		if extra := int64(b.buf.Len()) - b.limit; extra > 0 {
			b.buf.Next(int(extra))
			b.overflow = true
		}
		return len(p), nil
	}

	room := b.limit - int64(b.buf.Len())
	if room <= 0 {
		b.overflow = true
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.overflow = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }

func preview(out []byte) string {
	const max = 200
	if len(out) <= max {
		return string(out)
	}
	return string(out[:max]) + "..."
}
