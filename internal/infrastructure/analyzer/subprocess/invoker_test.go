package subprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func helperInvoker(t *testing.T, mode string, cfg Config) *Invoker {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("HELPER_MODE", mode)
	cfg.Interpreter = os.Args[0]
	cfg.ScriptPath = "-test.run=TestHelperProcessAnalyzer"
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAnalyzeParsesJSONAndPassesArgs(t *testing.T) {
	inv := helperInvoker(t, "echo", Config{})

	out, err := inv.Analyze(context.Background(), "/tmp/upload-1.pdf", "sub-42")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	want := `{"file":"/tmp/upload-1.pdf","id":"sub-42","plagiarismScore":0.4}`
	if string(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}
}

func TestAnalyzeToleratesStderrWarnings(t *testing.T) {
	inv := helperInvoker(t, "warn", Config{})

	out, err := inv.Analyze(context.Background(), "f.pdf", "sub-1")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if string(out) != `{"ok":true}` {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestAnalyzeEmptyOutput(t *testing.T) {
	inv := helperInvoker(t, "empty", Config{})

	_, err := inv.Analyze(context.Background(), "f.pdf", "sub-1")
	if !errors.Is(err, ErrEmptyOutput) {
		t.Fatalf("expected empty output error, got %v", err)
	}
	if !strings.Contains(err.Error(), "empty output") {
		t.Fatalf("expected message to mention empty output, got %q", err.Error())
	}
}

func TestAnalyzeInvalidJSON(t *testing.T) {
	inv := helperInvoker(t, "garbage", Config{})

	_, err := inv.Analyze(context.Background(), "f.pdf", "sub-1")
	if err == nil || !strings.Contains(err.Error(), "not valid JSON") {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
}

func TestAnalyzeNonZeroExitIncludesStderr(t *testing.T) {
	inv := helperInvoker(t, "crash", Config{})

	_, err := inv.Analyze(context.Background(), "f.pdf", "sub-1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model weights missing") {
		t.Fatalf("expected stderr tail in error, got %q", err.Error())
	}
	if !strings.HasPrefix(err.Error(), "analyzer execution failed") {
		t.Fatalf("unexpected error prefix %q", err.Error())
	}
}

func TestAnalyzeOutputLimit(t *testing.T) {
	inv := helperInvoker(t, "flood", Config{MaxOutputBytes: 1024})

	_, err := inv.Analyze(context.Background(), "f.pdf", "sub-1")
	if !errors.Is(err, ErrOutputTooLarge) {
		t.Fatalf("expected output limit error, got %v", err)
	}
}

func TestAnalyzeTimeoutKillsProcess(t *testing.T) {
	inv := helperInvoker(t, "hang", Config{Timeout: 200 * time.Millisecond})

	started := time.Now()
	_, err := inv.Analyze(context.Background(), "f.pdf", "sub-1")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("expected child to be killed promptly, took %s", elapsed)
	}
}

func TestAnalyzeRequiresScript(t *testing.T) {
	inv := New(Config{}, nil)

	_, err := inv.Analyze(context.Background(), "f.pdf", "sub-1")
	if !errors.Is(err, ErrScriptNotConfigured) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestAnalyzeMissingInterpreter(t *testing.T) {
	inv := New(Config{Interpreter: "/nonexistent/interpreter", ScriptPath: "detect.py"}, nil)

	if _, err := inv.Analyze(context.Background(), "f.pdf", "sub-1"); err == nil {
		t.Fatalf("expected spawn error")
	}
}

func TestCappedBufferKeepsTail(t *testing.T) {
	b := &cappedBuffer{limit: 4, keepTail: true}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	if b.String() != "defg" || !b.overflow || b.total != 7 {
		t.Fatalf("unexpected buffer state %q overflow=%v total=%d", b.String(), b.overflow, b.total)
	}
}

func TestHelperProcessAnalyzer(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	filePath, submissionID := "", ""
	if len(args) >= 2 {
		filePath, submissionID = args[len(args)-2], args[len(args)-1]
	}

	switch os.Getenv("HELPER_MODE") {
	case "echo":
		fmt.Fprintf(os.Stdout, "\n  {\"file\":%q,\"id\":%q,\"plagiarismScore\":0.4}\n", filePath, submissionID)
	case "warn":
		fmt.Fprintln(os.Stderr, "UserWarning: torch not compiled with CUDA")
		fmt.Fprintln(os.Stdout, `{"ok":true}`)
	case "empty":
		fmt.Fprint(os.Stdout, "   \n")
	case "garbage":
		fmt.Fprint(os.Stdout, "Traceback (most recent call last)")
	case "crash":
		fmt.Fprintln(os.Stderr, "model weights missing")
		os.Exit(3)
	case "flood":
		fmt.Fprint(os.Stdout, strings.Repeat("x", 64*1024))
	case "hang":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}
