package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTailBufferKeepsLastBytes(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, _ = b.Write([]byte("progress 10%\n"))
	_, _ = b.Write([]byte("fatal"))
	if got := string(b.Bytes()); got != "0%\nfatal" {
		t.Fatalf("Bytes() = %q", got)
	}
	if got := b.String(); got != "...0%\nfatal" {
		t.Fatalf("String() = %q", got)
	}

	small := &tailBuffer{limit: 64}
	_, _ = small.Write([]byte("ok"))
	if small.String() != "ok" {
		t.Fatalf("short output must be kept as is, got %q", small.String())
	}
}

func TestExecRunnerReturnsStderrOnFailure(t *testing.T) {
	if !HasBinary("sh") {
		t.Skip("sh not available")
	}
	stdout, stderr, err := NewExecRunner(nil).Run(context.Background(), "sh", "-c", "echo page; echo 'bad data file' >&2; exit 3")
	if err == nil {
		t.Fatalf("expected exit error")
	}
	if strings.TrimSpace(string(stdout)) != "page" || strings.TrimSpace(string(stderr)) != "bad data file" {
		t.Fatalf("unexpected output stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestExecRunnerWrapsContextError(t *testing.T) {
	if !HasBinary("sh") {
		t.Skip("sh not available")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewExecRunner(nil).Run(ctx, "/bin/sh", "-c", "sleep 5")
	if !errors.Is(err, context.Canceled) || !strings.HasPrefix(err.Error(), "sh interrupted") {
		t.Fatalf("Run() error = %v, want wrapped context.Canceled", err)
	}
}

func TestHasBinary(t *testing.T) {
	if HasBinary("  ") {
		t.Fatalf("blank name must not resolve")
	}
	if HasBinary("definitely-not-a-real-binary-doc2sys") {
		t.Fatalf("unknown binary must not resolve")
	}
}
