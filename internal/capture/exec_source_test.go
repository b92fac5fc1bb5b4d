package capture

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecSourceReadsPCM(t *testing.T) {
	requireShell(t)
	src, err := NewExecSource(`sh -c 'printf "\001\000\002\000"'`)
	if err != nil {
		t.Fatalf("NewExecSource: %v", err)
	}
	stream, err := src.Open(context.Background(), testFormat)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]int16, 8)
	n, err := stream.Read(buf)
	if err != nil || n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("Read: %d %v %v", n, buf[:n], err)
	}
	if _, err := stream.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestExecSourceReportsStderr(t *testing.T) {
	requireShell(t)
	src, err := NewExecSource(`sh -c 'echo oops >&2'`)
	if err != nil {
		t.Fatalf("NewExecSource: %v", err)
	}
	stream, err := src.Open(context.Background(), testFormat)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()
	if _, err := stream.Read(make([]int16, 8)); err == nil || !strings.Contains(err.Error(), "oops") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExecSourceSessionStopWhileStreaming(t *testing.T) {
	requireShell(t)
	src, err := NewExecSource(`sh -c 'printf "\001\000\002\000"; echo oops >&2; sleep 0.05'`)
	if err != nil {
		t.Fatalf("NewExecSource: %v", err)
	}
	ctrl := NewController(src, testFormat, 256, nil, newTestLogger())
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	artifact, err := ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(artifact.Data) < 44 {
		t.Fatalf("expected a wav artifact, got %d bytes", len(artifact.Data))
	}
}

func TestExecSourceKilledOnClose(t *testing.T) {
	requireShell(t)
	src, err := NewExecSource(`sh -c 'exec sleep 30'`)
	if err != nil {
		t.Fatalf("NewExecSource: %v", err)
	}
	ctrl := NewController(src, testFormat, 256, nil, newTestLogger())
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
