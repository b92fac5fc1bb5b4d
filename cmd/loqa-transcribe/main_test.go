package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/bus"
	"github.com/loqalabs/loqa-recorder/internal/config"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
	"github.com/loqalabs/loqa-recorder/internal/natsserver"
	"github.com/loqalabs/loqa-recorder/internal/protocol"
)

func writeWav(t *testing.T) string {
	t.Helper()
	enc := encoder.New(encoder.Format{SampleRate: 16000, Channels: 1})
	enc.Append(make([]int16, 1600))
	data, _, err := enc.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestRunTranscribePrintsPanel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("language") != "en" || r.FormValue("best_of") != "0" {
			t.Errorf("unexpected form %v", r.MultipartForm.Value)
		}
		_, _ = w.Write([]byte(`{"results":"hello","info":{"duration":3}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runTranscribe(context.Background(), transcribeArgs{
		file:     writeWav(t),
		baseURL:  srv.URL,
		method:   "beam search",
		language: "en",
		bestOf:   4,
	}, &out)
	if err != nil {
		t.Fatalf("runTranscribe: %v", err)
	}
	want := "[-] results\n    hello\n[-] info\n    duration: 3\n[+] raw\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestRunTranscribeErrorPanel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"decode failed"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runTranscribe(context.Background(), transcribeArgs{file: writeWav(t), baseURL: srv.URL}, &out)
	if !errors.Is(err, errPanel) {
		t.Fatalf("expected errPanel, got %v", err)
	}
	if out.String() != "error: decode failed\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunTranscribeRejectsNonWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := runTranscribe(context.Background(), transcribeArgs{file: path}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for non-wav input")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunWatchPrintsSessionEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default().Bus
	cfg.Enabled = true
	cfg.Port = -1
	srv, err := natsserver.Start(cfg, logger)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	publisher, err := bus.Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(publisher.Close)

	ctx, cancel := context.WithCancel(context.Background())
	out := &lockedBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, watchArgs{servers: srv.ClientURL(), session: "keep"}, out, logger)
	}()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), "recording.stopped") {
		if time.Now().After(deadline) {
			t.Fatalf("no event printed, got %q", out.String())
		}
		_ = publisher.PublishJSON(protocol.Subject(protocol.EventRecordingStopped), protocol.Event{SessionID: "skip", Type: protocol.EventRecordingStopped, Timestamp: at})
		_ = publisher.PublishJSON(protocol.Subject(protocol.EventRecordingStopped), protocol.Event{SessionID: "keep", Type: protocol.EventRecordingStopped, Recording: "2025-01-02T03:04:05.000Z", State: "stopped", Timestamp: at})
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("runWatch: %v", err)
	}

	printed := out.String()
	if strings.Contains(printed, "skip") {
		t.Fatalf("events from other sessions must be filtered: %q", printed)
	}
	want := "2025-01-02T03:04:05Z recording.stopped        keep 2025-01-02T03:04:05.000Z state=stopped"
	if !strings.Contains(printed, want) {
		t.Fatalf("unexpected line, got %q", printed)
	}
}
