package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: RetentionEphemeral}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if es.Enabled() {
		t.Fatalf("ephemeral store must not persist")
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "s", Type: "recording.started"}); err != nil {
		t.Fatalf("append on ephemeral store: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "s", 10)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events, got %d %v", len(events), err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: RetentionPersistent}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	ctx := context.Background()
	sessionID := "session-123"
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if err := es.AppendEvent(ctx, Event{SessionID: sessionID, Type: "recording.started", State: "recording", CreatedAt: start}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: sessionID, Type: "recording.stopped", State: "stopped", Recording: "2025-01-01T10:00:05.000Z", Payload: []byte(`{"bytes":44}`), CreatedAt: start.Add(5 * time.Second)}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "recording.started" || !events[0].CreatedAt.Equal(start) {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if string(events[1].Payload) != `{"bytes":44}` {
		t.Fatalf("unexpected payload: %s", events[1].Payload)
	}

	sessions, err := es.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].LastState != "stopped" || sessions[0].Recording != "2025-01-01T10:00:05.000Z" {
		t.Fatalf("unexpected session summary %+v", sessions[0])
	}
	if !sessions[0].StartedAt.Equal(start) {
		t.Fatalf("started_at should keep the first event time, got %s", sessions[0].StartedAt)
	}
}

func TestSessionModeResetsOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	cfg := config.EventStoreConfig{Path: path, RetentionMode: RetentionSession}
	ctx := context.Background()

	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "s1", Type: "recording.started"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	_ = es.Close()

	es, err = Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	sessions, err := es.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("session mode should start empty, got %d", len(sessions))
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: RetentionPersistent, RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendEvent(context.Background(), Event{SessionID: "old-session", Type: "recording.started"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendEvent(context.Background(), Event{SessionID: "new-session", Type: "recording.started"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	sessions, err := es.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "new-session" {
		t.Fatalf("unexpected sessions after prune %+v", sessions)
	}
}
