package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/eventstore"
)

type sessionView struct {
	SessionID string    `json:"session_id"`
	Recording string    `json:"recording,omitempty"`
	LastState string    `json:"last_state,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type eventView struct {
	Type      string          `json:"type"`
	Recording string          `json:"recording,omitempty"`
	State     string          `json:"state,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// historyHandler serves the journaled sessions. With an ephemeral store the
// lists are always empty.
func (r *Runtime) historyHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", r.handleSessions)
	mux.HandleFunc("GET /sessions/{id}/events", r.handleSessionEvents)
	return mux
}

func (r *Runtime) handleSessions(w http.ResponseWriter, req *http.Request) {
	sessions, err := r.store.ListSessions(req.Context(), queryLimit(req))
	if err != nil {
		r.historyError(w, err)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView(s))
	}
	writeJSON(w, out)
}

func (r *Runtime) handleSessionEvents(w http.ResponseWriter, req *http.Request) {
	events, err := r.store.ListSessionEvents(req.Context(), req.PathValue("id"), queryLimit(req))
	if err != nil {
		r.historyError(w, err)
		return
	}
	if len(events) == 0 && r.store.Enabled() {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			Type:      e.Type,
			Recording: e.Recording,
			State:     e.State,
			Detail:    detailJSON(e),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, out)
}

func (r *Runtime) historyError(w http.ResponseWriter, err error) {
	r.logger.Error("event store query failed", slog.String("error", err.Error()))
	http.Error(w, "event store unavailable", http.StatusInternalServerError)
}

func detailJSON(e eventstore.Event) json.RawMessage {
	if len(e.Payload) == 0 || !json.Valid(e.Payload) {
		return nil
	}
	return json.RawMessage(e.Payload)
}

func queryLimit(req *http.Request) int {
	n, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
