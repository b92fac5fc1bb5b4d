// Package journal fans recorder lifecycle events out to the bus and the
// event store. Either sink may be absent.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/eventstore"
	"github.com/loqalabs/loqa-recorder/internal/protocol"
)

// Publisher is the bus side of the journal.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Appender is the store side of the journal.
type Appender interface {
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

type Journal struct {
	bus   Publisher
	store Appender
	log   *slog.Logger
	clock func() time.Time
}

func New(bus Publisher, store Appender, log *slog.Logger) *Journal {
	return &Journal{
		bus:   bus,
		store: store,
		log:   log.With(slog.String("component", "journal")),
		clock: time.Now,
	}
}

// Emit records evt. Sink failures are logged, never returned.
func (j *Journal) Emit(ctx context.Context, evt protocol.Event) {
	if j == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = j.clock().UTC()
	}

	if j.bus != nil {
		if err := j.bus.PublishJSON(protocol.Subject(evt.Type), evt); err != nil {
			j.log.Warn("failed to publish event", slog.String("type", evt.Type), slogError(err))
		}
	}

	if j.store == nil || evt.SessionID == "" {
		j.log.Debug("event", slog.String("type", evt.Type), slog.String("session_id", evt.SessionID))
		return
	}
	var payload []byte
	if len(evt.Detail) > 0 {
		data, err := json.Marshal(evt.Detail)
		if err != nil {
			j.log.Warn("failed to encode event detail", slog.String("type", evt.Type), slogError(err))
		} else {
			payload = data
		}
	}
	err := j.store.AppendEvent(ctx, eventstore.Event{
		SessionID: evt.SessionID,
		Type:      evt.Type,
		Recording: evt.Recording,
		State:     evt.State,
		Payload:   payload,
		CreatedAt: evt.Timestamp,
	})
	if err != nil {
		j.log.Warn("failed to journal event", slog.String("type", evt.Type), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
