// Package capture owns the microphone: it drives the record/pause/stop state
// machine and turns a finished session into a WAV artifact.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/encoder"
	"github.com/loqalabs/loqa-recorder/internal/protocol"
	"github.com/loqalabs/loqa-recorder/internal/recordings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoSession = errors.New("no active recording session")

// Emitter receives lifecycle events.
type Emitter interface {
	Emit(ctx context.Context, evt protocol.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, protocol.Event) {}

type Controller struct {
	source    Source
	format    encoder.Format
	frameSize int
	logger    *slog.Logger
	emitter   Emitter
	tracer    trace.Tracer
	counter   metric.Int64Counter
	clock     func() time.Time

	mu      sync.Mutex
	state   State
	session *Session
}

func NewController(source Source, format encoder.Format, frameSize int, emitter Emitter, logger *slog.Logger) *Controller {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if frameSize <= 0 {
		frameSize = 1024
	}
	c := &Controller{
		source:    source,
		format:    format,
		frameSize: frameSize,
		logger:    logger.With(slog.String("component", "capture")),
		emitter:   emitter,
		tracer:    otel.Tracer("github.com/loqalabs/loqa-recorder/capture"),
		clock:     time.Now,
		state:     Idle,
	}
	counter, err := otel.Meter("github.com/loqalabs/loqa-recorder").Int64Counter("recorder.recordings",
		metric.WithDescription("Recordings finished"))
	if err != nil {
		c.logger.Warn("failed to create recordings counter", slogError(err))
	}
	c.counter = counter
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Controls() Controls {
	return ControlsFor(c.State())
}

// FormatLabel describes the capture format.
func (c *Controller) FormatLabel() string {
	return c.format.Label()
}

// Start acquires the input device and begins a new session.
func (c *Controller) Start(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "capture.start")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Transition(c.state, ActionStart)
	if err != nil {
		return err
	}
	c.state = next

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := c.source.Open(sessionCtx, c.format)
	if err != nil {
		cancel()
		c.state, _ = Transition(c.state, ActionFail)
		span.RecordError(err)
		c.logger.Warn("capture device unavailable", slogError(err))
		c.emitter.Emit(ctx, protocol.Event{Type: protocol.EventRecordingFailed, State: c.state.String(), Timestamp: c.clock().UTC()})
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.session = newSession(stream, encoder.New(c.format), c.frameSize, cancel, c.logger)
	span.SetAttributes(attribute.String("session.id", c.session.ID))
	c.logger.Info("recording started", slog.String("session_id", c.session.ID))
	c.emitter.Emit(ctx, protocol.Event{SessionID: c.session.ID, Type: protocol.EventRecordingStarted, State: c.state.String(), Timestamp: c.clock().UTC()})
	return nil
}

// TogglePause suspends an active session or resumes a paused one.
func (c *Controller) TogglePause(ctx context.Context) (Controls, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	action, eventType := ActionPause, protocol.EventRecordingPaused
	if c.state == Paused {
		action, eventType = ActionResume, protocol.EventRecordingResumed
	}
	next, err := Transition(c.state, action)
	if err != nil {
		return ControlsFor(c.state), err
	}
	c.state = next
	c.session.setPaused(next == Paused)
	c.emitter.Emit(ctx, protocol.Event{SessionID: c.session.ID, Type: eventType, State: next.String(), Timestamp: c.clock().UTC()})
	return ControlsFor(next), nil
}

// Stop finalises the session and returns its artifact.
func (c *Controller) Stop(ctx context.Context) (recordings.Artifact, error) {
	ctx, span := c.tracer.Start(ctx, "capture.stop")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Transition(c.state, ActionStop)
	if err != nil {
		return recordings.Artifact{}, err
	}
	session := c.session
	if session == nil {
		return recordings.Artifact{}, ErrNoSession
	}
	c.state = next
	c.session = nil

	if err := session.finish(); err != nil {
		c.logger.Warn("failed to release capture stream", slogError(err))
	}
	data, info, err := session.encoder.Encode()
	if err != nil {
		span.RecordError(err)
		c.emitter.Emit(ctx, protocol.Event{SessionID: session.ID, Type: protocol.EventRecordingFailed, State: next.String(), Timestamp: c.clock().UTC(),
			Detail: map[string]any{"error": err.Error()}})
		return recordings.Artifact{}, fmt.Errorf("encode recording: %w", err)
	}

	artifact := recordings.NewArtifact(session.ID, data, info, c.clock())
	if c.counter != nil {
		c.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", "capture")))
	}
	c.logger.Info("recording stopped",
		slog.String("session_id", session.ID),
		slog.String("recording", artifact.Name),
		slog.Duration("duration", info.Duration),
	)
	c.emitter.Emit(ctx, protocol.Event{
		SessionID: session.ID,
		Type:      protocol.EventRecordingStopped,
		Recording: artifact.Name,
		State:     next.String(),
		Timestamp: c.clock().UTC(),
		Detail:    map[string]any{"duration_ms": info.Duration.Milliseconds(), "bytes": len(data)},
	})
	return artifact, nil
}

// Close releases an in-flight session without producing an artifact.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		_ = c.session.finish()
		c.session = nil
		c.state = Idle
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
