package protocol

import "time"

// Event is a recorder lifecycle notification broadcast on the bus and
// journaled in the event store.
type Event struct {
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Recording string         `json:"recording,omitempty"`
	State     string         `json:"state,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

const (
	EventRecordingStarted       = "recording.started"
	EventRecordingPaused        = "recording.paused"
	EventRecordingResumed       = "recording.resumed"
	EventRecordingStopped       = "recording.stopped"
	EventRecordingFailed        = "recording.failed"
	EventRecordingUploaded      = "recording.uploaded"
	EventTranscriptionRequested = "transcription.requested"
	EventTranscriptionCompleted = "transcription.completed"
)

const SubjectEventPrefix = "recorder.event"

// Subject returns the bus subject for an event type.
func Subject(eventType string) string {
	return SubjectEventPrefix + "." + eventType
}
