// Package recordings keeps the in-memory list of finished recordings and the
// upload state attached to each one. Nothing here outlives the process.
package recordings

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
	"github.com/loqalabs/loqa-recorder/internal/render"
)

var (
	ErrNotFound      = errors.New("recording not found")
	ErrUploadPending = errors.New("upload already in flight")
)

// NameLayout matches the ISO-8601 millisecond form used for artifact names.
const NameLayout = "2006-01-02T15:04:05.000Z"

// Artifact is the encoded audio produced by one finished session or upload.
// SessionID keys the artifact's lifecycle events.
type Artifact struct {
	ID        string
	SessionID string
	Name      string
	Data      []byte
	Info      encoder.Info
	CreatedAt time.Time
}

// NewArtifact names the artifact after at. An empty sessionID reuses the
// artifact ID, which is how uploaded files are keyed.
func NewArtifact(sessionID string, data []byte, info encoder.Info, at time.Time) Artifact {
	at = at.UTC()
	id := uuid.NewString()
	if sessionID == "" {
		sessionID = id
	}
	return Artifact{
		ID:        id,
		SessionID: sessionID,
		Name:      at.Format(NameLayout),
		Data:      data,
		Info:      info,
		CreatedAt: at,
	}
}

func (a Artifact) FileName() string {
	return a.Name + ".wav"
}

type UploadStatus int

const (
	UploadIdle UploadStatus = iota
	UploadPending
	UploadDone
)

func (s UploadStatus) String() string {
	switch s {
	case UploadPending:
		return "pending"
	case UploadDone:
		return "done"
	default:
		return "idle"
	}
}

type Upload struct {
	Status    UploadStatus
	Panel     render.Panel
	StartedAt time.Time
	Elapsed   time.Duration
}

type Entry struct {
	Artifact Artifact
	Upload   Upload
}

// snapshot copies e, including its panel sections.
func (e *Entry) snapshot() Entry {
	out := *e
	out.Upload.Panel.Sections = append([]render.Section(nil), e.Upload.Panel.Sections...)
	return out
}

// Library is a newest-first list of entries.
type Library struct {
	mu      sync.RWMutex
	entries []*Entry
	clock   func() time.Time
}

func NewLibrary() *Library {
	return &Library{clock: time.Now}
}

// Add places the artifact at the top of the list.
func (l *Library) Add(a Artifact) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := &Entry{Artifact: a}
	l.entries = append([]*Entry{e}, l.entries...)
	return *e
}

func (l *Library) Get(id string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e := l.find(id)
	if e == nil {
		return Entry{}, ErrNotFound
	}
	return e.snapshot(), nil
}

func (l *Library) List() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.snapshot())
	}
	return out
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// MarkPending records that an upload is in flight for id. It fails with
// ErrUploadPending if one already is.
func (l *Library) MarkPending(id string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.find(id)
	if e == nil {
		return Entry{}, ErrNotFound
	}
	if e.Upload.Status == UploadPending {
		return e.snapshot(), ErrUploadPending
	}
	e.Upload = Upload{Status: UploadPending, StartedAt: l.clock()}
	return e.snapshot(), nil
}

// Complete stores the rendered outcome of the upload for id.
func (l *Library) Complete(id string, panel render.Panel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.find(id)
	if e == nil {
		return ErrNotFound
	}
	var elapsed time.Duration
	if !e.Upload.StartedAt.IsZero() {
		elapsed = l.clock().Sub(e.Upload.StartedAt)
	}
	e.Upload = Upload{Status: UploadDone, Panel: panel, StartedAt: e.Upload.StartedAt, Elapsed: elapsed}
	return nil
}

// Toggle flips one section of the completed panel for id.
func (l *Library) Toggle(id string, section int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.find(id)
	if e == nil {
		return ErrNotFound
	}
	_, err := e.Upload.Panel.Toggle(section)
	return err
}

// Pending reports whether any upload is still in flight.
func (l *Library) Pending() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.Upload.Status == UploadPending {
			return true
		}
	}
	return false
}

func (l *Library) find(id string) *Entry {
	for _, e := range l.entries {
		if e.Artifact.ID == id {
			return e
		}
	}
	return nil
}
