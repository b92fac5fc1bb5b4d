// Package ui serves the recorder page: capture controls, decoding options,
// the recordings list and each recording's transcription panel.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/capture"
	"github.com/loqalabs/loqa-recorder/internal/config"
	"github.com/loqalabs/loqa-recorder/internal/decoding"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
	"github.com/loqalabs/loqa-recorder/internal/protocol"
	"github.com/loqalabs/loqa-recorder/internal/recordings"
	"github.com/loqalabs/loqa-recorder/internal/render"
	"github.com/loqalabs/loqa-recorder/internal/transcribe"
)

// Recorder is the capture side the page drives.
type Recorder interface {
	Start(ctx context.Context) error
	TogglePause(ctx context.Context) (capture.Controls, error)
	Stop(ctx context.Context) (recordings.Artifact, error)
	State() capture.State
	Controls() capture.Controls
	FormatLabel() string
}

// Submitter uploads one recording.
type Submitter interface {
	Submit(ctx context.Context, req transcribe.Request) (transcribe.Response, error)
}

type Handler struct {
	cfg       config.UIConfig
	recorder  Recorder
	library   *recordings.Library
	submitter Submitter
	emitter   capture.Emitter
	logger    *slog.Logger
	clock     func() time.Time

	mu      sync.Mutex
	options decoding.Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mux    *http.ServeMux
}

func New(cfg config.UIConfig, recorder Recorder, library *recordings.Library, submitter Submitter, emitter capture.Emitter, logger *slog.Logger) *Handler {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		cfg:       cfg,
		recorder:  recorder,
		library:   library,
		submitter: submitter,
		emitter:   emitter,
		logger:    logger.With(slog.String("component", "ui")),
		clock:     time.Now,
		options:   decoding.Options{Method: cfg.DefaultMethod, Language: cfg.DefaultLanguage}.Normalize(),
		ctx:       ctx,
		cancel:    cancel,
		mux:       http.NewServeMux(),
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /{$}", h.handleIndex)
	h.mux.HandleFunc("POST /record/start", h.handleStart)
	h.mux.HandleFunc("POST /record/pause", h.handlePause)
	h.mux.HandleFunc("POST /record/stop", h.handleStop)
	h.mux.HandleFunc("POST /decoding", h.handleDecoding)
	h.mux.HandleFunc("POST /recordings", h.handleUpload)
	h.mux.HandleFunc("GET /recordings/{id}/audio", h.handleAudio)
	h.mux.HandleFunc("POST /recordings/{id}/transcribe", h.handleTranscribe)
	h.mux.HandleFunc("POST /recordings/{id}/sections/{index}/toggle", h.handleToggle)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Options returns the decoding options the next upload will use.
func (h *Handler) Options() decoding.Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.options
}

// Close cancels in-flight uploads and waits for them to finish.
func (h *Handler) Close() {
	h.cancel()
	h.wg.Wait()
}

// Wait blocks until every in-flight upload has completed.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	view, err := h.buildPage()
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, view); err != nil {
		h.logger.Error("render page failed", slogError(err))
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	err := h.recorder.Start(r.Context())
	if errors.Is(err, capture.ErrDeviceUnavailable) {
		h.logger.Warn("recording not started", slogError(err))
		err = nil
	}
	h.afterAction(w, r, err)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	_, err := h.recorder.TogglePause(r.Context())
	h.afterAction(w, r, err)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.recorder.Stop(r.Context())
	if err == nil {
		h.library.Add(artifact)
	}
	h.afterAction(w, r, err)
}

func (h *Handler) handleDecoding(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	current := h.options
	h.mu.Unlock()

	opts, err := decoding.FromForm(r.PostForm, current)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.mu.Lock()
	h.options = opts.Normalize()
	h.mu.Unlock()
	redirectHome(w, r)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.recorder.State().Active() {
		http.Error(w, "upload is disabled while recording", http.StatusConflict)
		return
	}
	limit := int64(h.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, fmt.Sprintf("read upload: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		http.Error(w, fmt.Sprintf("read upload: %v", err), http.StatusBadRequest)
		return
	}
	if int64(len(data)) > limit {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	info, err := encoder.Inspect(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("%s: %v", header.Filename, err), http.StatusBadRequest)
		return
	}

	entry := h.library.Add(recordings.NewArtifact("", data, info, h.clock()))
	h.logger.Info("recording uploaded",
		slog.String("recording", entry.Artifact.Name),
		slog.String("file", header.Filename),
		slog.Duration("duration", info.Duration))
	h.emitter.Emit(r.Context(), protocol.Event{
		SessionID: entry.Artifact.SessionID,
		Type:      protocol.EventRecordingUploaded,
		Recording: entry.Artifact.Name,
		Detail:    map[string]any{"file": header.Filename, "bytes": len(data)},
	})
	redirectHome(w, r)
}

func (h *Handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	entry, err := h.library.Get(r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	disposition := "inline"
	if r.URL.Query().Get("download") != "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Artifact.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, entry.Artifact.FileName()))
	_, _ = w.Write(entry.Artifact.Data)
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	entry, err := h.library.MarkPending(r.PathValue("id"))
	if errors.Is(err, recordings.ErrUploadPending) {
		redirectHome(w, r)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	opts := h.Options()
	h.emitter.Emit(r.Context(), protocol.Event{
		SessionID: entry.Artifact.SessionID,
		Type:      protocol.EventTranscriptionRequested,
		Recording: entry.Artifact.Name,
		Detail:    map[string]any{"method": opts.Method, "language": opts.Language},
	})

	h.wg.Add(1)
	go h.transcribe(entry.Artifact, opts)
	redirectHome(w, r)
}

func (h *Handler) transcribe(artifact recordings.Artifact, opts decoding.Options) {
	defer h.wg.Done()

	resp, err := h.submitter.Submit(h.ctx, transcribe.Request{
		FileName: artifact.FileName(),
		Audio:    artifact.Data,
		Options:  opts,
	})
	var panel render.Panel
	detail := map[string]any{}
	if err != nil {
		h.logger.Warn("transcription request failed", slog.String("recording", artifact.Name), slogError(err))
		panel = render.Failure(err)
		detail["error"] = err.Error()
	} else {
		panel = render.Parse(resp.StatusCode, resp.Body)
		detail["status"] = resp.StatusCode
		if panel.IsError() {
			detail["error"] = panel.Error
		}
	}

	if err := h.library.Complete(artifact.ID, panel); err != nil {
		h.logger.Warn("recording vanished before transcription finished", slog.String("recording", artifact.Name))
		return
	}
	h.emitter.Emit(h.ctx, protocol.Event{
		SessionID: artifact.SessionID,
		Type:      protocol.EventTranscriptionCompleted,
		Recording: artifact.Name,
		Detail:    detail,
	})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid section", http.StatusBadRequest)
		return
	}
	if err := h.library.Toggle(r.PathValue("id"), index); err != nil {
		h.fail(w, err)
		return
	}
	redirectHome(w, r)
}

func (h *Handler) afterAction(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	redirectHome(w, r)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", slogError(err))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrIllegalTransition), errors.Is(err, capture.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, recordings.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, decoding.ErrInvalidField):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, protocol.Event) {}
