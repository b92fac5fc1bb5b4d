package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/bus"
	"github.com/loqalabs/loqa-recorder/internal/capture"
	"github.com/loqalabs/loqa-recorder/internal/config"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
	"github.com/loqalabs/loqa-recorder/internal/eventstore"
	"github.com/loqalabs/loqa-recorder/internal/journal"
	"github.com/loqalabs/loqa-recorder/internal/natsserver"
	"github.com/loqalabs/loqa-recorder/internal/recordings"
	"github.com/loqalabs/loqa-recorder/internal/transcribe"
	"github.com/loqalabs/loqa-recorder/internal/ui"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	store      *eventstore.Store
	natsServer *natsserver.EmbeddedServer
	bus        *bus.Client
	controller *capture.Controller
	page       *ui.Handler
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = tel.shutdown

	handler, err := r.build(ctx)
	if err != nil {
		r.closeComponents(context.Background())
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if tel.metrics != nil {
		mux.Handle("/metrics", tel.metrics)
	}
	history := r.historyHandler()
	mux.Handle("/sessions", history)
	mux.Handle("/sessions/", history)
	mux.Handle("/", handler)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if r.store.Enabled() && r.cfg.EventStore.RetentionMode == eventstore.RetentionPersistent {
		r.wg.Add(1)
		go r.pruneLoop(ctx)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("capture_mode", r.cfg.Capture.Mode),
		slog.String("transcription_url", r.cfg.Transcription.BaseURL))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()
	r.closeComponents(shutdownCtx)

	return nil
}

// build wires the recorder components behind the page handler.
func (r *Runtime) build(ctx context.Context) (http.Handler, error) {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	r.store = store

	var publisher journal.Publisher
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return nil, err
		}
		r.natsServer = srv
		if srv != nil {
			busCfg.Servers = []string{srv.ClientURL()}
		}
		client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return nil, err
		}
		r.bus = client
		publisher = client
	}

	var appender journal.Appender
	if store.Enabled() {
		appender = store
	}
	events := journal.New(publisher, appender, r.logger)

	source, err := capture.NewSource(r.cfg.Capture)
	if err != nil {
		return nil, fmt.Errorf("create capture source: %w", err)
	}
	format := encoder.Format{SampleRate: r.cfg.Capture.SampleRate, Channels: r.cfg.Capture.Channels}
	r.controller = capture.NewController(source, format, r.cfg.Capture.FrameSize, events, r.logger)

	client := transcribe.NewClient(
		transcribe.WithBaseURL(r.cfg.Transcription.BaseURL),
		transcribe.WithPath(r.cfg.Transcription.Path),
		transcribe.WithTimeout(time.Duration(r.cfg.Transcription.TimeoutMS)*time.Millisecond),
		transcribe.WithLogger(r.logger.With(slog.String("component", "transcribe"))),
	)

	r.page = ui.New(r.cfg.UI, r.controller, recordings.NewLibrary(), client, events, r.logger)
	return r.page, nil
}

func (r *Runtime) closeComponents(ctx context.Context) {
	if r.page != nil {
		r.page.Close()
	}
	if r.controller != nil {
		r.controller.Close()
	}
	r.bus.Close()
	r.natsServer.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slog.String("error", err.Error()))
		}
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) pruneLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Prune(ctx); err != nil {
				r.logger.Warn("event store prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Runtime) Ready() bool {
	if !r.ready.Load() {
		return false
	}
	return !r.cfg.Bus.Enabled || r.bus.Healthy()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
