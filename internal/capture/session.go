package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
)

// Session holds the resources of one recording, from start to stop.
type Session struct {
	ID        string
	StartedAt time.Time

	stream  Stream
	encoder *encoder.Encoder
	paused  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func newSession(stream Stream, enc *encoder.Encoder, frameSize int, cancel context.CancelFunc, logger *slog.Logger) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		stream:    stream,
		encoder:   enc,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.pump(frameSize*enc.Format().Channels, logger)
	return s
}

func (s *Session) pump(size int, logger *slog.Logger) {
	defer close(s.done)
	buf := make([]int16, size)
	for {
		n, err := s.stream.Read(buf)
		if n > 0 && !s.paused.Load() {
			s.encoder.Append(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("capture stream read failed", slogError(err))
			}
			return
		}
	}
}

func (s *Session) setPaused(p bool) { s.paused.Store(p) }

// finish releases the device and waits for the pump to drain.
func (s *Session) finish() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.stream.Close()
		<-s.done
	})
	return err
}
