package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-recorder/internal/config"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
)

// ErrDeviceUnavailable covers both a denied and a missing input device.
var ErrDeviceUnavailable = errors.New("audio input unavailable")

// Stream delivers interleaved 16-bit PCM frames from an opened device.
type Stream interface {
	// Read fills p and returns the number of samples written.
	Read(p []int16) (int, error)
	Close() error
}

// Source abstracts microphone backends.
type Source interface {
	Open(ctx context.Context, format encoder.Format) (Stream, error)
}

// NewSource builds the backend selected by cfg.Mode.
func NewSource(cfg config.CaptureConfig) (Source, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockSource(cfg.MockFrequencyHz), nil
	case "exec":
		return NewExecSource(cfg.Command)
	case "portaudio":
		return NewPortAudioSource(cfg.FrameSize), nil
	default:
		return nil, fmt.Errorf("unknown capture mode %q", cfg.Mode)
	}
}
