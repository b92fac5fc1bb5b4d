package capture

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/encoder"
)

type mockSource struct {
	frequency float64
}

// NewMockSource returns a source producing a sine tone paced at real time.
func NewMockSource(frequencyHz float64) Source {
	if frequencyHz <= 0 {
		frequencyHz = 440
	}
	return &mockSource{frequency: frequencyHz}
}

func (m *mockSource) Open(ctx context.Context, format encoder.Format) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &toneStream{format: format, frequency: m.frequency, done: make(chan struct{})}, nil
}

type toneStream struct {
	format    encoder.Format
	frequency float64
	phase     int
	done      chan struct{}
	once      sync.Once
}

func (t *toneStream) Read(p []int16) (int, error) {
	frames := len(p) / t.format.Channels
	if frames == 0 {
		return 0, nil
	}
	wait := time.Duration(float64(frames) / float64(t.format.SampleRate) * float64(time.Second))
	select {
	case <-t.done:
		return 0, io.EOF
	case <-time.After(wait):
	}
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*t.frequency*float64(t.phase)/float64(t.format.SampleRate)))
		for c := 0; c < t.format.Channels; c++ {
			p[i*t.format.Channels+c] = v
		}
		t.phase++
	}
	return frames * t.format.Channels, nil
}

func (t *toneStream) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
