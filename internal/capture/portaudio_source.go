//go:build portaudio

package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/loqalabs/loqa-recorder/internal/encoder"
)

type portAudioSource struct {
	frameSize int
}

// NewPortAudioSource reads from the default input device.
func NewPortAudioSource(frameSize int) Source {
	if frameSize <= 0 {
		frameSize = 1024
	}
	return &portAudioSource{frameSize: frameSize}
}

func (s *portAudioSource) Open(ctx context.Context, format encoder.Format) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrDeviceUnavailable, err)
	}
	in := make([]int16, s.frameSize*format.Channels)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), s.frameSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}
	return &portAudioStream{stream: stream, in: in}, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	in     []int16
	mu     sync.Mutex
	closed bool
}

func (p *portAudioStream) Read(out []int16) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, fmt.Errorf("portaudio stream closed")
	}
	if err := p.stream.Read(); err != nil {
		return 0, fmt.Errorf("portaudio read: %w", err)
	}
	return copy(out, p.in), nil
}

func (p *portAudioStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.stream.Stop()
	err := p.stream.Close()
	portaudio.Terminate()
	return err
}
