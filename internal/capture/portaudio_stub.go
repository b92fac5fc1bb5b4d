//go:build !portaudio

package capture

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-recorder/internal/encoder"
)

// NewPortAudioSource returns a source that always fails; build with
// -tags portaudio to link the PortAudio backend.
func NewPortAudioSource(int) Source {
	return portAudioStub{}
}

type portAudioStub struct{}

func (portAudioStub) Open(context.Context, encoder.Format) (Stream, error) {
	return nil, fmt.Errorf("%w: portaudio support not compiled in", ErrDeviceUnavailable)
}
