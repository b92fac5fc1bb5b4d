// Package encoder turns captured PCM frames into WAV artifacts.
package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// Format describes interleaved signed 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Label is the format line shown once the device is acquired.
func (f Format) Label() string {
	channels := "channel"
	if f.Channels != 1 {
		channels = "channels"
	}
	return fmt.Sprintf("Format: %d %s pcm @ %gkHz", f.Channels, channels, float64(f.SampleRate)/1000)
}

// Info is the metadata of an encoded WAV file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Encoder accumulates PCM frames for a single recording session.
type Encoder struct {
	format  Format
	mu      sync.Mutex
	samples []int
}

func New(format Format) *Encoder {
	return &Encoder{format: format}
}

func (e *Encoder) Format() Format { return e.format }

// Append copies frame into the pending buffer.
func (e *Encoder) Append(frame []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range frame {
		e.samples = append(e.samples, int(s))
	}
}

// Samples reports how many interleaved samples are buffered.
func (e *Encoder) Samples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// Encode writes the buffered samples as a 16-bit PCM WAV file. A session
// with no samples still yields a header-only file.
func (e *Encoder) Encode() ([]byte, Info, error) {
	e.mu.Lock()
	data := append([]int(nil), e.samples...)
	e.mu.Unlock()

	out := &seekBuffer{}
	enc := wav.NewEncoder(out, e.format.SampleRate, bitDepth, e.format.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: e.format.Channels, SampleRate: e.format.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, Info{}, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, Info{}, fmt.Errorf("close wav encoder: %w", err)
	}

	frames := len(data) / e.format.Channels
	info := Info{
		SampleRate: e.format.SampleRate,
		Channels:   e.format.Channels,
		BitDepth:   bitDepth,
		Duration:   time.Duration(frames) * time.Second / time.Duration(e.format.SampleRate),
	}
	return out.Bytes(), info, nil
}

// Inspect validates a WAV payload and reads its header.
func Inspect(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, errors.New("not a valid wav file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("locate pcm chunk: %w", err)
	}
	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	bytesPerSecond := info.SampleRate * info.Channels * info.BitDepth / 8
	if bytesPerSecond > 0 {
		info.Duration = time.Duration(dec.PCMSize) * time.Second / time.Duration(bytesPerSecond)
	}
	return info, nil
}
