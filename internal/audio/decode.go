package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// ErrEmptyClip is returned when a clip decodes to no samples.
var ErrEmptyClip = errors.New("clip has no audio")

// PCM is decoded 16-bit stereo audio, interleaved.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Frames returns the number of stereo frames.
func (p *PCM) Frames() int {
	return len(p.Samples) / Channels
}

// DecodeFunc turns an encoded clip into PCM.
type DecodeFunc func(data []byte) (*PCM, error)

// DecodeMP3 decodes an MP3 clip. go-mp3 always yields 16-bit little endian
// stereo at the stream's own sample rate.
func DecodeMP3(data []byte) (*PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	if len(raw) < frameSize {
		return nil, ErrEmptyClip
	}

	samples := make([]int16, len(raw)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}

	return &PCM{Samples: samples, SampleRate: dec.SampleRate()}, nil
}
