package audio

import (
	"errors"
	"io"
	"time"
)

// Output format shared by every backend: 16-bit little endian stereo.
const (
	DefaultSampleRate = 48000
	Channels          = 2
	BytesPerSample    = 2
	frameSize         = Channels * BytesPerSample
)

// ErrNoAudio is returned when no audio hardware is available.
var ErrNoAudio = errors.New("audio output not available")

// Backend creates players on an output context.
type Backend interface {
	// NewPlayer creates a player that pulls PCM from r.
	NewPlayer(r io.Reader) Player

	// SampleRate returns the output sample rate.
	SampleRate() int
}

// Player is a single playback on a Backend. The oto player satisfies it.
type Player interface {
	// Play starts or resumes playback
	Play()

	// Pause pauses playback
	Pause()

	// IsPlaying returns whether audio is currently playing
	IsPlaying() bool

	// SetVolume sets the playback volume (0.0 to 1.0)
	SetVolume(volume float64)

	// Close releases the player
	Close() error
}

// Config contains configuration for the output context.
type Config struct {
	SampleRate int           // 44100 or 48000 Hz
	BufferSize time.Duration // Output buffer length
}

// DefaultConfig returns the default output configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate: DefaultSampleRate,
		BufferSize: 100 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.SampleRate != 44100 && c.SampleRate != 48000 {
		return errors.New("sample rate must be 44100 or 48000 Hz")
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}
