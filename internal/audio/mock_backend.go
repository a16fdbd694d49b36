package audio

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// MockBackend implements Backend for testing purposes. It produces no sound.
// With AutoDrain set, a playing MockPlayer consumes its reader in the
// background; otherwise tests drive playback with Advance and Finish.
type MockBackend struct {
	Rate      int
	AutoDrain bool

	mu      sync.Mutex
	players []*MockPlayer
}

// NewMockBackend creates a mock backend at the default sample rate.
func NewMockBackend(autoDrain bool) *MockBackend {
	return &MockBackend{Rate: DefaultSampleRate, AutoDrain: autoDrain}
}

// NewPlayer creates a mock player reading from r.
func (b *MockBackend) NewPlayer(r io.Reader) Player {
	p := &MockPlayer{reader: r, volume: 1.0, autoDrain: b.AutoDrain}

	b.mu.Lock()
	b.players = append(b.players, p)
	b.mu.Unlock()

	return p
}

// SampleRate returns the configured output rate.
func (b *MockBackend) SampleRate() int {
	if b.Rate == 0 {
		return DefaultSampleRate
	}
	return b.Rate
}

// Players returns every player created so far.
func (b *MockBackend) Players() []*MockPlayer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*MockPlayer(nil), b.players...)
}

// Last returns the most recently created player, or nil.
func (b *MockBackend) Last() *MockPlayer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.players) == 0 {
		return nil
	}
	return b.players[len(b.players)-1]
}

// MockPlayer simulates a player. IsPlaying turns false once the reader is
// exhausted, like a real player whose buffer has drained.
type MockPlayer struct {
	reader    io.Reader
	autoDrain bool

	mu      sync.Mutex
	playing bool
	closed  bool
	eof     bool
	volume  float64
	read    int64

	// Metrics for testing
	playCount  atomic.Int64
	pauseCount atomic.Int64
}

// Play starts or resumes playback.
func (p *MockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.eof {
		return
	}
	p.playing = true
	p.playCount.Add(1)

	if p.autoDrain {
		go p.drain()
	}
}

// Pause pauses playback.
func (p *MockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		p.pauseCount.Add(1)
	}
	p.playing = false
}

// IsPlaying returns whether audio is currently playing.
func (p *MockPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetVolume sets the simulated volume.
func (p *MockPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
}

// Volume returns the simulated volume.
func (p *MockPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close releases the player.
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("player already closed")
	}
	p.closed = true
	p.playing = false
	return nil
}

// Closed reports whether Close was called.
func (p *MockPlayer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// BytesRead returns how much PCM has been consumed.
func (p *MockPlayer) BytesRead() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read
}

// PlayCount returns how many times Play started playback.
func (p *MockPlayer) PlayCount() int64 {
	return p.playCount.Load()
}

// PauseCount returns how many times a playing player was paused.
func (p *MockPlayer) PauseCount() int64 {
	return p.pauseCount.Load()
}

// Advance consumes up to n bytes while playing. It reports false once the
// reader is exhausted.
func (p *MockPlayer) Advance(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.eof {
		return !p.eof
	}

	buf := make([]byte, n)
	for n > 0 {
		m, err := p.reader.Read(buf[:n])
		p.read += int64(m)
		n -= m
		if err != nil {
			p.eof = true
			p.playing = false
			return false
		}
		if m == 0 {
			break
		}
	}
	return true
}

// Finish plays the rest of the reader. It returns early if the player is
// paused or closed.
func (p *MockPlayer) Finish() {
	for p.IsPlaying() && p.Advance(4096) {
	}
}

func (p *MockPlayer) drain() {
	for {
		p.mu.Lock()
		playing := p.playing
		p.mu.Unlock()
		if !playing {
			return
		}
		if !p.Advance(4096) {
			return
		}
	}
}
