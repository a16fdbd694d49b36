package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// stream feeds decoded PCM to a player, resampling on the fly so that the
// playback rate can change mid-clip. The PCM stays referenced by the stream
// for the whole playback.
type stream struct {
	pcm     *PCM
	outRate int

	mu   sync.Mutex
	pos  float64 // position in source frames
	step float64 // source frames per output frame
	rate float64
	done bool

	pending []byte
}

func newStream(pcm *PCM, outRate int, rate float64) *stream {
	s := &stream{pcm: pcm, outRate: outRate}
	s.setRate(rate)
	return s
}

// setRate changes the playback rate. Rates at or below zero are ignored.
func (s *stream) setRate(rate float64) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
	s.step = float64(s.pcm.SampleRate) * rate / float64(s.outRate)
}

// rewind moves back to the first frame.
func (s *stream) rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.done = false
	s.pending = nil
}

// exhausted reports whether every frame has been handed to the player.
func (s *stream) exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done && len(s.pending) == 0
}

// Read fills p using linear interpolation between neighbouring source
// frames. A frame that does not fit in p is carried over to the next call.
func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	var frame [frameSize]byte
	for n < len(p) {
		if !s.next(frame[:]) {
			break
		}
		m := copy(p[n:], frame[:])
		n += m
		if m < frameSize {
			s.pending = append(s.pending[:0], frame[m:]...)
		}
	}

	if n == 0 && s.done {
		return 0, io.EOF
	}
	return n, nil
}

// next renders the frame at the current position into buf and advances.
// It reports false at the end of the clip.
func (s *stream) next(buf []byte) bool {
	last := s.pcm.Frames() - 1
	if last < 0 || s.pos > float64(last) {
		s.done = true
		return false
	}

	i := int(s.pos)
	frac := s.pos - float64(i)
	j := min(i+1, last)

	for ch := 0; ch < Channels; ch++ {
		a := float64(s.pcm.Samples[i*Channels+ch])
		b := float64(s.pcm.Samples[j*Channels+ch])
		v := a + (b-a)*frac
		binary.LittleEndian.PutUint16(buf[ch*BytesPerSample:], uint16(int16(math.Round(v))))
	}

	s.pos += s.step
	return true
}
