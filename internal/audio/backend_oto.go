//go:build !nocgo

package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// otoBackend wraps the process-wide oto context. oto allows one context per
// process, so it is created once and shared.
type otoBackend struct {
	context    *oto.Context
	sampleRate int
}

var (
	otoOnce     sync.Once
	otoInstance *otoBackend
	otoErr      error
)

// OtoBackend returns the shared oto backend, creating the context on first
// use. Later calls ignore cfg.
func OtoBackend(cfg Config) (Backend, error) {
	otoOnce.Do(func() {
		if err := cfg.validate(); err != nil {
			otoErr = fmt.Errorf("invalid audio config: %w", err)
			return
		}

		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferSize,
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("%w: %v", ErrNoAudio, err)
			return
		}
		<-ready

		log.Debug("audio context ready", "sampleRate", cfg.SampleRate, "buffer", cfg.BufferSize)
		otoInstance = &otoBackend{context: ctx, sampleRate: cfg.SampleRate}
	})

	if otoErr != nil {
		return nil, otoErr
	}
	return otoInstance, nil
}

func (b *otoBackend) NewPlayer(r io.Reader) Player {
	return b.context.NewPlayer(r)
}

func (b *otoBackend) SampleRate() int {
	return b.sampleRate
}
