package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EventKind identifies a device event.
type EventKind int

const (
	// EventReady fires once a clip is decoded and attached to the output.
	EventReady EventKind = iota
	// EventEnded fires when a clip played to its natural end.
	EventEnded
	// EventError fires when a clip could not be fetched, decoded or played.
	EventError
)

// String returns the string representation of the event kind
func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by the device. Token is the value passed to the Assign
// call the event belongs to.
type Event struct {
	Kind  EventKind
	Token uint64
	URL   string
	Err   error
}

// ErrDeviceClosed is returned by operations on a closed device.
var ErrDeviceClosed = errors.New("device closed")

// Option configures a Device.
type Option func(*Device)

// WithHTTPClient sets the client used to fetch clips. Pass a client whose
// transport goes through the offline cache.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Device) { d.client = c }
}

// WithDecoder replaces the MP3 decoder.
func WithDecoder(fn DecodeFunc) Option {
	return func(d *Device) { d.decode = fn }
}

// WithVolume sets the playback volume (0.0 to 1.0).
func WithVolume(v float64) Option {
	return func(d *Device) { d.volume = v }
}

// WithPollInterval sets how often a playing clip is checked for completion.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) { d.poll = interval }
}

// Device is the single audio output. Assign replaces whatever is playing;
// there is never more than one clip attached.
type Device struct {
	backend Backend
	client  *http.Client
	decode  DecodeFunc
	poll    time.Duration
	volume  float64

	mu        sync.Mutex
	token     uint64
	url       string
	cancel    context.CancelFunc
	stream    *stream
	player    Player
	paused    bool
	rate      float64
	listeners []func(Event)
	closed    bool
}

// NewDevice creates a device on backend.
func NewDevice(backend Backend, opts ...Option) *Device {
	d := &Device{
		backend: backend,
		client:  http.DefaultClient,
		decode:  DecodeMP3,
		poll:    20 * time.Millisecond,
		volume:  1.0,
		paused:  true,
		rate:    1.0,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Listen registers fn for every event. Events are delivered from device
// goroutines without the device lock held, so fn may call back into the
// device.
func (d *Device) Listen(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Assign stops the current clip and starts loading url. Playback begins as
// soon as the clip is decoded unless Pause is called first.
func (d *Device) Assign(url string, token uint64) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.detachLocked()

	ctx, cancel := context.WithCancel(context.Background())
	d.token = token
	d.url = url
	d.cancel = cancel
	d.paused = false
	d.mu.Unlock()

	go d.load(ctx, url, token)
}

// load fetches and decodes a clip, then attaches it if the assignment is
// still current.
func (d *Device) load(ctx context.Context, url string, token uint64) {
	pcm, err := d.fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.fail(token, url, err)
		return
	}

	d.mu.Lock()
	if d.token != token || d.closed || ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	s := newStream(pcm, d.backend.SampleRate(), d.rate)
	p := d.backend.NewPlayer(s)
	p.SetVolume(d.volume)
	d.stream = s
	d.player = p
	if !d.paused {
		p.Play()
	}
	d.mu.Unlock()

	log.Debug("clip ready", "url", url, "frames", pcm.Frames(), "sampleRate", pcm.SampleRate)
	d.emit(Event{Kind: EventReady, Token: token, URL: url})
	go d.watch(token, p)
}

func (d *Device) fetch(ctx context.Context, url string) (*PCM, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return d.decode(data)
}

// watch polls player p until it finishes, is replaced or the assignment
// changes.
func (d *Device) watch(token uint64, p Player) {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for range ticker.C {
		d.mu.Lock()
		if d.token != token || d.player != p || d.closed {
			d.mu.Unlock()
			return
		}
		if d.paused || !d.stream.exhausted() || p.IsPlaying() {
			d.mu.Unlock()
			continue
		}

		// Natural end: leave the stream rewound and paused, like a media
		// element that reached its end.
		url := d.url
		_ = p.Close()
		d.player = nil
		d.stream.rewind()
		d.paused = true
		d.mu.Unlock()

		d.emit(Event{Kind: EventEnded, Token: token, URL: url})
		return
	}
}

func (d *Device) fail(token uint64, url string, err error) {
	d.mu.Lock()
	if d.token != token || d.closed {
		d.mu.Unlock()
		return
	}
	d.detachLocked()
	d.paused = true
	d.mu.Unlock()

	log.Debug("clip failed", "url", url, "error", err)
	d.emit(Event{Kind: EventError, Token: token, URL: url, Err: err})
}

// Stop pauses and rewinds the current clip.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil && d.stream == nil {
		// Still loading: abandon it
		d.cancel()
		d.cancel = nil
	}
	if d.player != nil {
		d.player.Pause()
		_ = d.player.Close()
		d.player = nil
	}
	if d.stream != nil {
		d.stream.rewind()
	}
	d.paused = true
}

// Pause pauses playback. A clip that is still loading stays paused once
// it is ready.
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.paused = true
	if d.player != nil {
		d.player.Pause()
	}
}

// Resume continues playback of the current clip, from the start if it was
// stopped. It does nothing when no clip is assigned.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.url == "" {
		return
	}
	d.paused = false

	switch {
	case d.player != nil:
		d.player.Play()
	case d.stream != nil:
		p := d.backend.NewPlayer(d.stream)
		p.SetVolume(d.volume)
		p.Play()
		d.player = p
		go d.watch(d.token, p)
	}
}

// Paused reports whether the device is paused. A freshly assigned clip
// counts as playing while it loads.
func (d *Device) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// SetRate changes the playback rate of the current and future clips.
func (d *Device) SetRate(rate float64) {
	if rate <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.rate = rate
	if d.stream != nil {
		d.stream.setRate(rate)
	}
}

// Rate returns the current playback rate.
func (d *Device) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// Close stops playback and releases the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	d.detachLocked()
	d.closed = true
	return nil
}

// detachLocked drops the current clip (must be called with lock held).
func (d *Device) detachLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.player != nil {
		d.player.Pause()
		_ = d.player.Close()
		d.player = nil
	}
	d.stream = nil
}

func (d *Device) emit(ev Event) {
	d.mu.Lock()
	listeners := slices.Clone(d.listeners)
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
