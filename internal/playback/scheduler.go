package playback

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/speakdrill/speakdrill/internal/audio"
	"github.com/speakdrill/speakdrill/internal/clip"
	"github.com/speakdrill/speakdrill/internal/content"
)

// Device is the output the scheduler drives. *audio.Device implements it;
// its events must be delivered to Scheduler.HandleEvent.
type Device interface {
	Assign(url string, token uint64)
	Stop()
	Pause()
	Resume()
	Paused() bool
	SetRate(rate float64)
}

// Content looks up dialogues. *content.Store implements it.
type Content interface {
	Dialogue(id string) (*content.Dialogue, bool)
}

// Timer is a pending gap advance.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, fn func()) Timer

// Observer is told about scheduler activity.
type Observer interface {
	// ClipStarted is called for every device assignment.
	ClipStarted(req clip.Request)
	// ClipFailed is called when the device reports an error.
	ClipFailed(req clip.Request)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(sc *Scheduler) { sc.settings = s }
}

// WithAfterFunc replaces the gap timer implementation.
func WithAfterFunc(fn AfterFunc) Option {
	return func(sc *Scheduler) { sc.afterFunc = fn }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(sc *Scheduler) { sc.observer = o }
}

// Scheduler turns "play this line" into an ordered sequence of clips on the
// single output device. All state is guarded by one mutex; device events and
// timer callbacks carry a token or generation and are dropped when stale.
type Scheduler struct {
	device    Device
	content   Content
	base      string
	afterFunc AfterFunc
	observer  Observer

	mu         sync.Mutex
	settings   Settings
	state      State
	queue      []clip.Request
	active     *clip.Request
	playing    *LineRef
	lastPlayed *LineRef
	selected   string

	// token identifies the current device assignment; gen identifies the
	// current gap timer.
	token uint64
	gen   uint64
	timer Timer

	subscribers []chan Status
}

// New creates a scheduler. base is prefixed to every audio path, for
// example "http://localhost:8080"; it may be empty for relative URLs.
func New(device Device, store Content, base string, opts ...Option) *Scheduler {
	s := &Scheduler{
		device:   device,
		content:  store,
		base:     strings.TrimSuffix(base, "/"),
		settings: DefaultSettings(),
		afterFunc: func(d time.Duration, fn func()) Timer {
			return time.AfterFunc(d, fn)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Play starts a line: its primary clip, then its secondary clip when the
// display mode asks for it. Unknown dialogues or lines are ignored.
func (s *Scheduler) Play(dialogueID string, lineIndex int) {
	s.mu.Lock()
	s.playLocked(dialogueID, lineIndex)
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) playLocked(dialogueID string, lineIndex int) {
	s.cancelTimerLocked()

	d, ok := s.content.Dialogue(dialogueID)
	if !ok {
		log.Debug("play: unknown dialogue", "dialogue", dialogueID)
		s.settleLocked()
		return
	}
	line, ok := d.Line(lineIndex)
	if !ok {
		log.Debug("play: unknown line", "dialogue", dialogueID, "line", lineIndex)
		s.settleLocked()
		return
	}

	s.queue = s.clipsFor(d.ID, line)
	ref := &LineRef{DialogueID: d.ID, Index: line.I}
	s.playing = ref
	s.lastPlayed = ref

	s.device.Stop()
	s.advanceLocked()
}

// settleLocked goes idle when a gap advance was cancelled and nothing
// replaced it.
func (s *Scheduler) settleLocked() {
	if s.state == StateQueued {
		s.playing = nil
		s.state = StateIdle
	}
}

// clipsFor builds the ordered clip list for a line.
func (s *Scheduler) clipsFor(dialogueID string, line content.Line) []clip.Request {
	primary := clip.Request{
		DialogueID: dialogueID,
		LineIndex:  line.I,
		Track:      clip.Primary,
		Voice:      s.settings.Voice.VoiceFor(line.I),
		RateKey:    s.settings.RateKey,
	}
	clips := []clip.Request{primary}

	if s.settings.Display.SpeaksSecondary() && line.HasTranslation() {
		secondary := primary
		secondary.Track = clip.Secondary
		clips = append(clips, secondary)
	}
	return clips
}

// advanceLocked assigns the next queued clip. It reports false when the
// queue is empty.
func (s *Scheduler) advanceLocked() bool {
	if len(s.queue) == 0 {
		return false
	}
	next := s.queue[0]
	s.queue = s.queue[1:]

	s.token++
	s.active = &next
	s.state = StatePlaying

	s.device.SetRate(RateFor(next, s.settings.Speed))
	s.device.Assign(next.URL(s.base), s.token)

	if s.observer != nil {
		s.observer.ClipStarted(next)
	}
	return true
}

// HandleEvent processes a device event. Events for anything but the current
// assignment are ignored.
func (s *Scheduler) HandleEvent(ev audio.Event) {
	s.mu.Lock()
	if ev.Token != s.token || s.active == nil {
		s.mu.Unlock()
		return
	}

	switch ev.Kind {
	case audio.EventReady:
		s.device.SetRate(RateFor(*s.active, s.settings.Speed))
		s.mu.Unlock()
		return

	case audio.EventEnded:
		s.active = nil
		s.token++
		s.onEndedLocked()

	case audio.EventError:
		failed := *s.active
		log.Warn("clip failed, stopping", "url", ev.URL, "error", ev.Err)
		s.queue = nil
		s.active = nil
		s.playing = nil
		s.state = StateIdle
		s.token++
		if s.observer != nil {
			s.observer.ClipFailed(failed)
		}
	}

	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) onEndedLocked() {
	if s.advanceLocked() {
		return
	}

	if s.settings.Continuous && s.playing != nil {
		if d, ok := s.content.Dialogue(s.playing.DialogueID); ok {
			if next, ok := d.NextEligible(s.playing.Index, s.settings.RoleFilter); ok {
				s.scheduleLocked(d.ID, next.I)
				return
			}
		}
	}

	s.playing = nil
	s.state = StateIdle
}

// scheduleLocked plays a line after the configured gap, or right away when
// the gap is zero.
func (s *Scheduler) scheduleLocked(dialogueID string, lineIndex int) {
	s.cancelTimerLocked()

	if s.settings.Gap <= 0 {
		s.playLocked(dialogueID, lineIndex)
		return
	}

	s.state = StateQueued
	gen := s.gen
	s.timer = s.afterFunc(s.settings.Gap, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.playLocked(dialogueID, lineIndex)
		s.mu.Unlock()
		s.notify()
	})
}

// cancelTimerLocked invalidates any pending gap advance.
func (s *Scheduler) cancelTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// abandonGapLocked cancels a pending advance and goes idle if the scheduler
// was only waiting for it.
func (s *Scheduler) abandonGapLocked() {
	s.cancelTimerLocked()
	s.settleLocked()
}

// Stop cancels the sequence and rewinds the device. "Last played" is kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancelTimerLocked()
	s.queue = nil
	s.active = nil
	s.playing = nil
	s.state = StateIdle
	s.token++
	s.device.Stop()
	s.mu.Unlock()
	s.notify()
}

// Restart plays the first line of a dialogue. An empty id selects the
// current dialogue, then the one playing, then the one played last.
func (s *Scheduler) Restart(dialogueID string) {
	s.mu.Lock()
	if dialogueID == "" {
		switch {
		case s.selected != "":
			dialogueID = s.selected
		case s.playing != nil:
			dialogueID = s.playing.DialogueID
		case s.lastPlayed != nil:
			dialogueID = s.lastPlayed.DialogueID
		}
	}

	if d, ok := s.content.Dialogue(dialogueID); ok {
		if first, ok := d.FirstIndex(); ok {
			s.playLocked(d.ID, first)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Resume continues a paused clip in place. Otherwise it replays the line
// played last from its start, interrupting whatever is playing or queued.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	switch {
	case s.active != nil && s.device.Paused():
		s.device.Resume()
	case s.lastPlayed != nil:
		s.playLocked(s.lastPlayed.DialogueID, s.lastPlayed.Index)
	}
	s.mu.Unlock()
	s.notify()
}

// Pause pauses the device if it is playing.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	if !s.device.Paused() {
		s.device.Pause()
	}
	s.mu.Unlock()
	s.notify()
}

// Toggle pauses an active line, resumes a paused one, cancels a pending
// advance, or replays the line played last when nothing is active.
func (s *Scheduler) Toggle() {
	s.mu.Lock()
	switch {
	case s.playing != nil && s.active != nil:
		if s.device.Paused() {
			s.device.Resume()
		} else {
			s.device.Pause()
		}
	case s.state == StateQueued:
		s.abandonGapLocked()
	case s.playing == nil && s.lastPlayed != nil:
		s.playLocked(s.lastPlayed.DialogueID, s.lastPlayed.Index)
	}
	s.mu.Unlock()
	s.notify()
}

// Select marks a dialogue as the current one for Restart. Selecting a
// dialogue cancels a pending gap advance.
func (s *Scheduler) Select(dialogueID string) {
	s.mu.Lock()
	s.selected = dialogueID
	s.abandonGapLocked()
	s.mu.Unlock()
	s.notify()
}

// SetSpeed changes the rate selector. A primary clip that is playing picks
// up the new rate immediately.
func (s *Scheduler) SetSpeed(speed float64) error {
	if err := ValidateSpeed(speed); err != nil {
		return err
	}

	s.mu.Lock()
	s.settings.Speed = speed
	if s.active != nil && s.active.Track == clip.Primary {
		s.device.SetRate(ActualRate(speed))
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Faster steps the rate selector up.
func (s *Scheduler) Faster() float64 {
	speed := Faster(s.Settings().Speed)
	_ = s.SetSpeed(speed)
	return speed
}

// Slower steps the rate selector down.
func (s *Scheduler) Slower() float64 {
	speed := Slower(s.Settings().Speed)
	_ = s.SetSpeed(speed)
	return speed
}

// SetVoice changes the voice policy for lines played from now on.
func (s *Scheduler) SetVoice(p clip.VoicePolicy) {
	s.update(func(st *Settings) { st.Voice = p })
}

// SetRateKey changes the generated rate preset for lines played from now on.
func (s *Scheduler) SetRateKey(key string) {
	s.update(func(st *Settings) { st.RateKey = key })
}

// SetDisplay changes the display mode.
func (s *Scheduler) SetDisplay(m DisplayMode) {
	s.update(func(st *Settings) { st.Display = m })
}

// SetRoleFilter changes which roles continuous mode advances to.
func (s *Scheduler) SetRoleFilter(role string) {
	s.update(func(st *Settings) { st.RoleFilter = role })
}

// SetGap changes the pause between lines, clamped to 0..MaxGap.
func (s *Scheduler) SetGap(gap time.Duration) {
	gap = min(max(gap, 0), MaxGap)
	s.update(func(st *Settings) { st.Gap = gap })
}

// SetContinuous turns continuous mode on or off. Turning it off cancels a
// pending advance.
func (s *Scheduler) SetContinuous(on bool) {
	s.mu.Lock()
	s.settings.Continuous = on
	if !on {
		s.abandonGapLocked()
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) update(fn func(*Settings)) {
	s.mu.Lock()
	fn(&s.settings)
	s.mu.Unlock()
	s.notify()
}

// Settings returns a copy of the current settings.
func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}
