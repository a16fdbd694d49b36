package playback

import (
	"fmt"

	"github.com/speakdrill/speakdrill/internal/clip"
)

// State is the scheduler's coarse playback state.
type State int

const (
	// StateIdle means no line is playing or pending.
	StateIdle State = iota
	// StateQueued means the scheduler is waiting out the gap before the next
	// line in continuous mode.
	StateQueued
	// StatePlaying means a clip is assigned to the device.
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LineRef points at one line of one dialogue.
type LineRef struct {
	DialogueID string
	Index      int
}

func (r LineRef) String() string {
	return clip.LineKey(r.DialogueID, r.Index)
}

// Status is a point-in-time snapshot for rendering.
type Status struct {
	State      State
	Playing    *LineRef
	LastPlayed *LineRef
	Selected   string
	Clip       *clip.Request
	Paused     bool
	Pending    int
	Settings   Settings
}

// Highlighted reports whether line i of dialogue id is the one playing.
func (s Status) Highlighted(id string, i int) bool {
	return s.Playing != nil && s.Playing.DialogueID == id && s.Playing.Index == i
}

// Status returns the current snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() Status {
	st := Status{
		State:    s.state,
		Selected: s.selected,
		Paused:   s.device.Paused(),
		Pending:  len(s.queue),
		Settings: s.settings,
	}
	if s.playing != nil {
		ref := *s.playing
		st.Playing = &ref
	}
	if s.lastPlayed != nil {
		ref := *s.lastPlayed
		st.LastPlayed = &ref
	}
	if s.active != nil {
		req := *s.active
		st.Clip = &req
	}
	return st
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow readers miss intermediate snapshots, never the latest one.
func (s *Scheduler) Subscribe() <-chan Status {
	ch := make(chan Status, 1)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Scheduler) notify() {
	s.mu.Lock()
	if len(s.subscribers) == 0 {
		s.mu.Unlock()
		return
	}
	st := s.statusLocked()
	subs := s.subscribers
	s.mu.Unlock()

	for _, ch := range subs {
		// Replace a stale snapshot nobody has read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
