// Package clip implements the resource naming convention shared by the cache
// and the playback scheduler. A clip request maps deterministically to an
// audio path; the same path is the cache key inside the audio store.
package clip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AudioPrefix is the namespace every generated speech clip lives under.
const AudioPrefix = "/audio/"

// Track selects the language of a clip.
type Track int

const (
	// Primary is the script language (the line text).
	Primary Track = iota
	// Secondary is the translation companion clip.
	Secondary
)

// String returns the string representation of the track.
func (t Track) String() string {
	switch t {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Voice is the voice selector baked into a clip file name.
type Voice string

const (
	Female Voice = "f"
	Male   Voice = "m"
)

// Valid reports whether v names a generated voice.
func (v Voice) Valid() bool {
	return v == Female || v == Male
}

// Rate presets produced by the generation pipeline.
const (
	RateNormal = "100"
	RateSlow   = "085"
)

// RateKeys lists the presets in the order prefetch walks them.
var RateKeys = []string{RateNormal, RateSlow}

// Voices lists the voices in the order prefetch walks them.
var Voices = []Voice{Female, Male}

const secondarySuffix = "__ja"

var (
	// ErrNotAudioPath is returned when a path is outside the audio namespace.
	ErrNotAudioPath = errors.New("not an audio path")

	// ErrMalformedPath is returned when an audio path does not follow the
	// naming convention.
	ErrMalformedPath = errors.New("malformed audio path")
)

// Request identifies one clip. It is recomputed every time a line is played.
type Request struct {
	DialogueID string
	LineIndex  int
	Track      Track
	Voice      Voice
	RateKey    string
}

// Path returns the audio path for the request:
// /audio/{dialogueId}/{%03d}__{voice}__r{rateKey}{__ja}.mp3
func (r Request) Path() string {
	suffix := ""
	if r.Track == Secondary {
		suffix = secondarySuffix
	}
	return fmt.Sprintf("%s%s/%s__%s__r%s%s.mp3",
		AudioPrefix, r.DialogueID, Pad3(r.LineIndex), r.Voice, r.RateKey, suffix)
}

// URL returns the request path joined to base. An empty base yields the path.
func (r Request) URL(base string) string {
	return strings.TrimRight(base, "/") + r.Path()
}

// ParseRequest is the inverse of Request.Path. Query strings and fragments
// are ignored.
func ParseRequest(path string) (Request, error) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, AudioPrefix) {
		return Request{}, ErrNotAudioPath
	}
	rest := strings.TrimPrefix(path, AudioPrefix)
	dialogueID, file, ok := strings.Cut(rest, "/")
	if !ok || dialogueID == "" || strings.Contains(file, "/") {
		return Request{}, fmt.Errorf("%w: %s", ErrMalformedPath, path)
	}
	name, ok := strings.CutSuffix(file, ".mp3")
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrMalformedPath, path)
	}

	req := Request{DialogueID: dialogueID, Track: Primary}
	if trimmed, ok := strings.CutSuffix(name, secondarySuffix); ok {
		req.Track = Secondary
		name = trimmed
	}

	parts := strings.Split(name, "__")
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "r") {
		return Request{}, fmt.Errorf("%w: %s", ErrMalformedPath, path)
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil || index <= 0 {
		return Request{}, fmt.Errorf("%w: bad line number in %s", ErrMalformedPath, path)
	}
	req.LineIndex = index
	req.Voice = Voice(parts[1])
	if !req.Voice.Valid() {
		return Request{}, fmt.Errorf("%w: bad voice in %s", ErrMalformedPath, path)
	}
	req.RateKey = strings.TrimPrefix(parts[2], "r")
	if req.RateKey == "" {
		return Request{}, fmt.Errorf("%w: missing rate in %s", ErrMalformedPath, path)
	}
	return req, nil
}

// IsAudioPath reports whether path lies in the audio namespace.
func IsAudioPath(path string) bool {
	return strings.HasPrefix(path, AudioPrefix)
}

// IsSecondary reports whether path names a secondary-language clip.
func IsSecondary(path string) bool {
	return strings.Contains(path, secondarySuffix)
}

// Pad3 zero-pads a line number to three digits.
func Pad3(i int) string {
	return fmt.Sprintf("%03d", i)
}

// LineKey addresses a line in the score ledger and anywhere else a line
// needs a flat identifier.
func LineKey(dialogueID string, lineIndex int) string {
	return dialogueID + "_" + strconv.Itoa(lineIndex)
}
