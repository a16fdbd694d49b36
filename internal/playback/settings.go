package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/speakdrill/speakdrill/internal/clip"
	"github.com/speakdrill/speakdrill/internal/content"
)

// DisplayMode selects which text is shown and whether the secondary
// language is spoken after each line.
type DisplayMode string

const (
	DisplayScript      DisplayMode = "zh"
	DisplayPhonetic    DisplayMode = "zh-pinyin"
	DisplayTranslation DisplayMode = "zh-ja"
	DisplayAll         DisplayMode = "all"
)

// MaxGap is the longest pause allowed between lines in continuous mode.
const MaxGap = 3 * time.Second

// DisplayModes lists every display mode in menu order.
var DisplayModes = []DisplayMode{DisplayScript, DisplayPhonetic, DisplayTranslation, DisplayAll}

// ErrInvalidSetting is returned for values outside a setting's domain.
var ErrInvalidSetting = errors.New("invalid playback setting")

// ParseDisplayMode validates a display mode name.
func ParseDisplayMode(s string) (DisplayMode, error) {
	for _, m := range DisplayModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: display mode %q", ErrInvalidSetting, s)
}

// SpeaksSecondary reports whether lines are followed by their
// secondary-language clip.
func (m DisplayMode) SpeaksSecondary() bool {
	return m == DisplayTranslation || m == DisplayAll
}

// ShowsPhonetic reports whether the phonetic transcription is shown.
func (m DisplayMode) ShowsPhonetic() bool {
	return m == DisplayPhonetic || m == DisplayAll
}

// ShowsTranslation reports whether the translation is shown.
func (m DisplayMode) ShowsTranslation() bool {
	return m.SpeaksSecondary()
}

// Settings are the user-adjustable playback options. They may change at any
// time; changes apply to the next clip unless noted otherwise.
type Settings struct {
	Voice      clip.VoicePolicy
	RateKey    string
	Speed      float64
	Display    DisplayMode
	RoleFilter string
	Continuous bool
	Gap        time.Duration
}

// DefaultSettings returns the settings a new learner starts with.
func DefaultSettings() Settings {
	return Settings{
		Voice:      clip.PolicyFemale,
		RateKey:    clip.RateNormal,
		Speed:      DefaultSpeed,
		Display:    DisplayAll,
		RoleFilter: content.RoleBoth,
		Continuous: true,
	}
}

// Validate checks every field.
func (s Settings) Validate() error {
	if _, err := clip.ParseVoicePolicy(string(s.Voice)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	if !clip.ValidRateKey(s.RateKey) {
		return fmt.Errorf("%w: rate key %q", ErrInvalidSetting, s.RateKey)
	}
	if err := ValidateSpeed(s.Speed); err != nil {
		return err
	}
	if _, err := ParseDisplayMode(string(s.Display)); err != nil {
		return err
	}
	if s.RoleFilter == "" {
		return fmt.Errorf("%w: empty role filter", ErrInvalidSetting)
	}
	if s.Gap < 0 || s.Gap > MaxGap {
		return fmt.Errorf("%w: gap %s outside 0s..%s", ErrInvalidSetting, s.Gap, MaxGap)
	}
	return nil
}
