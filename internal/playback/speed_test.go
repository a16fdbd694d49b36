package playback

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/speakdrill/speakdrill/internal/clip"
)

func TestActualRate(t *testing.T) {
	tests := []struct {
		speed float64
		want  float64
	}{
		{1.0, 0.6},
		{0.5, 0.3},
		{0.55, 0.33},
		{1.5, 0.9},
		{2.0, 1.2},
		{1.05, 0.63},
	}

	for _, tt := range tests {
		if got := ActualRate(tt.speed); got != tt.want {
			t.Errorf("ActualRate(%v) = %v, want %v", tt.speed, got, tt.want)
		}
	}
}

func TestRateFor(t *testing.T) {
	req := clip.Request{DialogueID: "d", LineIndex: 1, Track: clip.Primary}
	if got := RateFor(req, 2.0); got != 1.2 {
		t.Errorf("primary rate = %v", got)
	}
	req.Track = clip.Secondary
	for _, speed := range []float64{0.5, 1.0, 2.0} {
		if got := RateFor(req, speed); got != BaseRate {
			t.Errorf("secondary rate at %v = %v", speed, got)
		}
	}
}

func TestValidateSpeed(t *testing.T) {
	for _, speed := range []float64{0.5, 1.0, 2.0} {
		if err := ValidateSpeed(speed); err != nil {
			t.Errorf("ValidateSpeed(%v) = %v", speed, err)
		}
	}
	for _, speed := range []float64{0.49, 2.01, math.NaN(), -1} {
		if err := ValidateSpeed(speed); !errors.Is(err, ErrSpeedOutOfRange) {
			t.Errorf("ValidateSpeed(%v) = %v, want ErrSpeedOutOfRange", speed, err)
		}
	}
}

func TestSpeedSteps(t *testing.T) {
	speed := MinSpeed
	for range 30 {
		speed = Faster(speed)
	}
	if speed != MaxSpeed {
		t.Errorf("stepping up ended at %v", speed)
	}
	if got := Slower(Faster(1.0)); got != 1.0 {
		t.Errorf("Slower(Faster(1.0)) = %v", got)
	}
	if got := Slower(MinSpeed); got != MinSpeed {
		t.Errorf("Slower at floor = %v", got)
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatSpeed(1.0); got != "1.00x (Normal)" {
		t.Errorf("FormatSpeed(1.0) = %q", got)
	}
	if got := FormatSpeed(1.25); got != "1.25x" {
		t.Errorf("FormatSpeed(1.25) = %q", got)
	}
	if got := FormatGap(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("FormatGap = %q", got)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}

	broken := map[string]func(*Settings){
		"voice":   func(s *Settings) { s.Voice = "x" },
		"rate":    func(s *Settings) { s.RateKey = "070" },
		"speed":   func(s *Settings) { s.Speed = 5 },
		"display": func(s *Settings) { s.Display = "ko" },
		"role":    func(s *Settings) { s.RoleFilter = "" },
		"gap":     func(s *Settings) { s.Gap = 4 * time.Second },
	}
	for name, mutate := range broken {
		t.Run(name, func(t *testing.T) {
			s := DefaultSettings()
			mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDisplayModes(t *testing.T) {
	for _, m := range DisplayModes {
		got, err := ParseDisplayMode(string(m))
		if err != nil || got != m {
			t.Errorf("ParseDisplayMode(%q) = %q, %v", m, got, err)
		}
	}
	if _, err := ParseDisplayMode("en"); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("expected ErrInvalidSetting, got %v", err)
	}

	speaks := map[DisplayMode]bool{
		DisplayScript:      false,
		DisplayPhonetic:    false,
		DisplayTranslation: true,
		DisplayAll:         true,
	}
	for m, want := range speaks {
		if m.SpeaksSecondary() != want {
			t.Errorf("%s.SpeaksSecondary() = %v", m, !want)
		}
	}
}
