package clip

import "fmt"

// VoicePolicy is the user's voice selector: a fixed voice or alternating.
type VoicePolicy string

const (
	PolicyFemale      VoicePolicy = "f"
	PolicyMale        VoicePolicy = "m"
	PolicyAlternating VoicePolicy = "alt"
)

// ParseVoicePolicy validates a voice selector string.
func ParseVoicePolicy(s string) (VoicePolicy, error) {
	switch p := VoicePolicy(s); p {
	case PolicyFemale, PolicyMale, PolicyAlternating:
		return p, nil
	default:
		return "", fmt.Errorf("invalid voice %q: use f, m or alt", s)
	}
}

// VoiceFor returns the effective voice for a line. Alternation depends only
// on the line's sequence index: odd lines get the female voice, even lines
// the male one.
func (p VoicePolicy) VoiceFor(lineIndex int) Voice {
	switch p {
	case PolicyFemale:
		return Female
	case PolicyMale:
		return Male
	default:
		if lineIndex%2 == 1 {
			return Female
		}
		return Male
	}
}

// ValidRateKey reports whether key is one of the generated presets.
func ValidRateKey(key string) bool {
	for _, k := range RateKeys {
		if k == key {
			return true
		}
	}
	return false
}
