package playback

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/speakdrill/speakdrill/internal/clip"
)

// Speed limits for the user's rate selector.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	SpeedStep    = 0.05
	DefaultSpeed = 1.0

	// BaseRate is the device rate that corresponds to a selector value of
	// 1.0. Secondary-language clips always play at exactly this rate.
	BaseRate = 0.6
)

var (
	// ErrSpeedOutOfRange is returned when speed is outside valid range
	ErrSpeedOutOfRange = errors.New("speed must be between 0.5 and 2.0")
)

// ValidateSpeed checks a selector value.
func ValidateSpeed(speed float64) error {
	if math.IsNaN(speed) || speed < MinSpeed || speed > MaxSpeed {
		return ErrSpeedOutOfRange
	}
	return nil
}

// ActualRate converts a selector value into the device rate, rounded to
// three decimals.
func ActualRate(speed float64) float64 {
	return math.Round(speed*BaseRate*1000) / 1000
}

// RateFor returns the device rate for a clip: the fixed base rate for the
// secondary track, the scaled selector value otherwise.
func RateFor(req clip.Request, speed float64) float64 {
	if req.Track == clip.Secondary {
		return BaseRate
	}
	return ActualRate(speed)
}

// Faster returns the next speed step above speed, capped at MaxSpeed.
func Faster(speed float64) float64 {
	return snap(math.Min(MaxSpeed, speed+SpeedStep))
}

// Slower returns the next speed step below speed, floored at MinSpeed.
func Slower(speed float64) float64 {
	return snap(math.Max(MinSpeed, speed-SpeedStep))
}

// snap rounds to the step grid so repeated steps do not drift.
func snap(speed float64) float64 {
	return math.Round(math.Round(speed/SpeedStep)*SpeedStep*100) / 100
}

// FormatSpeed returns a human-readable speed description.
func FormatSpeed(speed float64) string {
	switch speed {
	case MinSpeed:
		return "0.50x (Half Speed)"
	case DefaultSpeed:
		return "1.00x (Normal)"
	case MaxSpeed:
		return "2.00x (Double Speed)"
	default:
		return fmt.Sprintf("%.2fx", speed)
	}
}

// FormatGap renders a gap in seconds with one decimal.
func FormatGap(gap time.Duration) string {
	return fmt.Sprintf("%.1fs", gap.Seconds())
}
