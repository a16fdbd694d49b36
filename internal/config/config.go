// Package config holds speakdrill's typed configuration: defaults, loading
// from viper and the server environment, and validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"

	"github.com/speakdrill/speakdrill/internal/cache"
	"github.com/speakdrill/speakdrill/internal/clip"
	"github.com/speakdrill/speakdrill/internal/content"
	"github.com/speakdrill/speakdrill/internal/playback"
)

// AppName names the config file, the env prefix and the user directories.
const AppName = "speakdrill"

// Cache backends.
const (
	BackendDisk   = "disk"
	BackendMemory = "memory"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config contains every speakdrill option.
type Config struct {
	// Origin is the base URL the app shell and audio clips are fetched from.
	Origin string `yaml:"origin"`

	Content  ContentConfig  `yaml:"content"`
	Cache    CacheConfig    `yaml:"cache"`
	Playback PlaybackConfig `yaml:"playback"`
	Audio    AudioConfig    `yaml:"audio"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// ContentConfig locates the dialogue file.
type ContentConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// CacheConfig configures the offline cache.
type CacheConfig struct {
	Dir           string        `yaml:"dir"`
	Backend       string        `yaml:"backend"`
	AppStore      string        `yaml:"app_store"`
	AudioStore    string        `yaml:"audio_store"`
	CapacityMB    int           `yaml:"capacity_mb"`
	Compression   int           `yaml:"compression"`
	PrefetchRPS   float64       `yaml:"prefetch_rps"`
	PrefetchBurst int           `yaml:"prefetch_burst"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxEntryMB    int           `yaml:"max_entry_mb"`
}

// PlaybackConfig holds the initial playback settings.
type PlaybackConfig struct {
	Voice      string        `yaml:"voice"`
	RateKey    string        `yaml:"rate"`
	Speed      float64       `yaml:"speed"`
	Display    string        `yaml:"display"`
	RoleFilter string        `yaml:"role"`
	Continuous bool          `yaml:"continuous"`
	Gap        time.Duration `yaml:"gap"`
}

// AudioConfig configures the output device.
type AudioConfig struct {
	Volume     float64       `yaml:"volume"`
	SampleRate int           `yaml:"sample_rate"`
	Buffer     time.Duration `yaml:"buffer"`
}

// LedgerConfig locates the score database.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the built-in defaults. Directories come from the
// user's platform cache and data locations.
func DefaultConfig() Config {
	scope := gap.NewScope(gap.User, AppName)

	cacheDir, err := scope.CacheDir()
	if err != nil {
		cacheDir = filepath.Join("~", ".cache", AppName)
	}
	ledgerPath, err := scope.DataPath("scores.db")
	if err != nil {
		ledgerPath = filepath.Join("~", ".local", "share", AppName, "scores.db")
	}

	settings := playback.DefaultSettings()
	return Config{
		Origin: "http://localhost:8080",
		Content: ContentConfig{
			Path: "dialogues.json",
		},
		Cache: CacheConfig{
			Dir:           cacheDir,
			Backend:       BackendDisk,
			AppStore:      cache.DefaultAppStore,
			AudioStore:    cache.DefaultAudioStore,
			CapacityMB:    256,
			Compression:   3,
			PrefetchRPS:   8,
			PrefetchBurst: 4,
			Timeout:       15 * time.Second,
			MaxEntryMB:    32,
		},
		Playback: PlaybackConfig{
			Voice:      string(settings.Voice),
			RateKey:    settings.RateKey,
			Speed:      settings.Speed,
			Display:    string(settings.Display),
			RoleFilter: settings.RoleFilter,
			Continuous: settings.Continuous,
			Gap:        settings.Gap,
		},
		Audio: AudioConfig{
			Volume:     1.0,
			SampleRate: 48000,
			Buffer:     100 * time.Millisecond,
		},
		Ledger: LedgerConfig{
			Path: ledgerPath,
		},
	}
}

// Validate checks every section and expands "~" in paths.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: origin %q must be an http(s) URL", ErrInvalidConfig, c.Origin)
	}
	c.Origin = strings.TrimRight(c.Origin, "/")

	for _, p := range []*string{&c.Content.Path, &c.Cache.Dir, &c.Ledger.Path} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*p = expanded
	}

	if err := c.Cache.validate(); err != nil {
		return err
	}
	if _, err := c.PlaybackSettings(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("%w: volume must be between 0.0 and 1.0, got %.2f", ErrInvalidConfig, c.Audio.Volume)
	}
	validRates := []int{22050, 44100, 48000}
	rateValid := false
	for _, r := range validRates {
		if c.Audio.SampleRate == r {
			rateValid = true
			break
		}
	}
	if !rateValid {
		return fmt.Errorf("%w: sample rate %d must be one of %v", ErrInvalidConfig, c.Audio.SampleRate, validRates)
	}
	if c.Audio.Buffer <= 0 {
		return fmt.Errorf("%w: audio buffer must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *CacheConfig) validate() error {
	c.Backend = strings.ToLower(c.Backend)
	if c.Backend != BackendDisk && c.Backend != BackendMemory {
		return fmt.Errorf("%w: cache backend %q must be %s or %s", ErrInvalidConfig, c.Backend, BackendDisk, BackendMemory)
	}
	for _, name := range []string{c.AppStore, c.AudioStore} {
		if !cache.ValidStoreName(name) {
			return fmt.Errorf("%w: store name %q", ErrInvalidConfig, name)
		}
	}
	if c.AppStore == c.AudioStore {
		return fmt.Errorf("%w: app and audio stores must differ", ErrInvalidConfig)
	}
	if c.CapacityMB < 1 || c.CapacityMB > 10000 {
		return fmt.Errorf("%w: cache capacity must be between 1 and 10000 MB, got %d", ErrInvalidConfig, c.CapacityMB)
	}
	if c.Compression < 0 || c.Compression > 22 {
		return fmt.Errorf("%w: compression level must be between 0 and 22, got %d", ErrInvalidConfig, c.Compression)
	}
	if c.PrefetchRPS <= 0 {
		return fmt.Errorf("%w: prefetch rate must be positive", ErrInvalidConfig)
	}
	if c.PrefetchBurst < 1 {
		c.PrefetchBurst = 1
	}
	if c.MaxEntryMB < 1 || c.MaxEntryMB > c.CapacityMB {
		return fmt.Errorf("%w: max entry size must be between 1 MB and the cache capacity, got %d", ErrInvalidConfig, c.MaxEntryMB)
	}
	return nil
}

// CapacityBytes returns the store capacity in bytes.
func (c CacheConfig) CapacityBytes() int64 {
	return int64(c.CapacityMB) * 1024 * 1024
}

// MaxEntryBytes returns the largest response body the cache will fetch.
func (c CacheConfig) MaxEntryBytes() int64 {
	return int64(c.MaxEntryMB) * 1024 * 1024
}

// PlaybackSettings converts the playback section into scheduler settings.
func (c *Config) PlaybackSettings() (playback.Settings, error) {
	voice, err := clip.ParseVoicePolicy(c.Playback.Voice)
	if err != nil {
		return playback.Settings{}, err
	}
	display, err := playback.ParseDisplayMode(c.Playback.Display)
	if err != nil {
		return playback.Settings{}, err
	}
	role := c.Playback.RoleFilter
	if role == "" {
		role = content.RoleBoth
	}

	s := playback.Settings{
		Voice:      voice,
		RateKey:    c.Playback.RateKey,
		Speed:      c.Playback.Speed,
		Display:    display,
		RoleFilter: role,
		Continuous: c.Playback.Continuous,
		Gap:        c.Playback.Gap,
	}
	return s, s.Validate()
}
