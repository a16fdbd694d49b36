package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/speakdrill/speakdrill/internal/clip"
	"github.com/speakdrill/speakdrill/internal/playback"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Cache.AppStore != "app-v29" || cfg.Cache.AudioStore != "audio-v6" {
		t.Errorf("unexpected store names %s/%s", cfg.Cache.AppStore, cfg.Cache.AudioStore)
	}

	s, err := cfg.PlaybackSettings()
	if err != nil {
		t.Fatal(err)
	}
	if s != playback.DefaultSettings() {
		t.Errorf("default playback settings = %+v", s)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"bad origin", func(c *Config) { c.Origin = "ftp://example.com" }, "origin"},
		{"relative origin", func(c *Config) { c.Origin = "/app" }, "origin"},
		{"bad backend", func(c *Config) { c.Cache.Backend = "redis" }, "cache backend"},
		{"bad store name", func(c *Config) { c.Cache.AudioStore = "audio v6" }, "store name"},
		{"same stores", func(c *Config) { c.Cache.AudioStore = c.Cache.AppStore }, "must differ"},
		{"capacity", func(c *Config) { c.Cache.CapacityMB = 0 }, "capacity"},
		{"compression", func(c *Config) { c.Cache.Compression = 30 }, "compression"},
		{"prefetch rate", func(c *Config) { c.Cache.PrefetchRPS = 0 }, "prefetch rate"},
		{"max entry", func(c *Config) { c.Cache.MaxEntryMB = c.Cache.CapacityMB + 1 }, "max entry"},
		{"voice", func(c *Config) { c.Playback.Voice = "x" }, "invalid voice"},
		{"rate key", func(c *Config) { c.Playback.RateKey = "050" }, "rate key"},
		{"speed", func(c *Config) { c.Playback.Speed = 2.5 }, "speed"},
		{"display", func(c *Config) { c.Playback.Display = "en" }, "display mode"},
		{"gap", func(c *Config) { c.Playback.Gap = 5 * time.Second }, "gap"},
		{"volume", func(c *Config) { c.Audio.Volume = 1.5 }, "volume"},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 12345 }, "sample rate"},
		{"buffer", func(c *Config) { c.Audio.Buffer = 0 }, "buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q should mention %q", err, tt.errMsg)
			}
		})
	}
}

func TestValidateExpandsHome(t *testing.T) {
	home, err := homedir.Dir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg := DefaultConfig()
	cfg.Ledger.Path = "~/drill/scores.db"
	cfg.Origin = "https://drill.example.com/"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "drill", "scores.db"); cfg.Ledger.Path != want {
		t.Errorf("ledger path = %q, want %q", cfg.Ledger.Path, want)
	}
	if cfg.Origin != "https://drill.example.com" {
		t.Errorf("trailing slash kept: %q", cfg.Origin)
	}
}

func TestLoadFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
origin: "http://127.0.0.1:9000"
cache:
  backend: memory
  capacity_mb: 64
  max_entry_mb: 8
playback:
  voice: alt
  rate: "085"
  speed: 1.25
  display: zh-ja
  role: B
  continuous: false
  gap: 1.5s
`))
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Origin != "http://127.0.0.1:9000" || cfg.Cache.Backend != BackendMemory {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Cache.CapacityBytes() != 64<<20 {
		t.Errorf("capacity = %d", cfg.Cache.CapacityBytes())
	}
	if cfg.Cache.MaxEntryBytes() != 8<<20 {
		t.Errorf("max entry = %d", cfg.Cache.MaxEntryBytes())
	}

	s, err := cfg.PlaybackSettings()
	if err != nil {
		t.Fatal(err)
	}
	want := playback.Settings{
		Voice:      clip.PolicyAlternating,
		RateKey:    clip.RateSlow,
		Speed:      1.25,
		Display:    playback.DisplayTranslation,
		RoleFilter: "B",
		Continuous: false,
		Gap:        1500 * time.Millisecond,
	}
	if s != want {
		t.Errorf("settings = %+v, want %+v", s, want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("playback.speed", 9)
	if _, err := Load(v); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadServerEnv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("SPEAKDRILL_ADDR=127.0.0.1:9999\nSPEAKDRILL_ROOT=./public\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides variables that are already set
	t.Setenv("SPEAKDRILL_ROOT", "/srv/app")
	t.Setenv("SPEAKDRILL_ADDR", "")
	os.Unsetenv("SPEAKDRILL_ADDR") //nolint:errcheck
	t.Setenv("SPEAKDRILL_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := LoadServerEnv(dotenv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Root != "/srv/app" {
		t.Errorf("root = %q", cfg.Root)
	}
	if cfg.ShutdownTimeout != 3*time.Second || !cfg.Metrics {
		t.Errorf("unexpected env %+v", cfg)
	}
}

func TestLoadServerEnvMissingFile(t *testing.T) {
	t.Setenv("SPEAKDRILL_ADDR", ":7000")
	cfg, err := LoadServerEnv(filepath.Join(t.TempDir(), "nope.env"))
	if err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("addr = %q", cfg.Addr)
	}
}
