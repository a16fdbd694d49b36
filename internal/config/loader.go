package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults registers the defaults on v so that "speakdrill config" and
// environment overrides see every key.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("origin", d.Origin)

	v.SetDefault("content.path", d.Content.Path)
	v.SetDefault("content.watch", d.Content.Watch)

	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.app_store", d.Cache.AppStore)
	v.SetDefault("cache.audio_store", d.Cache.AudioStore)
	v.SetDefault("cache.capacity_mb", d.Cache.CapacityMB)
	v.SetDefault("cache.compression", d.Cache.Compression)
	v.SetDefault("cache.prefetch_rps", d.Cache.PrefetchRPS)
	v.SetDefault("cache.prefetch_burst", d.Cache.PrefetchBurst)
	v.SetDefault("cache.timeout", d.Cache.Timeout)
	v.SetDefault("cache.max_entry_mb", d.Cache.MaxEntryMB)

	v.SetDefault("playback.voice", d.Playback.Voice)
	v.SetDefault("playback.rate", d.Playback.RateKey)
	v.SetDefault("playback.speed", d.Playback.Speed)
	v.SetDefault("playback.display", d.Playback.Display)
	v.SetDefault("playback.role", d.Playback.RoleFilter)
	v.SetDefault("playback.continuous", d.Playback.Continuous)
	v.SetDefault("playback.gap", d.Playback.Gap)

	v.SetDefault("audio.volume", d.Audio.Volume)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.buffer", d.Audio.Buffer)

	v.SetDefault("ledger.path", d.Ledger.Path)
}

// Load builds a Config from v, starting from the defaults, and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("origin") {
		cfg.Origin = v.GetString("origin")
	}

	if v.IsSet("content.path") {
		cfg.Content.Path = v.GetString("content.path")
	}
	if v.IsSet("content.watch") {
		cfg.Content.Watch = v.GetBool("content.watch")
	}

	if v.IsSet("cache.dir") {
		cfg.Cache.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.backend") {
		cfg.Cache.Backend = v.GetString("cache.backend")
	}
	if v.IsSet("cache.app_store") {
		cfg.Cache.AppStore = v.GetString("cache.app_store")
	}
	if v.IsSet("cache.audio_store") {
		cfg.Cache.AudioStore = v.GetString("cache.audio_store")
	}
	if v.IsSet("cache.capacity_mb") {
		cfg.Cache.CapacityMB = v.GetInt("cache.capacity_mb")
	}
	if v.IsSet("cache.compression") {
		cfg.Cache.Compression = v.GetInt("cache.compression")
	}
	if v.IsSet("cache.prefetch_rps") {
		cfg.Cache.PrefetchRPS = v.GetFloat64("cache.prefetch_rps")
	}
	if v.IsSet("cache.prefetch_burst") {
		cfg.Cache.PrefetchBurst = v.GetInt("cache.prefetch_burst")
	}
	if v.IsSet("cache.timeout") {
		cfg.Cache.Timeout = v.GetDuration("cache.timeout")
	}
	if v.IsSet("cache.max_entry_mb") {
		cfg.Cache.MaxEntryMB = v.GetInt("cache.max_entry_mb")
	}

	if v.IsSet("playback.voice") {
		cfg.Playback.Voice = v.GetString("playback.voice")
	}
	if v.IsSet("playback.rate") {
		cfg.Playback.RateKey = v.GetString("playback.rate")
	}
	if v.IsSet("playback.speed") {
		cfg.Playback.Speed = v.GetFloat64("playback.speed")
	}
	if v.IsSet("playback.display") {
		cfg.Playback.Display = v.GetString("playback.display")
	}
	if v.IsSet("playback.role") {
		cfg.Playback.RoleFilter = v.GetString("playback.role")
	}
	if v.IsSet("playback.continuous") {
		cfg.Playback.Continuous = v.GetBool("playback.continuous")
	}
	if v.IsSet("playback.gap") {
		cfg.Playback.Gap = v.GetDuration("playback.gap")
	}

	if v.IsSet("audio.volume") {
		cfg.Audio.Volume = v.GetFloat64("audio.volume")
	}
	if v.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = v.GetInt("audio.sample_rate")
	}
	if v.IsSet("audio.buffer") {
		cfg.Audio.Buffer = v.GetDuration("audio.buffer")
	}

	if v.IsSet("ledger.path") {
		cfg.Ledger.Path = v.GetString("ledger.path")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
