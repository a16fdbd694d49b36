package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# base URL of the app shell and its /audio/ clips
origin: "http://localhost:8080"

content:
  # dialogue file (.json, .yaml or .yml)
  path: "dialogues.json"
  # reload the file when it changes (play, drill)
  watch: false

cache:
  # disk or memory
  backend: disk
  # dir: "~/.cache/speakdrill"
  app_store: "app-v29"
  audio_store: "audio-v6"
  # per-store capacity
  capacity_mb: 256
  # zstd level for cached bodies, 0 disables compression
  compression: 3
  # bulk prefetch throttle
  prefetch_rps: 8
  prefetch_burst: 4
  timeout: "15s"
  # larger responses fail instead of being stored
  max_entry_mb: 32

playback:
  # f, m or alt (odd lines female, even lines male)
  voice: f
  # generated rate preset: "100" or "085"
  rate: "100"
  # selector value 0.5 to 2.0; 1.0 plays at 0.6x
  speed: 1.0
  # zh, zh-pinyin, zh-ja or all
  display: all
  # role to follow in continuous mode, or both
  role: both
  continuous: true
  # pause between lines, up to 3s
  gap: "0s"

audio:
  volume: 1.0
  sample_rate: 48000
  buffer: "100ms"

# ledger:
#   path: "~/.local/share/speakdrill/scores.db"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the speakdrill config file",
	Long:    paragraph(fmt.Sprintf("\n%s the speakdrill config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("speakdrill config\nspeakdrill config --config path/to/config.yml"),
	Args:    cobra.NoArgs,

	// The file may be invalid; editing it must still work.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("speakdrill", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
