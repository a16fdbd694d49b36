package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnsupportedFormat is returned for content files that are neither
	// JSON nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported content format")

	// ErrNoDialogues is returned when a content document has no dialogues array.
	ErrNoDialogues = errors.New("content has no dialogues")
)

// document is the on-disk shape of the content store.
type document struct {
	Dialogues []*Dialogue `json:"dialogues" yaml:"dialogues"`
}

// Store is the dialogue collection. It is safe for concurrent use and can be
// swapped wholesale by Replace when the content file changes.
type Store struct {
	mu        sync.RWMutex
	dialogues []*Dialogue
	byID      map[string]*Dialogue
}

// NewStore builds a store from dialogues. Lines are sorted by index.
func NewStore(dialogues []*Dialogue) *Store {
	s := &Store{}
	s.Replace(dialogues)
	return s
}

// Load reads a content file. The format follows the extension: .json, .yaml
// or .yml.
func Load(path string) (*Store, error) {
	dialogues, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewStore(dialogues), nil
}

// Parse decodes a JSON content document.
func Parse(data []byte) (*Store, error) {
	dialogues, err := decode(data, ".json")
	if err != nil {
		return nil, err
	}
	return NewStore(dialogues), nil
}

// Replace swaps the dialogue set.
func (s *Store) Replace(dialogues []*Dialogue) {
	byID := make(map[string]*Dialogue, len(dialogues))
	kept := make([]*Dialogue, 0, len(dialogues))
	for _, d := range dialogues {
		if d == nil || d.ID == "" {
			continue
		}
		d.sortLines()
		byID[d.ID] = d
		kept = append(kept, d)
	}

	s.mu.Lock()
	s.dialogues = kept
	s.byID = byID
	s.mu.Unlock()
}

// Dialogue looks up a dialogue by identifier.
func (s *Store) Dialogue(id string) (*Dialogue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	return d, ok
}

// Dialogues returns all dialogues in document order.
func (s *Store) Dialogues() []*Dialogue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Dialogue, len(s.dialogues))
	copy(out, s.dialogues)
	return out
}

// Find resolves a user query to a dialogue: an exact identifier wins,
// otherwise the best fuzzy match over identifiers and titles.
func (s *Store) Find(query string) (*Dialogue, bool) {
	if d, ok := s.Dialogue(query); ok {
		return d, true
	}

	dialogues := s.Dialogues()
	targets := make([]string, len(dialogues))
	for i, d := range dialogues {
		targets[i] = d.ID + " " + d.Title
	}
	matches := fuzzy.Find(query, targets)
	if len(matches) == 0 {
		return nil, false
	}
	return dialogues[matches[0].Index], true
}

func readFile(path string) ([]*Dialogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read content: %w", err)
	}
	return decode(data, strings.ToLower(filepath.Ext(path)))
}

func decode(data []byte, ext string) ([]*Dialogue, error) {
	var doc document
	switch ext {
	case ".json":
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("unable to parse content json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unable to parse content yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if doc.Dialogues == nil {
		return nil, ErrNoDialogues
	}
	for _, d := range doc.Dialogues {
		if d != nil {
			normalize(d)
		}
	}
	return doc.Dialogues, nil
}

// normalize puts script text in NFC so lookups and fuzzy matching compare
// composed characters.
func normalize(d *Dialogue) {
	d.Title = norm.NFC.String(d.Title)
	for i := range d.Lines {
		l := &d.Lines[i]
		l.Text = norm.NFC.String(l.Text)
		l.Phonetic = norm.NFC.String(l.Phonetic)
		l.Translation = norm.NFC.String(l.Translation)
	}
}
