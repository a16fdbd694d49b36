// Package content provides read-only access to the dialogue collection: the
// ordered lines of each dialogue, role-filter eligibility and lookup helpers
// the playback scheduler needs.
package content

import (
	"sort"

	"github.com/speakdrill/speakdrill/internal/clip"
)

// RoleBoth is the role filter that admits every line.
const RoleBoth = "both"

// Line is one utterance in a dialogue.
type Line struct {
	I           int    `json:"i" yaml:"i"`
	Role        string `json:"role" yaml:"role"`
	Text        string `json:"zh" yaml:"zh"`
	Phonetic    string `json:"pinyin" yaml:"pinyin"`
	Translation string `json:"ja,omitempty" yaml:"ja,omitempty"`
}

// Eligible reports whether the line passes the role filter.
func (l Line) Eligible(filter string) bool {
	return filter == RoleBoth || l.Role == filter
}

// HasTranslation reports whether the line has secondary-language text.
func (l Line) HasTranslation() bool {
	return l.Translation != ""
}

// Dialogue is an ordered sequence of lines. Lines are kept sorted by index.
type Dialogue struct {
	ID    string `json:"dialogueId" yaml:"dialogueId"`
	Title string `json:"title" yaml:"title"`
	Lines []Line `json:"lines" yaml:"lines"`
}

// Line returns the line with sequence index i.
func (d *Dialogue) Line(i int) (Line, bool) {
	pos := d.position(i)
	if pos < 0 {
		return Line{}, false
	}
	return d.Lines[pos], true
}

// FirstIndex returns the minimum line index.
func (d *Dialogue) FirstIndex() (int, bool) {
	if len(d.Lines) == 0 {
		return 0, false
	}
	return d.Lines[0].I, true
}

// NextEligible returns the first line strictly after index i, in dialogue
// order, whose role passes filter.
func (d *Dialogue) NextEligible(i int, filter string) (Line, bool) {
	pos := d.position(i)
	if pos < 0 {
		return Line{}, false
	}
	for _, line := range d.Lines[pos+1:] {
		if line.Eligible(filter) {
			return line, true
		}
	}
	return Line{}, false
}

// Roles returns the distinct roles in order of first appearance.
func (d *Dialogue) Roles() []string {
	var roles []string
	seen := make(map[string]bool)
	for _, line := range d.Lines {
		if !seen[line.Role] {
			seen[line.Role] = true
			roles = append(roles, line.Role)
		}
	}
	return roles
}

// ClipLines describes the lines for the audio naming convention.
func (d *Dialogue) ClipLines() []clip.LineInfo {
	infos := make([]clip.LineInfo, len(d.Lines))
	for n, line := range d.Lines {
		infos[n] = clip.LineInfo{Index: line.I, HasTranslation: line.HasTranslation()}
	}
	return infos
}

func (d *Dialogue) position(i int) int {
	pos := sort.Search(len(d.Lines), func(n int) bool { return d.Lines[n].I >= i })
	if pos < len(d.Lines) && d.Lines[pos].I == i {
		return pos
	}
	return -1
}

func (d *Dialogue) sortLines() {
	sort.SliceStable(d.Lines, func(a, b int) bool { return d.Lines[a].I < d.Lines[b].I })
}
