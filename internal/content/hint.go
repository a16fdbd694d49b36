package content

// HintLevels is the number of hint steps in roleplay, including "no hint".
const HintLevels = 4

// NextHint cycles a hint level: none, translation, phonetic, script, none.
func NextHint(level int) int {
	return (level + 1) % HintLevels
}

// Hint returns the text revealed at a hint level, most general first.
func (l Line) Hint(level int) []string {
	var out []string
	if level >= 1 && l.Translation != "" {
		out = append(out, l.Translation)
	}
	if level >= 2 {
		out = append(out, l.Phonetic)
	}
	if level >= 3 {
		out = append(out, l.Text)
	}
	return out
}
