package clip

// LineInfo is the part of a dialogue line the naming convention needs.
type LineInfo struct {
	Index          int
	HasTranslation bool
}

// PrefetchList enumerates every clip the generation pipeline produces for a
// dialogue: each voice at each rate preset, plus the secondary-language clip
// for lines that carry a translation. Paths are joined to base.
func PrefetchList(base, dialogueID string, lines []LineInfo) []string {
	urls := make([]string, 0, len(lines)*len(Voices)*len(RateKeys)*2)
	for _, line := range lines {
		for _, voice := range Voices {
			for _, rate := range RateKeys {
				req := Request{
					DialogueID: dialogueID,
					LineIndex:  line.Index,
					Track:      Primary,
					Voice:      voice,
					RateKey:    rate,
				}
				urls = append(urls, req.URL(base))
				if line.HasTranslation {
					req.Track = Secondary
					urls = append(urls, req.URL(base))
				}
			}
		}
	}
	return urls
}
