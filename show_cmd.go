package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/speakdrill/speakdrill/internal/content"
	"github.com/speakdrill/speakdrill/internal/ledger"
	"github.com/speakdrill/speakdrill/internal/playback"
)

var (
	showDisplay string

	showCmd = &cobra.Command{
		Use:   "show DIALOGUE",
		Short: "Print the lines of a dialogue",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
)

func init() {
	showCmd.Flags().StringVarP(&showDisplay, "display", "m", "", "display mode: zh, zh-pinyin, zh-ja, all")
}

func runShow(cmd *cobra.Command, args []string) error {
	store, err := content.Load(cfg.Content.Path)
	if err != nil {
		return fmt.Errorf("unable to load dialogues: %w", err)
	}
	d, err := findDialogue(store, args[0])
	if err != nil {
		return err
	}

	mode := playback.DisplayMode(cfg.Playback.Display)
	if showDisplay != "" {
		if mode, err = playback.ParseDisplayMode(showDisplay); err != nil {
			return err
		}
	}

	scores := map[int]ledger.Entry{}
	if l, err := openLedger(); err == nil {
		defer l.Close() //nolint:errcheck
		if entries, err := l.Entries(context.Background(), d.ID); err == nil {
			for _, e := range entries {
				scores[e.LineIndex] = e
			}
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(d.Title))
	fmt.Fprintln(out)
	renderDialogue(out, d, mode, playback.Status{}, scores, noCursor, terminalWidth())
	return nil
}

// noCursor hides the line cursor.
const noCursor = -1

// renderDialogue prints every line of d in mode, marking the line st says is
// playing and the cursor line, and appending the study score when there is
// one.
func renderDialogue(w io.Writer, d *content.Dialogue, mode playback.DisplayMode, st playback.Status, scores map[int]ledger.Entry, cursor, width int) {
	roles := d.Roles()
	for _, line := range d.Lines {
		marker := "  "
		switch {
		case st.Highlighted(d.ID, line.I):
			marker = playingStyle.Render("▶ ")
		case line.I == cursor:
			marker = keyword("› ")
		}

		role := roleStyle(indexOf(roles, line.Role)).Render(padRight(line.Role, 2))
		head := fmt.Sprintf("%s%s %s ", marker, dimStyle.Render(fmt.Sprintf("%03d", line.I)), role)
		fmt.Fprintln(w, head+wrapIndent(strings.Join(lineText(line, mode), "\n"), width, 9)+score(scores, line.I))
	}
}

// lineText returns the rows mode shows: the script, then the reading and
// translation when the mode includes them.
func lineText(line content.Line, mode playback.DisplayMode) []string {
	rows := []string{line.Text}
	if mode.ShowsPhonetic() && line.Phonetic != "" {
		rows = append(rows, dimStyle.Render(line.Phonetic))
	}
	if mode.ShowsTranslation() && line.HasTranslation() {
		rows = append(rows, dimStyle.Render(line.Translation))
	}
	return rows
}

func score(scores map[int]ledger.Entry, i int) string {
	e, ok := scores[i]
	if !ok || (e.OKCount == 0 && e.NGCount == 0) {
		return ""
	}
	return fmt.Sprintf("  %s %s",
		okStyle.Render(fmt.Sprintf("○%d", e.OKCount)),
		ngStyle.Render(fmt.Sprintf("×%d", e.NGCount)))
}

func indexOf(items []string, s string) int {
	for i, v := range items {
		if v == s {
			return i
		}
	}
	return 0
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd())) //nolint:gosec
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
