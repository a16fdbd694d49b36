package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/speakdrill/speakdrill/internal/clip"
	"github.com/speakdrill/speakdrill/internal/content"
	"github.com/speakdrill/speakdrill/internal/playback"
)

var (
	playLine int

	playCmd = &cobra.Command{
		Use:   "play DIALOGUE",
		Short: "Play a dialogue line by line",
		Long: paragraph(fmt.Sprintf(
			"\nPlay a dialogue with %s. Lines continue one after another with a gap "+
				"unless continuous mode is off.\n\n"+
				"space pause/resume · enter play cursor line · ↑/↓ move · n/p next/previous line\n"+
				"r restart · s stop · +/- speed · c continuous · d display · v voice · t rate preset\n"+
				"f role filter · g gap · q quit",
			keyword("keyboard controls"))),
		Args: cobra.ExactArgs(1),
		RunE: runPlay,
	}
)

func init() {
	playCmd.Flags().IntVarP(&playLine, "line", "l", 0, "start playing at this line")
	addPlaybackFlags(playCmd)
}

// addPlaybackFlags registers the flags that override the playback section
// of the config for one run.
func addPlaybackFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("speed", 0, "playback speed, 0.5 to 2.0")
	cmd.Flags().String("voice", "", "voice: f, m or alt")
	cmd.Flags().String("rate", "", "recorded rate preset: 100 or 085")
	cmd.Flags().String("display", "", "display mode: zh, zh-pinyin, zh-ja, all")
	cmd.Flags().String("role", "", "continuous mode plays only this role's lines")
	cmd.Flags().Bool("continuous", false, "advance to the next line automatically")
	cmd.Flags().Duration("gap", 0, "pause between lines in continuous mode")
}

// applyPlaybackFlags copies the changed playback flags of cmd into cfg.
func applyPlaybackFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("speed") {
		cfg.Playback.Speed, _ = f.GetFloat64("speed")
	}
	if f.Changed("voice") {
		cfg.Playback.Voice, _ = f.GetString("voice")
	}
	if f.Changed("rate") {
		cfg.Playback.RateKey, _ = f.GetString("rate")
	}
	if f.Changed("display") {
		cfg.Playback.Display, _ = f.GetString("display")
	}
	if f.Changed("role") {
		cfg.Playback.RoleFilter, _ = f.GetString("role")
	}
	if f.Changed("continuous") {
		cfg.Playback.Continuous, _ = f.GetBool("continuous")
	}
	if f.Changed("gap") {
		cfg.Playback.Gap, _ = f.GetDuration("gap")
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	applyPlaybackFlags(cmd)

	ctx, stop := signalContext()
	defer stop()

	store, err := loadContent(ctx)
	if err != nil {
		return err
	}
	d, err := findDialogue(store, args[0])
	if err != nil {
		return err
	}

	rt, err := newRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck
	if err := rt.start(ctx); err != nil {
		return err
	}

	sched, _, err := newPlayer(rt, store)
	if err != nil {
		return err
	}
	defer sched.Stop()

	m := newPlayModel(sched, store, d.ID)
	if cmd.Flags().Changed("line") {
		m.cursor = playLine
		sched.Play(d.ID, playLine)
		m.status = sched.Status()
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// playModel maps key presses onto the scheduler and renders the dialogue.
type playModel struct {
	sched      *playback.Scheduler
	store      *content.Store
	dialogueID string
	cursor     int

	keys    playKeyMap
	help    help.Model
	updates <-chan playback.Status
	status  playback.Status
	width   int
}

func newPlayModel(sched *playback.Scheduler, store *content.Store, dialogueID string) playModel {
	m := playModel{
		sched:      sched,
		store:      store,
		dialogueID: dialogueID,
		cursor:     noCursor,
		keys:       newPlayKeyMap(),
		help:       help.New(),
		updates:    sched.Subscribe(),
		width:      terminalWidth(),
	}
	if d, ok := store.Dialogue(dialogueID); ok {
		if i, ok := d.FirstIndex(); ok {
			m.cursor = i
		}
	}
	sched.Select(dialogueID)
	m.status = sched.Status()
	return m
}

func (m playModel) Init() tea.Cmd {
	return waitForStatus(m.updates)
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case statusMsg:
		m.status = playback.Status(msg)
		m.follow(m.status)
		return m, waitForStatus(m.updates)

	case tea.KeyMsg:
		if m.handle(msg) {
			return m, tea.Quit
		}
		m.status = m.sched.Status()
	}
	return m, nil
}

// follow moves the cursor onto the line that started playing.
func (m *playModel) follow(st playback.Status) {
	if st.Playing != nil && st.Playing.DialogueID == m.dialogueID {
		m.cursor = st.Playing.Index
	}
}

// move returns the index of the line delta positions from the cursor,
// clamped to the dialogue.
func (m *playModel) move(delta int) int {
	d, ok := m.store.Dialogue(m.dialogueID)
	if !ok || len(d.Lines) == 0 {
		return m.cursor
	}
	pos := 0
	for p, line := range d.Lines {
		if line.I == m.cursor {
			pos = p
			break
		}
	}
	pos = max(0, min(len(d.Lines)-1, pos+delta))
	return d.Lines[pos].I
}

// handle applies one key press and reports whether the user quit.
func (m *playModel) handle(msg tea.KeyMsg) bool {
	s := m.sched
	st := s.Settings()
	k := m.keys

	switch {
	case key.Matches(msg, k.Quit):
		return true
	case key.Matches(msg, k.Toggle):
		s.Toggle()
	case key.Matches(msg, k.PlayLine):
		s.Play(m.dialogueID, m.cursor)
	case key.Matches(msg, k.Up):
		m.cursor = m.move(-1)
	case key.Matches(msg, k.Down):
		m.cursor = m.move(1)
	case key.Matches(msg, k.Next):
		m.cursor = m.move(1)
		s.Play(m.dialogueID, m.cursor)
	case key.Matches(msg, k.Prev):
		m.cursor = m.move(-1)
		s.Play(m.dialogueID, m.cursor)
	case key.Matches(msg, k.Restart):
		s.Restart(m.dialogueID)
	case key.Matches(msg, k.Stop):
		s.Stop()
	case key.Matches(msg, k.Faster):
		s.Faster()
	case key.Matches(msg, k.Slower):
		s.Slower()
	case key.Matches(msg, k.Continuous):
		s.SetContinuous(!st.Continuous)
	case key.Matches(msg, k.Display):
		s.SetDisplay(cycle(playback.DisplayModes, st.Display))
	case key.Matches(msg, k.Voice):
		s.SetVoice(cycle([]clip.VoicePolicy{clip.PolicyFemale, clip.PolicyMale, clip.PolicyAlternating}, st.Voice))
	case key.Matches(msg, k.Rate):
		s.SetRateKey(cycle(clip.RateKeys, st.RateKey))
	case key.Matches(msg, k.Role):
		s.SetRoleFilter(cycle(m.roleFilters(), st.RoleFilter))
	case key.Matches(msg, k.Gap):
		gap := st.Gap + 500*time.Millisecond
		if gap > playback.MaxGap {
			gap = 0
		}
		s.SetGap(gap)
	}
	return false
}

func (m *playModel) roleFilters() []string {
	filters := []string{content.RoleBoth}
	if d, ok := m.store.Dialogue(m.dialogueID); ok {
		filters = append(filters, d.Roles()...)
	}
	return filters
}

func (m playModel) View() string {
	d, ok := m.store.Dialogue(m.dialogueID)
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(d.Title))
	fmt.Fprintln(&b)
	renderDialogue(&b, d, m.status.Settings.Display, m.status, nil, m.cursor, m.width)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, statusLine(m.status))
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// cycle returns the element after cur in items, wrapping around.
func cycle[T comparable](items []T, cur T) T {
	for i, item := range items {
		if item == cur {
			return items[(i+1)%len(items)]
		}
	}
	return items[0]
}
