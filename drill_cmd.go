package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/speakdrill/speakdrill/internal/content"
	"github.com/speakdrill/speakdrill/internal/ledger"
	"github.com/speakdrill/speakdrill/internal/playback"
)

var drillCmd = &cobra.Command{
	Use:   "drill DIALOGUE",
	Short: "Roleplay one side of a dialogue",
	Long: paragraph(fmt.Sprintf(
		"\nThe other side's lines play out loud; on your lines, say them, then %s "+
			"to record how it went.\n\n"+
			"h hint · space hear your line · o got it · x missed · s skip · r replay · q quit",
		keyword("mark o or x"))),
	Args: cobra.ExactArgs(1),
	RunE: runDrill,
}

func init() {
	addPlaybackFlags(drillCmd)
}

func runDrill(cmd *cobra.Command, args []string) error {
	applyPlaybackFlags(cmd)
	// Lines are driven one at a time from here.
	cfg.Playback.Continuous = false
	self := cfg.Playback.RoleFilter
	cfg.Playback.RoleFilter = content.RoleBoth

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
	self, err = drillRole(d, self)
	if err != nil {
		return err
	}

	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close() //nolint:errcheck

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

	session := newDrillSession(sched, l, d, self)
	m := newDrillModel(ctx, session)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), session.summary())
	return nil
}

// drillRole picks the learner's role: the one asked for, or the dialogue's
// first role when none is.
func drillRole(d *content.Dialogue, role string) (string, error) {
	roles := d.Roles()
	if len(roles) == 0 {
		return "", fmt.Errorf("dialogue %s has no lines", d.ID)
	}
	if role == "" || role == content.RoleBoth {
		return roles[0], nil
	}
	if !slices.Contains(roles, role) {
		return "", fmt.Errorf("dialogue %s has no role %q (roles: %s)", d.ID, role, strings.Join(roles, ", "))
	}
	return role, nil
}

// drillSession steps through a dialogue for roleplay. Opponent lines play
// and advance on their own; the learner's lines wait for a mark.
type drillSession struct {
	sched    *playback.Scheduler
	ledger   *ledger.Ledger
	dialogue *content.Dialogue
	self     string

	pos     int
	hint    int
	waiting bool
	ok, ng  int
	err     error
}

func newDrillSession(sched *playback.Scheduler, l *ledger.Ledger, d *content.Dialogue, self string) *drillSession {
	return &drillSession{sched: sched, ledger: l, dialogue: d, self: self}
}

func (s *drillSession) done() bool {
	return s.pos >= len(s.dialogue.Lines)
}

func (s *drillSession) line() content.Line {
	return s.dialogue.Lines[s.pos]
}

func (s *drillSession) selfTurn() bool {
	return !s.done() && s.line().Role == s.self
}

// begin enters the current line: opponent lines start playing.
func (s *drillSession) begin(context.Context) {
	s.hint = 0
	s.waiting = false
	if s.done() || s.selfTurn() {
		return
	}
	s.waiting = true
	s.sched.Play(s.dialogue.ID, s.line().I)
}

func (s *drillSession) advance(ctx context.Context) {
	s.pos++
	s.begin(ctx)
}

// observe advances past an opponent line once it has finished playing.
func (s *drillSession) observe(ctx context.Context, st playback.Status) {
	if !s.waiting || st.State != playback.StateIdle || st.LastPlayed == nil {
		return
	}
	if st.LastPlayed.DialogueID == s.dialogue.ID && st.LastPlayed.Index == s.line().I {
		s.advance(ctx)
	}
}

// handle applies one key press and reports whether the user quit.
func (s *drillSession) handle(ctx context.Context, msg tea.KeyMsg, k drillKeyMap) bool {
	switch {
	case key.Matches(msg, k.Quit):
		return true
	case key.Matches(msg, k.Skip):
		s.sched.Stop()
		s.advance(ctx)
	case key.Matches(msg, k.Replay):
		s.begin(ctx)
	}
	if !s.selfTurn() {
		return false
	}

	switch {
	case key.Matches(msg, k.Hint):
		s.hint = content.NextHint(s.hint)
	case key.Matches(msg, k.Hear):
		s.sched.Play(s.dialogue.ID, s.line().I)
	case key.Matches(msg, k.OK):
		s.mark(ctx, true)
	case key.Matches(msg, k.Miss):
		s.mark(ctx, false)
	}
	return false
}

func (s *drillSession) mark(ctx context.Context, ok bool) {
	line := s.line()
	if _, err := s.ledger.Mark(ctx, s.dialogue.ID, line.I, ok); err != nil {
		log.Error("unable to record mark", "dialogue", s.dialogue.ID, "line", line.I, "error", err)
		s.err = err
		return
	}
	s.err = nil
	if ok {
		s.ok++
	} else {
		s.ng++
	}
	s.sched.Stop()
	s.advance(ctx)
}

func (s *drillSession) render(b *strings.Builder, width int) {
	fmt.Fprintf(b, "%s  %s\n\n",
		titleStyle.Render(s.dialogue.Title),
		dimStyle.Render(fmt.Sprintf("you are %s · %d/%d", s.self, min(s.pos+1, len(s.dialogue.Lines)), len(s.dialogue.Lines))))

	roles := s.dialogue.Roles()
	for p := 0; p < len(s.dialogue.Lines) && p <= s.pos; p++ {
		line := s.dialogue.Lines[p]
		role := roleStyle(indexOf(roles, line.Role)).Render(padRight(line.Role, 2))
		text := line.Text
		if p == s.pos && line.Role == s.self {
			text = s.hintText(line)
		}
		fmt.Fprintf(b, "%s %s %s\n", dimStyle.Render(fmt.Sprintf("%03d", line.I)), role, wrapIndent(text, width, 7))
	}

	fmt.Fprintln(b)
	fmt.Fprintf(b, "%s %s\n", okStyle.Render(fmt.Sprintf("○ %d", s.ok)), ngStyle.Render(fmt.Sprintf("× %d", s.ng)))
	if s.err != nil {
		fmt.Fprintln(b, errorStyle.Render(s.err.Error()))
	}
}

// hintText shows the learner's line at the current hint level.
func (s *drillSession) hintText(line content.Line) string {
	hint := line.Hint(s.hint)
	if len(hint) == 0 {
		return keyword("your turn") + dimStyle.Render("  (h for a hint)")
	}
	return strings.Join(hint, "\n")
}

func (s *drillSession) summary() string {
	total := s.ok + s.ng
	if total == 0 {
		return dimStyle.Render("no lines marked")
	}
	return fmt.Sprintf("%s: %s %s of %d",
		s.dialogue.Title,
		okStyle.Render(fmt.Sprintf("○ %d", s.ok)),
		ngStyle.Render(fmt.Sprintf("× %d", s.ng)),
		total)
}

// drillModel runs a drill session as a program. It quits once the last
// line is done.
type drillModel struct {
	ctx     context.Context
	session *drillSession
	keys    drillKeyMap
	help    help.Model
	updates <-chan playback.Status
	width   int
}

func newDrillModel(ctx context.Context, session *drillSession) drillModel {
	m := drillModel{
		ctx:     ctx,
		session: session,
		keys:    newDrillKeyMap(),
		help:    help.New(),
		updates: session.sched.Subscribe(),
		width:   terminalWidth(),
	}
	session.begin(ctx)
	return m
}

func (m drillModel) Init() tea.Cmd {
	if m.session.done() {
		return tea.Quit
	}
	return waitForStatus(m.updates)
}

func (m drillModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case statusMsg:
		m.session.observe(m.ctx, playback.Status(msg))
		cmd = waitForStatus(m.updates)

	case tea.KeyMsg:
		if m.session.handle(m.ctx, msg, m.keys) {
			return m, tea.Quit
		}
	}

	if m.session.done() {
		return m, tea.Quit
	}
	return m, cmd
}

func (m drillModel) View() string {
	var b strings.Builder
	m.session.render(&b, m.width)
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
