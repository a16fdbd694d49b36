package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/speakdrill/speakdrill/internal/audio"
	"github.com/speakdrill/speakdrill/internal/content"
	"github.com/speakdrill/speakdrill/internal/ledger"
	"github.com/speakdrill/speakdrill/internal/playback"
)

// stubDevice accepts every command and remembers the last assignment.
type stubDevice struct {
	mu     sync.Mutex
	urls   []string
	token  uint64
	paused bool
}

func (d *stubDevice) Assign(url string, token uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	d.token = token
	d.paused = false
}

func (d *stubDevice) Stop() { d.Pause() }

func (d *stubDevice) SetRate(float64) {}

func (d *stubDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
}

func (d *stubDevice) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
}

func (d *stubDevice) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

func (d *stubDevice) lastToken() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

func (d *stubDevice) assigned() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

func testStore() *content.Store {
	return content.NewStore([]*content.Dialogue{{
		ID:    "cafe",
		Title: "At the cafe",
		Lines: []content.Line{
			{I: 1, Role: "A", Text: "你好", Phonetic: "nǐ hǎo"},
			{I: 2, Role: "B", Text: "欢迎光临", Phonetic: "huānyíng guānglín", Translation: "いらっしゃいませ"},
			{I: 3, Role: "A", Text: "一杯咖啡", Phonetic: "yì bēi kāfēi"},
		},
	}, {
		ID:    "station",
		Title: "Buying a ticket",
		Lines: []content.Line{{I: 1, Role: "A", Text: "一张票", Phonetic: "yì zhāng piào"}},
	}})
}

func testScheduler(t *testing.T) (*playback.Scheduler, *stubDevice, *content.Store) {
	t.Helper()
	st := playback.DefaultSettings()
	st.Continuous = false
	st.Display = playback.DisplayScript

	dev := &stubDevice{paused: true}
	store := testStore()
	return playback.New(dev, store, "http://example.test", playback.WithSettings(st)), dev, store
}

// keyPress builds the message a terminal sends for a key name.
func keyPress(name string) tea.KeyMsg {
	switch name {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(name)}
}

func TestKeyBindings(t *testing.T) {
	k := newPlayKeyMap()
	tests := []struct {
		key     string
		binding key.Binding
	}{
		{" ", k.Toggle},
		{"enter", k.PlayLine},
		{"up", k.Up},
		{"k", k.Up},
		{"j", k.Down},
		{"n", k.Next},
		{"=", k.Faster},
		{"esc", k.Quit},
		{"ctrl+c", k.Quit},
	}
	for _, tt := range tests {
		if !key.Matches(keyPress(tt.key), tt.binding) {
			t.Errorf("%q does not trigger %q", tt.key, tt.binding.Help().Desc)
		}
	}
	if key.Matches(keyPress("x"), k.Quit) {
		t.Error("x should not quit")
	}
}

func TestCycle(t *testing.T) {
	modes := playback.DisplayModes
	if got := cycle(modes, playback.DisplayAll); got != modes[0] {
		t.Errorf("cycle wraps to %q", got)
	}
	if got := cycle(modes, modes[0]); got != modes[1] {
		t.Errorf("cycle(%q) = %q", modes[0], got)
	}
	if got := cycle([]string{"x", "y"}, "missing"); got != "x" {
		t.Errorf("unknown value cycles to %q", got)
	}
}

func TestLineText(t *testing.T) {
	line := content.Line{Text: "欢迎", Phonetic: "huānyíng", Translation: "ようこそ"}

	if rows := lineText(line, playback.DisplayScript); len(rows) != 1 {
		t.Errorf("script rows = %q", rows)
	}
	if rows := lineText(line, playback.DisplayAll); len(rows) != 3 {
		t.Errorf("all rows = %q", rows)
	}
	rows := lineText(content.Line{Text: "你好", Phonetic: "nǐ hǎo"}, playback.DisplayTranslation)
	if len(rows) != 1 {
		t.Errorf("untranslated line rows = %q", rows)
	}
}

func TestRenderDialogue(t *testing.T) {
	d, _ := testStore().Dialogue("cafe")
	st := playback.Status{Playing: &playback.LineRef{DialogueID: "cafe", Index: 2}}
	scores := map[int]ledger.Entry{3: {DialogueID: "cafe", LineIndex: 3, OKCount: 4, NGCount: 1}}

	var b bytes.Buffer
	renderDialogue(&b, d, playback.DisplayScript, st, scores, 1, 80)
	out := b.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d rows:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "›") {
		t.Errorf("cursor not on line 1: %q", lines[0])
	}
	if !strings.Contains(lines[1], "▶") {
		t.Errorf("line 2 not highlighted: %q", lines[1])
	}
	if !strings.Contains(lines[2], "○4") || !strings.Contains(lines[2], "×1") {
		t.Errorf("line 3 has no score: %q", lines[2])
	}
}

func TestFilterDialogues(t *testing.T) {
	got := filterDialogues(testStore().Dialogues(), "ticket")
	if len(got) != 1 || got[0].ID != "station" {
		t.Errorf("filterDialogues = %v", got)
	}
	if got := filterDialogues(testStore().Dialogues(), "zzz"); len(got) != 0 {
		t.Errorf("expected no match, got %d", len(got))
	}
}

func TestParseArgs(t *testing.T) {
	if ok, err := parseMark("o"); err != nil || !ok {
		t.Errorf("parseMark(o) = %v, %v", ok, err)
	}
	if ok, err := parseMark("x"); err != nil || ok {
		t.Errorf("parseMark(x) = %v, %v", ok, err)
	}
	if _, err := parseMark("?"); err == nil {
		t.Error("parseMark(?) should fail")
	}
	if i, err := parseLine("12"); err != nil || i != 12 {
		t.Errorf("parseLine(12) = %d, %v", i, err)
	}
	for _, s := range []string{"-1", "one"} {
		if _, err := parseLine(s); err == nil {
			t.Errorf("parseLine(%q) should fail", s)
		}
	}
}

func TestDrillRole(t *testing.T) {
	d, _ := testStore().Dialogue("cafe")
	if r, err := drillRole(d, ""); err != nil || r != "A" {
		t.Errorf("default role = %q, %v", r, err)
	}
	if r, err := drillRole(d, content.RoleBoth); err != nil || r != "A" {
		t.Errorf("both role = %q, %v", r, err)
	}
	if r, err := drillRole(d, "B"); err != nil || r != "B" {
		t.Errorf("role B = %q, %v", r, err)
	}
	if _, err := drillRole(d, "C"); err == nil {
		t.Error("unknown role should fail")
	}
}

// press feeds key names to a play model and returns the model and the
// command of the last one.
func press(m playModel, names ...string) (playModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, name := range names {
		var next tea.Model
		next, cmd = m.Update(keyPress(name))
		m = next.(playModel)
	}
	return m, cmd
}

func TestPlayModelKeys(t *testing.T) {
	sched, dev, store := testScheduler(t)
	m := newPlayModel(sched, store, "cafe")

	if m.cursor != 1 {
		t.Fatalf("cursor starts at %d", m.cursor)
	}
	if got := sched.Status().Selected; got != "cafe" {
		t.Errorf("selected = %q", got)
	}

	m, _ = press(m, "n")
	st := sched.Status()
	if st.Playing == nil || st.Playing.Index != 2 || m.cursor != 2 {
		t.Fatalf("n should play line 2, status %+v cursor %d", st.Playing, m.cursor)
	}
	if urls := dev.assigned(); len(urls) != 1 || !strings.Contains(urls[0], "cafe") {
		t.Errorf("assigned %v", urls)
	}
	if m.status.Playing == nil || m.status.Playing.Index != 2 {
		t.Error("model status not refreshed after a key press")
	}

	m, _ = press(m, "down", "down")
	if m.cursor != 3 {
		t.Errorf("cursor clamps at the last line, got %d", m.cursor)
	}

	m, _ = press(m, "+")
	if got := sched.Settings().Speed; got != 1.05 {
		t.Errorf("speed after + = %v", got)
	}
	m, _ = press(m, "c")
	if !sched.Settings().Continuous {
		t.Error("c should turn continuous on")
	}
	m, _ = press(m, "f")
	if got := sched.Settings().RoleFilter; got != "A" {
		t.Errorf("role filter after f = %q", got)
	}
	m, _ = press(m, "d")
	if got := sched.Settings().Display; got != playback.DisplayPhonetic {
		t.Errorf("display after d = %q", got)
	}
	m, _ = press(m, "s")
	if got := sched.Status().State; got != playback.StateIdle {
		t.Errorf("state after s = %s", got)
	}
	if _, cmd := press(m, "q"); cmd == nil {
		t.Error("q should quit")
	} else if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestPlayModelFollowsStatus(t *testing.T) {
	sched, _, store := testScheduler(t)
	m := newPlayModel(sched, store, "cafe")

	sched.Play("cafe", 3)
	msg := m.Init()()
	st, ok := msg.(statusMsg)
	if !ok {
		t.Fatalf("Init delivered %T", msg)
	}

	next, cmd := m.Update(st)
	m = next.(playModel)
	if m.cursor != 3 {
		t.Errorf("cursor did not follow the playing line: %d", m.cursor)
	}
	if cmd == nil {
		t.Error("a status message should wait for the next one")
	}
	if view := m.View(); !strings.Contains(view, "At the cafe") || !strings.Contains(view, "#003") {
		t.Errorf("view lacks title or status:\n%s", view)
	}
}

func TestDrillSession(t *testing.T) {
	sched, dev, store := testScheduler(t)
	d, _ := store.Dialogue("cafe")

	l, err := ledger.Open(filepath.Join(t.TempDir(), "scores.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })

	ctx := context.Background()
	s := newDrillSession(sched, l, d, "B")
	m := newDrillModel(ctx, s)
	keys := m.keys

	// Line 1 belongs to A and plays on its own.
	if len(dev.assigned()) != 1 || !s.waiting {
		t.Fatalf("opponent line did not play: %v", dev.assigned())
	}
	s.handle(ctx, keyPress("o"), keys)
	if s.ok != 0 {
		t.Error("marks are ignored on the opponent's turn")
	}

	sched.HandleEvent(audio.Event{Kind: audio.EventEnded, Token: dev.lastToken()})
	next, _ := m.Update(m.Init()())
	m = next.(drillModel)
	if !s.selfTurn() || s.line().I != 2 {
		t.Fatalf("expected the learner's turn at line 2, pos %d", s.pos)
	}

	s.handle(ctx, keyPress("h"), keys)
	if hint := s.hintText(s.line()); !strings.Contains(hint, "いらっしゃいませ") {
		t.Errorf("first hint = %q", hint)
	}
	if view := m.View(); !strings.Contains(view, "いらっしゃいませ") {
		t.Errorf("view does not show the hint:\n%s", view)
	}

	next, _ = m.Update(keyPress("o"))
	m = next.(drillModel)
	if s.ok != 1 || s.hint != 0 {
		t.Errorf("ok = %d, hint = %d", s.ok, s.hint)
	}
	e, err := l.Get(ctx, "cafe", 2)
	if err != nil || e.OKCount != 1 {
		t.Errorf("ledger entry = %+v, %v", e, err)
	}

	// Line 3 is A again.
	if len(dev.assigned()) != 2 {
		t.Fatalf("line 3 did not play: %v", dev.assigned())
	}
	sched.HandleEvent(audio.Event{Kind: audio.EventEnded, Token: dev.lastToken()})
	_, cmd := m.Update(statusMsg(sched.Status()))
	if !s.done() {
		t.Errorf("session should be done, pos %d", s.pos)
	}
	if cmd == nil {
		t.Fatal("a finished session should quit")
	} else if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("a finished session should return tea.Quit")
	}
	if sum := s.summary(); !strings.Contains(sum, "of 1") {
		t.Errorf("summary = %q", sum)
	}
}

func TestStatusLine(t *testing.T) {
	st := playback.Status{
		State:    playback.StatePlaying,
		Playing:  &playback.LineRef{DialogueID: "cafe", Index: 7},
		Settings: playback.DefaultSettings(),
	}
	line := statusLine(st)
	for _, want := range []string{"#007", "1.00x", "cont on", "role both"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q lacks %q", line, want)
		}
	}
}
