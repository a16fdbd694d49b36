package audio

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testDecoder turns a body of n bytes into n frames at 48kHz.
func testDecoder(data []byte) (*PCM, error) {
	if strings.HasPrefix(string(data), "bad") {
		return nil, errors.New("not an mp3")
	}
	return ramp(len(data), DefaultSampleRate), nil
}

type recorder struct {
	events chan Event
}

func newRecorder(d *Device) *recorder {
	r := &recorder{events: make(chan Event, 32)}
	d.Listen(func(ev Event) { r.events <- ev })
	return r
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for device event")
		return Event{}
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event %s for token %d", ev.Kind, ev.Token)
	case <-time.After(wait):
	}
}

func clipServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.mp3":
			http.NotFound(w, r)
		case "/bad.mp3":
			_, _ = w.Write([]byte("bad data"))
		default:
			_, _ = w.Write([]byte(strings.Repeat("x", 200)))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDevice(t *testing.T) (*Device, *MockBackend, *recorder, *httptest.Server) {
	t.Helper()
	backend := NewMockBackend(false)
	d := NewDevice(backend, WithDecoder(testDecoder), WithPollInterval(2*time.Millisecond))
	t.Cleanup(func() { _ = d.Close() })
	return d, backend, newRecorder(d), clipServer(t)
}

func TestDevice_ReadyThenEnded(t *testing.T) {
	d, backend, rec, srv := newTestDevice(t)

	d.Assign(srv.URL+"/a.mp3", 7)
	ev := rec.next(t)
	if ev.Kind != EventReady || ev.Token != 7 {
		t.Fatalf("expected ready for token 7, got %s/%d", ev.Kind, ev.Token)
	}
	if d.Paused() {
		t.Error("device should be playing after ready")
	}

	backend.Last().Finish()
	ev = rec.next(t)
	if ev.Kind != EventEnded || ev.Token != 7 {
		t.Fatalf("expected ended for token 7, got %s/%d", ev.Kind, ev.Token)
	}
	if !d.Paused() {
		t.Error("device should be paused after the clip ended")
	}
}

func TestDevice_EveryListenerHearsEvents(t *testing.T) {
	d, _, first, srv := newTestDevice(t)
	second := newRecorder(d)

	d.Assign(srv.URL+"/a.mp3", 3)
	for _, rec := range []*recorder{first, second} {
		if ev := rec.next(t); ev.Kind != EventReady || ev.Token != 3 {
			t.Errorf("expected ready for token 3, got %s/%d", ev.Kind, ev.Token)
		}
	}
}

func TestDevice_ErrorEvents(t *testing.T) {
	d, _, rec, srv := newTestDevice(t)

	for i, path := range []string{"/missing.mp3", "/bad.mp3"} {
		token := uint64(i + 1)
		d.Assign(srv.URL+path, token)
		ev := rec.next(t)
		if ev.Kind != EventError || ev.Token != token || ev.Err == nil {
			t.Errorf("%s: expected error event, got %+v", path, ev)
		}
	}
}

func TestDevice_AssignReplacesCurrentClip(t *testing.T) {
	d, backend, rec, srv := newTestDevice(t)

	d.Assign(srv.URL+"/a.mp3", 1)
	rec.next(t) // ready 1
	first := backend.Last()

	d.Assign(srv.URL+"/b.mp3", 2)
	ev := rec.next(t)
	if ev.Token != 2 || ev.Kind != EventReady {
		t.Fatalf("expected ready for token 2, got %+v", ev)
	}
	if !first.Closed() {
		t.Error("previous player should be closed on reassign")
	}

	// Only the current player can produce an ended event
	first.Finish()
	rec.none(t, 30*time.Millisecond)
}

func TestDevice_StopRewinds(t *testing.T) {
	d, backend, rec, srv := newTestDevice(t)

	d.Assign(srv.URL+"/a.mp3", 1)
	rec.next(t)
	p := backend.Last()
	p.Advance(100 * frameSize)

	d.Stop()
	if !d.Paused() || !p.Closed() {
		t.Fatal("Stop should pause and release the player")
	}
	rec.none(t, 30*time.Millisecond)

	// Resuming after a stop starts over on a new player
	d.Resume()
	replay := backend.Last()
	if replay == p {
		t.Fatal("expected a new player after resume")
	}
	replay.Finish()
	if got := replay.BytesRead(); got != 200*frameSize {
		t.Errorf("replay read %d bytes, want %d", got, 200*frameSize)
	}
	if ev := rec.next(t); ev.Kind != EventEnded {
		t.Errorf("expected ended after replay, got %s", ev.Kind)
	}
}

func TestDevice_PauseResume(t *testing.T) {
	d, backend, rec, srv := newTestDevice(t)

	d.Assign(srv.URL+"/a.mp3", 1)
	rec.next(t)
	p := backend.Last()

	d.Pause()
	if !d.Paused() || p.IsPlaying() {
		t.Fatal("Pause should pause the player")
	}
	p.Finish() // no progress while paused
	if p.BytesRead() != 0 {
		t.Error("paused player consumed audio")
	}

	d.Resume()
	if d.Paused() || !p.IsPlaying() {
		t.Fatal("Resume should continue the same player")
	}
	p.Finish()
	if ev := rec.next(t); ev.Kind != EventEnded {
		t.Errorf("expected ended, got %s", ev.Kind)
	}
}

func TestDevice_PauseWhileLoading(t *testing.T) {
	d, backend, rec, srv := newTestDevice(t)

	d.Assign(srv.URL+"/a.mp3", 1)
	d.Pause()
	rec.next(t) // ready

	if backend.Last().IsPlaying() {
		t.Error("clip paused during loading should not start")
	}
}

func TestDevice_SetRate(t *testing.T) {
	d, backend, rec, srv := newTestDevice(t)

	d.SetRate(2.0)
	d.Assign(srv.URL+"/a.mp3", 1)
	rec.next(t)

	p := backend.Last()
	p.Finish()
	// 200 frames at double rate
	if got := p.BytesRead(); got != 100*frameSize {
		t.Errorf("read %d bytes, want %d", got, 100*frameSize)
	}
	if d.Rate() != 2.0 {
		t.Errorf("Rate() = %v", d.Rate())
	}
}
