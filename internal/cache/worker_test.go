package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// origin is a test site that counts requests per path.
type origin struct {
	*httptest.Server

	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
}

func newOrigin(t *testing.T, pages map[string]string) *origin {
	t.Helper()
	o := &origin{hits: make(map[string]int), pages: pages}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.hits[r.URL.Path]++
		body, ok := o.pages[r.URL.Path]
		o.mu.Unlock()

		switch {
		case r.URL.Path == "/moved":
			http.Redirect(w, r, "/index.html", http.StatusFound)
		case !ok:
			http.NotFound(w, r)
		default:
			http.ServeContent(w, r, "", time.Time{}, strings.NewReader(body))
		}
	}))
	t.Cleanup(o.Close)
	return o
}

func (o *origin) count(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

func (o *origin) setDown() {
	o.Server.CloseClientConnections()
	o.Server.Close()
}

func newTestWorker(t *testing.T, o *origin, storage Storage) *Worker {
	t.Helper()
	u, _ := url.Parse(o.URL)
	w, err := NewWorker(Config{
		Origin: u,
		Assets: []string{"/index.html", "/app.js", "/styles.css"},
	}, storage, NewHTTPFetcher(nil, 5*time.Second))
	if err != nil {
		t.Fatalf("NewWorker failed: %v", err)
	}
	t.Cleanup(w.Terminate)
	return w
}

func sitePages() map[string]string {
	return map[string]string{
		"/index.html":                    "<html>app</html>",
		"/app.js":                        "console.log(1)",
		"/styles.css":                    "body{}",
		"/audio/d1/001__f__r100.mp3":     "clip-1",
		"/audio/d1/002__m__r100.mp3":     "clip-2",
		"/audio/d1/001__f__r100__ja.mp3": "clip-1-ja",
		"/api/news":                      "news",
	}
}

func TestWorker_InstallPartial(t *testing.T) {
	pages := sitePages()
	delete(pages, "/styles.css")
	o := newOrigin(t, pages)

	storage := NewMemoryStorage(0)
	w := newTestWorker(t, o, storage)

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	app, _ := storage.Open(DefaultAppStore)
	if got := len(app.Keys()); got != 2 {
		t.Errorf("expected 2 stored assets, got %d", got)
	}
	if w.State() != StateInstalling {
		t.Errorf("state after install = %s", w.State())
	}
}

func TestWorker_InstallFailsWhenNothingStored(t *testing.T) {
	o := newOrigin(t, map[string]string{})
	w := newTestWorker(t, o, NewMemoryStorage(0))

	if err := w.Install(context.Background()); !errors.Is(err, ErrInstallFailed) {
		t.Errorf("expected ErrInstallFailed, got %v", err)
	}
}

func TestWorker_ActivateRemovesStaleStores(t *testing.T) {
	o := newOrigin(t, sitePages())
	storage := NewMemoryStorage(0)
	for _, name := range []string{"app-v28", "audio-v5", DefaultAudioStore, "other"} {
		if _, err := storage.Open(name); err != nil {
			t.Fatal(err)
		}
	}

	w := newTestWorker(t, o, storage)
	if err := w.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	removed, err := w.Activate(context.Background())
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("expected 3 removed stores, got %v", removed)
	}

	keys, _ := storage.Keys()
	if len(keys) != 2 || keys[0] != DefaultAppStore || keys[1] != DefaultAudioStore {
		t.Errorf("remaining stores = %v", keys)
	}
	if w.State() != StateActive {
		t.Errorf("state after activate = %s", w.State())
	}
}

func activeWorker(t *testing.T, o *origin) (*Worker, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage(0)
	w := newTestWorker(t, o, storage)
	if err := w.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Activate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return w, storage
}

func TestWorker_Routing(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, storage := activeWorker(t, o)
	ctx := context.Background()

	// Audio is cache-first against the audio store
	audioURL := o.URL + "/audio/d1/001__f__r100.mp3"
	for i := 0; i < 3; i++ {
		resp, err := w.Handle(ctx, mustRequest(t, audioURL))
		if err != nil || string(resp.Body) != "clip-1" {
			t.Fatalf("audio request failed: %v %v", resp, err)
		}
	}
	if n := o.count("/audio/d1/001__f__r100.mp3"); n != 1 {
		t.Errorf("audio fetched %d times, want 1", n)
	}
	audio, _ := storage.Open(DefaultAudioStore)
	if len(audio.Keys()) != 1 {
		t.Errorf("audio store keys = %v", audio.Keys())
	}

	// Known assets come from the app store filled on install
	before := o.count("/app.js")
	if _, err := w.Handle(ctx, mustRequest(t, o.URL+"/app.js")); err != nil {
		t.Fatal(err)
	}
	if o.count("/app.js") != before {
		t.Error("known asset should be served from the app store")
	}

	// Everything else is network-first
	for i := 0; i < 2; i++ {
		if _, err := w.Handle(ctx, mustRequest(t, o.URL+"/api/news")); err != nil {
			t.Fatal(err)
		}
	}
	if n := o.count("/api/news"); n != 2 {
		t.Errorf("network-first path fetched %d times, want 2", n)
	}
}

func TestWorker_NavigationServesEntryPoint(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, _ := activeWorker(t, o)

	req := mustRequest(t, o.URL+"/dialogues/d1")
	req.Mode = ModeNavigate

	resp, err := w.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("navigation failed: %v", err)
	}
	if string(resp.Body) != "<html>app</html>" {
		t.Errorf("navigation body = %q", resp.Body)
	}
	if o.count("/dialogues/d1") != 0 {
		t.Error("navigation should not reach the network when the entry point is stored")
	}
}

func TestWorker_NavigationFallsThroughToNetwork(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, storage := activeWorker(t, o)

	app, _ := storage.Open(DefaultAppStore)
	_ = app.Delete(o.URL + "/index.html")
	o.setDown()

	req := mustRequest(t, o.URL+"/dialogues/d1")
	req.Mode = ModeNavigate
	if _, err := w.Handle(context.Background(), req); err == nil {
		t.Error("expected network error when entry point is unavailable")
	}
}

func TestWorker_OfflineServesStoredCopies(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, _ := activeWorker(t, o)
	ctx := context.Background()

	// Warm the network-first path
	if _, err := w.Handle(ctx, mustRequest(t, o.URL+"/api/news")); err != nil {
		t.Fatal(err)
	}
	o.setDown()

	resp, err := w.Handle(ctx, mustRequest(t, o.URL+"/api/news"))
	if err != nil || string(resp.Body) != "news" {
		t.Errorf("offline fallback failed: %v %v", resp, err)
	}
	resp, err = w.Handle(ctx, mustRequest(t, o.URL+"/styles.css"))
	if err != nil || string(resp.Body) != "body{}" {
		t.Errorf("offline asset failed: %v %v", resp, err)
	}
}

func TestWorker_PrefetchIdempotent(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, storage := activeWorker(t, o)

	urls := []string{
		"/audio/d1/001__f__r100.mp3",
		"/audio/d1/002__m__r100.mp3",
		"/audio/d1/missing.mp3",
		o.URL + "/audio/d1/001__f__r100__ja.mp3",
	}

	for run := 0; run < 2; run++ {
		report, err := w.Prefetch(context.Background(), urls)
		if err != nil {
			t.Fatalf("Prefetch failed: %v", err)
		}
		if report.Total != 4 || report.Stored != 3 || report.Failed != 1 {
			t.Errorf("run %d: report = %+v", run, report)
		}
	}

	audio, _ := storage.Open(DefaultAudioStore)
	if got := len(audio.Keys()); got != 3 {
		t.Errorf("audio store holds %d entries, want 3", got)
	}
}

func TestWorker_PrefetchSkipsRedirects(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, storage := activeWorker(t, o)

	report, _ := w.Prefetch(context.Background(), []string{"/moved"})
	if report.Stored != 0 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	audio, _ := storage.Open(DefaultAudioStore)
	if len(audio.Keys()) != 0 {
		t.Error("redirected response was stored")
	}
}

func TestWorker_PostIsAsync(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, storage := activeWorker(t, o)

	msg, err := DecodeMessage([]byte(`{"type":"PRECACHE_AUDIO","urls":["/audio/d1/001__f__r100.mp3"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if !w.Post(msg) {
		t.Fatal("Post dropped the message")
	}
	// Unknown types are ignored
	w.Post(Message{Type: "SOMETHING_ELSE"})

	audio, _ := storage.Open(DefaultAudioStore)
	deadline := time.Now().Add(3 * time.Second)
	for len(audio.Keys()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("prefetch message was not processed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"PRECACHE_AUDIO","urls":"nope"}`))
	if err != nil || msg.Type != MessagePrecacheAudio || len(msg.URLs) != 0 {
		t.Errorf("unexpected decode: %+v %v", msg, err)
	}
	if _, err := DecodeMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed message")
	}
}

func TestWorker_TerminatedPassesThrough(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, _ := activeWorker(t, o)

	audioURL := o.URL + "/audio/d1/001__f__r100.mp3"
	_, _ = w.Handle(context.Background(), mustRequest(t, audioURL))

	w.Supersede()
	if w.State() != StateSuperseded {
		t.Fatalf("state = %s", w.State())
	}
	_, _ = w.Handle(context.Background(), mustRequest(t, audioURL))
	if n := o.count("/audio/d1/001__f__r100.mp3"); n != 1 {
		t.Errorf("superseded worker should still serve from cache, fetched %d times", n)
	}

	w.Terminate()
	_, _ = w.Handle(context.Background(), mustRequest(t, audioURL))
	if n := o.count("/audio/d1/001__f__r100.mp3"); n != 2 {
		t.Errorf("terminated worker should pass through, fetched %d times", n)
	}
	if w.Post(Message{Type: MessagePrecacheAudio}) {
		t.Error("terminated worker accepted a message")
	}
}

func TestWorker_RoundTripper(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, _ := activeWorker(t, o)

	client := &http.Client{Transport: w.RoundTripper(nil)}
	audioURL := o.URL + "/audio/d1/002__m__r100.mp3"
	for i := 0; i < 2; i++ {
		resp, err := client.Get(audioURL)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close() //nolint:errcheck
		if string(body) != "clip-2" {
			t.Errorf("body = %q", body)
		}
	}
	if n := o.count("/audio/d1/002__m__r100.mp3"); n != 1 {
		t.Errorf("fetched %d times through the transport, want 1", n)
	}
}

func TestWorker_Handler(t *testing.T) {
	o := newOrigin(t, sitePages())
	w, _ := activeWorker(t, o)

	front := httptest.NewServer(w.Handler())
	defer front.Close()

	req, _ := http.NewRequest(http.MethodGet, front.URL+"/lesson/2", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close() //nolint:errcheck
	if !strings.Contains(string(body), "app") {
		t.Errorf("navigation through handler returned %q", body)
	}

	o.setDown()
	resp, err = http.Get(front.URL + "/unknown")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestWorker_HandlerRangeKeepsFullBody(t *testing.T) {
	const path = "/audio/d1/001__f__r100.mp3"
	pages := sitePages()
	pages[path] = strings.Repeat("x", 1000)
	o := newOrigin(t, pages)
	w, storage := activeWorker(t, o)

	front := httptest.NewServer(w.Handler())
	defer front.Close()

	req, _ := http.NewRequest(http.MethodGet, front.URL+path, nil)
	req.Header.Set("Range", "bytes=0-9")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusPartialContent || len(body) != 10 {
		t.Errorf("range request = %d with %d bytes, want 206 with 10", resp.StatusCode, len(body))
	}

	audio, _ := storage.Open(DefaultAudioStore)
	if e, ok := audio.Match(o.URL + path); !ok || len(e.Body) != 1000 || e.Status != http.StatusOK {
		t.Fatalf("stored entry = %v", e)
	}

	resp, err = http.Get(front.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK || len(body) != 1000 {
		t.Errorf("full request = %d with %d bytes, want 200 with 1000", resp.StatusCode, len(body))
	}
}

func TestEntry_CacheableRejectsPartial(t *testing.T) {
	tests := []struct {
		entry Entry
		want  bool
	}{
		{Entry{Status: http.StatusOK}, true},
		{Entry{Status: http.StatusPartialContent}, false},
		{Entry{Status: http.StatusNoContent}, false},
		{Entry{Status: http.StatusOK, Redirected: true}, false},
	}
	for _, tt := range tests {
		if got := tt.entry.Cacheable(); got != tt.want {
			t.Errorf("Cacheable(%d, redirected=%v) = %v", tt.entry.Status, tt.entry.Redirected, got)
		}
	}
}

func TestRequestFromHTTP_Mode(t *testing.T) {
	tests := []struct {
		path   string
		accept string
		fetch  string
		want   Mode
	}{
		{"/lesson", "text/html", "", ModeNavigate},
		{"/app.js", "text/html", "", ModeDefault},
		{"/lesson", "application/json", "", ModeDefault},
		{"/app.js", "*/*", "navigate", ModeNavigate},
	}

	origin, _ := url.Parse("http://example.test")
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.path, nil)
		r.Header.Set("Accept", tt.accept)
		if tt.fetch != "" {
			r.Header.Set("Sec-Fetch-Mode", tt.fetch)
		}
		req := RequestFromHTTP(r, origin)
		if req.Mode != tt.want {
			t.Errorf("%s (%s): mode = %s, want %s", tt.path, tt.accept, req.Mode, tt.want)
		}
	}
}

func TestHTTPFetcher_MaxBodySize(t *testing.T) {
	pages := sitePages()
	pages["/audio/d1/002__m__r100.mp3"] = strings.Repeat("x", 11)
	o := newOrigin(t, pages)

	f := NewHTTPFetcher(nil, 5*time.Second)
	f.MaxBodySize = 10

	entry, err := f.Fetch(context.Background(), mustRequest(t, o.URL+"/audio/d1/001__f__r100.mp3"))
	if err != nil || string(entry.Body) != "clip-1" {
		t.Fatalf("body under the limit = %v, %v", entry, err)
	}

	_, err = f.Fetch(context.Background(), mustRequest(t, o.URL+"/audio/d1/002__m__r100.mp3"))
	var fe *FetchError
	if !errors.As(err, &fe) || !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected a FetchError wrapping ErrBodyTooLarge, got %v", err)
	}
}
