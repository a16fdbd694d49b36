package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/speakdrill/speakdrill/internal/clip"
)

// Default store names. Bumping a version invalidates the whole store on the
// next activation.
const (
	DefaultAppStore   = "app-v29"
	DefaultAudioStore = "audio-v6"
	DefaultEntryPoint = "/index.html"
)

// DefaultAssets is the application manifest fetched on install.
var DefaultAssets = []string{
	"/index.html",
	"/styles.css",
	"/app.js",
	"/manifest.webmanifest",
	"/icon.svg",
	"/data/dialogues.json",
	"/fonts/NotoSansSC-Regular.ttf",
	"/fonts/NotoSansSC-SemiBold.ttf",
	"/fonts/NotoSerifSC-SemiBold.ttf",
}

// State is the worker lifecycle state.
type State int32

const (
	StateInstalling State = iota
	StateActive
	StateSuperseded
	StateTerminated
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is a cache event reported to an Observer.
type Event string

const (
	EventHit            Event = "hit"
	EventMiss           Event = "miss"
	EventStore          Event = "store"
	EventEvict          Event = "evict"
	EventFallback       Event = "fallback"
	EventNetworkError   Event = "network_error"
	EventPrefetchOK     Event = "prefetch_ok"
	EventPrefetchFailed Event = "prefetch_failed"
)

// Observer receives cache events, labelled by store name.
type Observer interface {
	Observe(store string, ev Event)
}

type nopObserver struct{}

func (nopObserver) Observe(string, Event) {}

// Config configures a Worker.
type Config struct {
	// Origin is the site the worker fronts. Only same-origin requests are
	// routed to the cache-first stores.
	Origin *url.URL

	AppStore   string
	AudioStore string
	EntryPoint string
	Assets     []string

	// PrefetchRate limits bulk prefetch fetches per second; zero means no
	// limit. PrefetchBurst defaults to 1.
	PrefetchRate  float64
	PrefetchBurst int

	// QueueSize is the number of prefetch messages that can wait for the
	// background loop. Defaults to 16.
	QueueSize int

	Observer Observer
}

func (c *Config) setDefaults() {
	if c.AppStore == "" {
		c.AppStore = DefaultAppStore
	}
	if c.AudioStore == "" {
		c.AudioStore = DefaultAudioStore
	}
	if c.EntryPoint == "" {
		c.EntryPoint = DefaultEntryPoint
	}
	if c.Assets == nil {
		c.Assets = DefaultAssets
	}
	if c.PrefetchBurst <= 0 {
		c.PrefetchBurst = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
}

// Worker intercepts requests and answers them from the versioned stores or
// the network. It is safe for concurrent use.
type Worker struct {
	cfg     Config
	storage Storage
	fetcher Fetcher
	limiter *rate.Limiter

	state atomic.Int32

	mu    sync.Mutex
	app   Store
	audio Store

	messages  chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWorker creates a worker in the installing state and starts its message
// loop. Call Close (or Terminate) to stop the loop.
func NewWorker(cfg Config, storage Storage, fetcher Fetcher) (*Worker, error) {
	cfg.setDefaults()
	if cfg.Origin == nil {
		return nil, errors.New("cache: worker origin is required")
	}
	for _, name := range []string{cfg.AppStore, cfg.AudioStore} {
		if !ValidStoreName(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStoreName, name)
		}
	}
	if cfg.AppStore == cfg.AudioStore {
		return nil, errors.New("cache: app and audio stores must differ")
	}

	limit := rate.Inf
	if cfg.PrefetchRate > 0 {
		limit = rate.Limit(cfg.PrefetchRate)
	}

	w := &Worker{
		cfg:      cfg,
		storage:  storage,
		fetcher:  fetcher,
		limiter:  rate.NewLimiter(limit, cfg.PrefetchBurst),
		messages: make(chan Message, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	w.state.Store(int32(StateInstalling))

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Config returns the worker configuration with defaults applied.
func (w *Worker) Config() Config {
	return w.cfg
}

// Install fetches the asset manifest into the app store. Assets that fail are
// skipped; the install fails only when none could be stored.
func (w *Worker) Install(ctx context.Context) error {
	if w.State() == StateTerminated {
		return ErrTerminated
	}

	app, err := w.store(w.cfg.AppStore)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}

	stored := 0
	for _, asset := range w.cfg.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := &Request{Method: http.MethodGet, URL: w.resolve(asset), Bypass: true}
		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			log.Warn("skipping asset", "asset", asset, "error", err)
			continue
		}
		if !resp.OK() {
			log.Warn("skipping asset", "asset", asset, "status", resp.Status)
			continue
		}
		if err := app.Put(req.Key(), resp); err != nil {
			log.Warn("skipping asset", "asset", asset, "error", err)
			continue
		}
		w.cfg.Observer.Observe(app.Name(), EventStore)
		stored++
	}

	if stored == 0 && len(w.cfg.Assets) > 0 {
		return ErrInstallFailed
	}
	log.Info("worker installed", "store", app.Name(), "assets", stored, "of", len(w.cfg.Assets))
	return nil
}

// Activate deletes every store that is not the current app or audio store
// and starts serving. It returns the names of the removed stores.
func (w *Worker) Activate(ctx context.Context) ([]string, error) {
	if w.State() == StateTerminated {
		return nil, ErrTerminated
	}

	names, err := w.storage.Keys()
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}

	var (
		removed []string
		errs    []error
	)
	for _, name := range names {
		if name == w.cfg.AppStore || name == w.cfg.AudioStore {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if _, err := w.storage.Delete(name); err != nil {
			log.Warn("unable to delete stale store", "store", name, "error", err)
			errs = append(errs, err)
			continue
		}
		log.Info("deleted stale store", "store", name)
		removed = append(removed, name)
	}

	w.state.CompareAndSwap(int32(StateInstalling), int32(StateActive))
	return removed, errors.Join(errs...)
}

// Supersede marks the worker as replaced by a newer version. A superseded
// worker keeps serving until it is terminated.
func (w *Worker) Supersede() {
	w.state.CompareAndSwap(int32(StateActive), int32(StateSuperseded))
}

// Terminate stops the worker. Afterwards every request goes straight to the
// network and prefetch messages are dropped.
func (w *Worker) Terminate() {
	w.state.Store(int32(StateTerminated))
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

// Close terminates the worker.
func (w *Worker) Close() error {
	w.Terminate()
	return nil
}

// Handle answers a request according to the routing rules.
func (w *Worker) Handle(ctx context.Context, req *Request) (*Entry, error) {
	switch w.State() {
	case StateActive, StateSuperseded:
	default:
		return w.fetcher.Fetch(ctx, req)
	}

	if req.Method != "" && req.Method != http.MethodGet {
		return w.fetcher.Fetch(ctx, req)
	}

	if req.Mode == ModeNavigate {
		return w.navigate(ctx, req)
	}

	if w.sameOrigin(req.URL) {
		if clip.IsAudioPath(req.URL.Path) {
			return w.cacheFirst(ctx, req, w.cfg.AudioStore)
		}
		if slices.Contains(w.cfg.Assets, req.URL.Path) {
			return w.cacheFirst(ctx, req, w.cfg.AppStore)
		}
	}

	return w.networkFirst(ctx, req)
}

// navigate serves the entry point for page navigations. When neither the
// store nor a fresh fetch can provide it, the original request goes to the
// network and its error is returned.
func (w *Worker) navigate(ctx context.Context, req *Request) (*Entry, error) {
	entry := &Request{Method: http.MethodGet, URL: w.resolve(w.cfg.EntryPoint), Bypass: true}
	resp, err := w.cacheFirst(ctx, entry, w.cfg.AppStore)
	if err == nil {
		return resp, nil
	}
	log.Debug("entry point unavailable, falling through", "url", req.URL.String(), "error", err)
	return w.fetcher.Fetch(ctx, req)
}

func (w *Worker) cacheFirst(ctx context.Context, req *Request, name string) (*Entry, error) {
	store := w.storeOrNil(name)
	resp, out, err := CacheFirst(ctx, req, store, w.fetcher)
	w.report(name, out, err)
	if out.Hit {
		log.Debug("cache hit", "store", name, "url", req.Key())
	}
	return resp, err
}

func (w *Worker) networkFirst(ctx context.Context, req *Request) (*Entry, error) {
	store := w.storeOrNil(w.cfg.AppStore)
	resp, out, err := NetworkFirst(ctx, req, store, w.fetcher)
	w.report(w.cfg.AppStore, out, err)
	return resp, err
}

func (w *Worker) report(name string, out Outcome, err error) {
	obs := w.cfg.Observer
	switch {
	case out.Hit:
		obs.Observe(name, EventHit)
	case out.Fallback:
		obs.Observe(name, EventFallback)
	default:
		obs.Observe(name, EventMiss)
	}
	if out.Evicted {
		obs.Observe(name, EventEvict)
	}
	if out.Stored {
		obs.Observe(name, EventStore)
	}
	if err != nil {
		obs.Observe(name, EventNetworkError)
	}
}

// store opens a store once and keeps the handle.
func (w *Worker) store(name string) (Store, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	handle := &w.app
	if name == w.cfg.AudioStore {
		handle = &w.audio
	}
	if *handle != nil {
		return *handle, nil
	}

	s, err := w.storage.Open(name)
	if err != nil {
		return nil, err
	}
	*handle = s
	return s, nil
}

// storeOrNil degrades store failures to a nil store, which the strategies
// treat as network only.
func (w *Worker) storeOrNil(name string) Store {
	s, err := w.store(name)
	if err != nil {
		log.Warn("store unavailable, using network", "store", name, "error", err)
		return nil
	}
	return s
}

// Stats returns statistics for the app and audio stores.
func (w *Worker) Stats() map[string]Stats {
	stats := make(map[string]Stats, 2)
	for _, name := range []string{w.cfg.AppStore, w.cfg.AudioStore} {
		if s := w.storeOrNil(name); s != nil {
			stats[name] = s.Stats()
		}
	}
	return stats
}

func (w *Worker) resolve(path string) *url.URL {
	return w.cfg.Origin.ResolveReference(&url.URL{Path: path})
}

func (w *Worker) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, w.cfg.Origin.Scheme) &&
		strings.EqualFold(u.Host, w.cfg.Origin.Host)
}
