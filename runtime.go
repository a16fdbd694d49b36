package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/speakdrill/speakdrill/internal/audio"
	"github.com/speakdrill/speakdrill/internal/cache"
	"github.com/speakdrill/speakdrill/internal/config"
	"github.com/speakdrill/speakdrill/internal/content"
	"github.com/speakdrill/speakdrill/internal/ledger"
	"github.com/speakdrill/speakdrill/internal/metrics"
	"github.com/speakdrill/speakdrill/internal/playback"
)

// openStorage opens the configured cache backend.
func openStorage(c config.CacheConfig) (cache.Storage, func() error, error) {
	switch c.Backend {
	case config.BackendMemory:
		return cache.NewMemoryStorage(c.CapacityBytes()), func() error { return nil }, nil
	default:
		ds, err := cache.NewDiskStorage(c.Dir, c.CapacityBytes(), c.Compression)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open cache: %w", err)
		}
		return ds, ds.Close, nil
	}
}

// runtime bundles the cache worker and its storage for one command.
type runtime struct {
	origin  *url.URL
	storage cache.Storage
	worker  *cache.Worker
	metrics *metrics.Metrics
	closers []func() error
}

// newRuntime builds a worker in front of the configured origin. transport
// fetches from the origin; nil means the network.
func newRuntime(transport http.RoundTripper) (*runtime, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}

	storage, closeStorage, err := openStorage(cfg.Cache)
	if err != nil {
		return nil, err
	}

	fetcher := cache.NewHTTPFetcher(transport, cfg.Cache.Timeout)
	fetcher.MaxBodySize = cfg.Cache.MaxEntryBytes()

	m := metrics.New()
	w, err := cache.NewWorker(cache.Config{
		Origin:        origin,
		AppStore:      cfg.Cache.AppStore,
		AudioStore:    cfg.Cache.AudioStore,
		PrefetchRate:  cfg.Cache.PrefetchRPS,
		PrefetchBurst: cfg.Cache.PrefetchBurst,
		Observer:      m,
	}, storage, fetcher)
	if err != nil {
		_ = closeStorage()
		return nil, err
	}

	return &runtime{
		origin:  origin,
		storage: storage,
		worker:  w,
		metrics: m,
		closers: []func() error{w.Close, closeStorage},
	}, nil
}

// start installs and activates the worker. An install that stores nothing
// still activates so the stores already on disk keep serving offline.
func (rt *runtime) start(ctx context.Context) error {
	if err := rt.worker.Install(ctx); err != nil {
		if !errors.Is(err, cache.ErrInstallFailed) {
			return err
		}
		log.Warn("install stored no assets, serving from existing stores", "origin", rt.origin)
	}
	removed, err := rt.worker.Activate(ctx)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if len(removed) > 0 {
		log.Info("removed stale stores", "stores", removed)
	}
	return nil
}

// client returns an HTTP client whose GETs go through the cache.
func (rt *runtime) client() *http.Client {
	return &http.Client{Transport: rt.worker.RoundTripper(nil), Timeout: cfg.Cache.Timeout}
}

func (rt *runtime) Close() error {
	var errs []error
	for _, c := range rt.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// loadContent opens the dialogue file and, if configured, reloads it on
// change until ctx is done.
func loadContent(ctx context.Context) (*content.Store, error) {
	store, err := content.Load(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to load dialogues: %w", err)
	}
	if cfg.Content.Watch {
		go func() {
			if err := store.Watch(ctx, cfg.Content.Path, nil); err != nil {
				log.Warn("unable to watch dialogues", "error", err)
			}
		}()
	}
	return store, nil
}

// findDialogue resolves a dialogue argument by id or fuzzy title.
func findDialogue(store *content.Store, query string) (*content.Dialogue, error) {
	d, ok := store.Find(query)
	if !ok {
		return nil, fmt.Errorf("no dialogue matches %q", query)
	}
	return d, nil
}

func openLedger() (*ledger.Ledger, error) {
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open score ledger: %w", err)
	}
	return l, nil
}

// newPlayer wires the audio device and scheduler on top of rt.
func newPlayer(rt *runtime, store *content.Store) (*playback.Scheduler, *audio.Device, error) {
	settings, err := cfg.PlaybackSettings()
	if err != nil {
		return nil, nil, err
	}

	backend, err := audio.OtoBackend(audio.Config{
		SampleRate: cfg.Audio.SampleRate,
		BufferSize: cfg.Audio.Buffer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open audio output: %w", err)
	}

	dev := audio.NewDevice(backend,
		audio.WithHTTPClient(rt.client()),
		audio.WithVolume(cfg.Audio.Volume))
	sched := playback.New(dev, store, rt.origin.String(),
		playback.WithSettings(settings),
		playback.WithObserver(rt.metrics))
	dev.Listen(sched.HandleEvent)
	rt.closers = append([]func() error{dev.Close}, rt.closers...)
	return sched, dev, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
