package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
)

// MessagePrecacheAudio asks the worker to warm the audio store.
const MessagePrecacheAudio = "PRECACHE_AUDIO"

// Message is a command posted to the worker.
type Message struct {
	Type string   `json:"type"`
	URLs []string `json:"urls"`
}

// DecodeMessage parses a JSON command. A missing or malformed url list is
// treated as empty.
func DecodeMessage(data []byte) (Message, error) {
	var raw struct {
		Type string          `json:"type"`
		URLs json.RawMessage `json:"urls"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}

	msg := Message{Type: raw.Type}
	if len(raw.URLs) > 0 {
		if err := json.Unmarshal(raw.URLs, &msg.URLs); err != nil {
			msg.URLs = nil
		}
	}
	return msg, nil
}

// PrefetchReport summarizes a bulk prefetch.
type PrefetchReport struct {
	Total  int
	Stored int
	Failed int
}

// Prefetch fetches each URL in order and stores every 2xx, non-redirected
// response in the audio store. Individual failures are counted, not
// returned; the only errors are a terminated worker or a done context.
// Running it again over the same list overwrites the same keys.
func (w *Worker) Prefetch(ctx context.Context, urls []string) (PrefetchReport, error) {
	report := PrefetchReport{Total: len(urls)}
	if w.State() == StateTerminated {
		return report, ErrTerminated
	}

	store := w.storeOrNil(w.cfg.AudioStore)
	name := w.cfg.AudioStore

	for _, raw := range urls {
		if err := w.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if w.prefetchOne(ctx, store, raw) {
			report.Stored++
			w.cfg.Observer.Observe(name, EventPrefetchOK)
		} else {
			report.Failed++
			w.cfg.Observer.Observe(name, EventPrefetchFailed)
		}
	}

	log.Debug("prefetch finished", "store", name, "stored", report.Stored, "failed", report.Failed, "total", report.Total)
	return report, nil
}

func (w *Worker) prefetchOne(ctx context.Context, store Store, raw string) bool {
	ref, err := url.Parse(raw)
	if err != nil {
		log.Debug("prefetch skipped", "url", raw, "error", err)
		return false
	}
	req := &Request{Method: http.MethodGet, URL: w.cfg.Origin.ResolveReference(ref)}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		log.Debug("prefetch failed", "url", raw, "error", err)
		return false
	}
	if !resp.Cacheable() {
		log.Debug("prefetch not cacheable", "url", raw, "status", resp.Status, "redirected", resp.Redirected)
		return false
	}
	return put(store, req.Key(), resp)
}

// Post enqueues a command for the background loop and returns immediately.
// It reports false when the message was dropped because the worker is
// terminated or its queue is full.
func (w *Worker) Post(msg Message) bool {
	if w.State() == StateTerminated {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
	}

	select {
	case w.messages <- msg:
		return true
	default:
		log.Warn("worker queue full, dropping message", "type", msg.Type)
		return false
	}
}

// HandleMessage processes one command synchronously. Unknown or malformed
// commands are ignored.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) {
	if msg.Type != MessagePrecacheAudio {
		log.Debug("ignoring message", "type", msg.Type)
		return
	}
	if _, err := w.Prefetch(ctx, msg.URLs); err != nil {
		log.Debug("prefetch interrupted", "error", err)
	}
}

// loop drains posted messages until the worker is terminated.
func (w *Worker) loop() {
	defer w.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.done
		cancel()
	}()

	for {
		select {
		case <-w.done:
			return
		case msg := <-w.messages:
			w.HandleMessage(ctx, msg)
		}
	}
}
