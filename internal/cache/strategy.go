package cache

import (
	"context"

	"github.com/charmbracelet/log"
)

// Outcome records what a strategy did to answer a request.
type Outcome struct {
	Hit      bool // served from the store
	Evicted  bool // a redirected entry was found and removed
	Stored   bool // the network response was written to the store
	Fallback bool // the network failed and a stored copy was served
}

// CacheFirst answers from store when a usable entry exists and goes to the
// network otherwise. Entries that were served through a redirect are never
// reused: they are deleted and treated as a miss. Fetched responses are
// stored when they are 2xx and not redirected, and returned either way.
//
// A nil store degrades to a plain network fetch.
func CacheFirst(ctx context.Context, req *Request, store Store, fetcher Fetcher) (*Entry, Outcome, error) {
	var out Outcome
	key := req.Key()

	if store != nil {
		if cached, ok := store.Match(key); ok {
			if !cached.Redirected {
				out.Hit = true
				return cached, out, nil
			}
			if err := store.Delete(key); err != nil {
				log.Warn("unable to evict redirected entry", "store", store.Name(), "url", key, "error", err)
			}
			out.Evicted = true
		}
	}

	resp, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, out, err
	}

	out.Stored = put(store, key, resp)
	return resp, out, nil
}

// NetworkFirst goes to the network and keeps a copy of every 2xx,
// non-redirected response. When the network fails it serves the stored copy,
// if one exists and was not redirected; otherwise the network error is
// returned.
func NetworkFirst(ctx context.Context, req *Request, store Store, fetcher Fetcher) (*Entry, Outcome, error) {
	var out Outcome
	key := req.Key()

	resp, err := fetcher.Fetch(ctx, req)
	if err == nil {
		out.Stored = put(store, key, resp)
		return resp, out, nil
	}

	if store != nil {
		if cached, ok := store.Match(key); ok && !cached.Redirected {
			out.Fallback = true
			return cached, out, nil
		}
	}
	return nil, out, err
}

// put writes resp to store when it is cacheable. Store failures are logged
// and reported as not stored.
func put(store Store, key string, resp *Entry) bool {
	if store == nil || !resp.Cacheable() {
		return false
	}
	if err := store.Put(key, resp); err != nil {
		log.Warn("unable to store response", "store", store.Name(), "url", key, "error", err)
		return false
	}
	return true
}
