package cache

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// RequestFromHTTP converts an outgoing or incoming HTTP request into a cache
// request. Relative URLs (as seen by a server) are resolved against origin.
// A request is a navigation when it carries Sec-Fetch-Mode: navigate, or
// when it is a GET accepting text/html for an extension-less path.
func RequestFromHTTP(r *http.Request, origin *url.URL) *Request {
	u := r.URL
	if !u.IsAbs() && origin != nil {
		u = origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
	}

	req := &Request{
		Method: r.Method,
		URL:    u,
		Header: r.Header.Clone(),
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	switch {
	case r.Header.Get("Sec-Fetch-Mode") == "navigate":
		req.Mode = ModeNavigate
	case req.Method == http.MethodGet &&
		strings.Contains(r.Header.Get("Accept"), "text/html") &&
		path.Ext(u.Path) == "":
		req.Mode = ModeNavigate
	}
	return req
}

// Response converts an entry into an HTTP response for req.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))

	return &http.Response{
		Status:        strconv.Itoa(e.Status) + " " + http.StatusText(e.Status),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

type roundTripper struct {
	worker *Worker
	base   http.RoundTripper
}

// RoundTripper returns a transport that routes GET requests through the
// worker. Other methods go to base unchanged. A nil base selects
// http.DefaultTransport.
func (w *Worker) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{worker: w, base: base}
}

func (rt *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Method != "" && r.Method != http.MethodGet {
		return rt.base.RoundTrip(r)
	}

	req := RequestFromHTTP(r, nil)
	// Stores hold whole bodies; a range would fetch a fragment.
	req.Header.Del("Range")
	req.Header.Del("If-Range")

	entry, err := rt.worker.Handle(r.Context(), req)
	if err != nil {
		return nil, err
	}
	return entry.Response(r), nil
}

// Handler returns an HTTP handler that serves the worker's origin through
// the cache. GET requests are answered by Handle; other methods are proxied
// to the origin.
func (w *Worker) Handler() http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(w.cfg.Origin)

	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			proxy.ServeHTTP(rw, r)
			return
		}

		req := RequestFromHTTP(r, w.cfg.Origin)
		// Only forward headers that affect content.
		req.Header = filterHeader(r.Header, "Accept", "Accept-Language")

		entry, err := w.Handle(r.Context(), req)
		if err != nil {
			log.Warn("request failed", "url", req.URL.String(), "error", err)
			http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}

		h := rw.Header()
		for k, vv := range entry.Header {
			if hopHeaders[http.CanonicalHeaderKey(k)] {
				continue
			}
			h[k] = append([]string(nil), vv...)
		}

		// Ranges are cut from the full body.
		if entry.Status == http.StatusOK {
			http.ServeContent(rw, r, "", entry.StoredAt, bytes.NewReader(entry.Body))
			return
		}
		h.Set("Content-Length", strconv.Itoa(len(entry.Body)))
		rw.WriteHeader(entry.Status)
		_, _ = rw.Write(entry.Body)
	})
}

var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

func filterHeader(h http.Header, keys ...string) http.Header {
	out := make(http.Header)
	for _, k := range keys {
		if v := h.Values(k); len(v) > 0 {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}
