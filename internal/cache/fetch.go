package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher performs network requests. A non-2xx response is returned as an
// Entry, not an error; errors mean the network itself failed.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Entry, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *Request) (*Entry, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Entry, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches over HTTP with the given client.
type HTTPFetcher struct {
	Client *http.Client

	// MaxBodySize rejects bodies larger than this many bytes with
	// ErrBodyTooLarge; zero means no limit.
	MaxBodySize int64
}

// NewHTTPFetcher returns a fetcher using a client built on transport. A nil
// transport selects http.DefaultTransport.
func NewHTTPFetcher(transport http.RoundTripper, timeout time.Duration) *HTTPFetcher {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &HTTPFetcher{
		Client: &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Fetch performs the request. The returned entry is marked Redirected when
// the final URL differs from the one requested.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Entry, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: req.URL.String(), Err: err}
	}
	for k, vv := range req.Header {
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Bypass {
		httpReq.Header.Set("Cache-Control", "no-cache")
		httpReq.Header.Set("Pragma", "no-cache")
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	var body io.Reader = resp.Body
	if f.MaxBodySize > 0 {
		body = io.LimitReader(resp.Body, f.MaxBodySize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}
	if f.MaxBodySize > 0 && int64(len(data)) > f.MaxBodySize {
		return nil, &FetchError{URL: req.URL.String(), Err: fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, f.MaxBodySize)}
	}

	final := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	return &Entry{
		URL:        final,
		Status:     resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		Redirected: final != req.URL.String(),
	}, nil
}
