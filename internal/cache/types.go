package cache

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an entry exceeds a store's capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when stored data cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrInvalidStoreName is returned for store names that are not safe
	// to use as directory names
	ErrInvalidStoreName = errors.New("invalid store name")

	// ErrInstallFailed is returned when no application asset could be stored
	ErrInstallFailed = errors.New("install failed: no assets could be cached")

	// ErrTerminated is returned by lifecycle calls on a terminated worker
	ErrTerminated = errors.New("worker terminated")

	// ErrBodyTooLarge is returned when a response body exceeds the
	// fetcher's limit
	ErrBodyTooLarge = errors.New("response body too large")
)

// FetchError describes a network failure for a specific URL.
type FetchError struct {
	URL string
	Err error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error
func (e *FetchError) Unwrap() error {
	return e.Err
}

var storeNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidStoreName reports whether name can be used for a store.
func ValidStoreName(name string) bool {
	return storeNamePattern.MatchString(name)
}

// Mode classifies a request the way the browser does for service workers.
type Mode int

const (
	// ModeDefault covers subresource requests (scripts, audio, JSON).
	ModeDefault Mode = iota

	// ModeNavigate is a top-level page navigation.
	ModeNavigate
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeNavigate:
		return "navigate"
	default:
		return "default"
	}
}

// Request is the descriptor the cache policies work on. It is independent of
// the interception mechanism (RoundTripper or HTTP front).
type Request struct {
	Method string
	URL    *url.URL
	Mode   Mode
	Header http.Header

	// Bypass asks the fetcher to skip any intermediate HTTP cache.
	Bypass bool
}

// NewRequest builds a GET request descriptor for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	return &Request{Method: http.MethodGet, URL: u}, nil
}

// Key returns the store key for the request: the absolute URL without its
// fragment.
func (r *Request) Key() string {
	return Key(r.URL)
}

// Key normalizes a URL into a store key.
func Key(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// Entry is a stored response.
type Entry struct {
	URL        string
	Status     int
	Header     http.Header
	Body       []byte
	Redirected bool
	StoredAt   time.Time
}

// OK reports whether the response status is in the 2xx range.
func (e *Entry) OK() bool {
	return e.Status >= 200 && e.Status < 300
}

// Cacheable reports whether the response may be written to a store: a
// complete 200 that was not served through a redirect. Partial content is
// never stored under the full URL.
func (e *Entry) Cacheable() bool {
	return e.Status == http.StatusOK && !e.Redirected
}

// Size returns the body size in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Body))
}

// clone returns a shallow copy whose header map can be modified safely.
// Bodies are never mutated, so they are shared.
func (e *Entry) clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	return &c
}

// Stats holds store metrics
type Stats struct {
	// Current state
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of entries
	Capacity  int64 // Maximum capacity in bytes, 0 when unbounded

	// Performance metrics
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
}
