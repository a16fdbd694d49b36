package server

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// contentTypes covers extensions the platform mime table may lack.
var contentTypes = map[string]string{
	".mp3":         "audio/mpeg",
	".webmanifest": "application/manifest+json",
}

// staticTransport answers requests from files under root as if it were the
// origin. Unlike http.FileServer it never redirects, so /index.html is
// served in place and stays cacheable.
type staticTransport struct {
	root string
}

// StaticTransport returns a RoundTripper that serves files from root.
func StaticTransport(root string) http.RoundTripper {
	return &staticTransport{root: root}
}

func (t *staticTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return respond(r, http.StatusMethodNotAllowed, "text/plain; charset=utf-8", []byte("method not allowed\n")), nil
	}

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	full := filepath.Join(t.root, filepath.FromSlash(name))

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
		name = path.Join(name, "index.html")
	}

	data, err := os.ReadFile(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return respond(r, http.StatusNotFound, "text/plain; charset=utf-8", []byte("404 page not found\n")), nil
	case err != nil:
		return nil, err
	}

	ctype := contentTypes[path.Ext(name)]
	if ctype == "" {
		ctype = mime.TypeByExtension(path.Ext(name))
	}
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if r.Method == http.MethodHead {
		resp := respond(r, http.StatusOK, ctype, nil)
		resp.Header.Set("Content-Length", strconv.Itoa(len(data)))
		return resp, nil
	}
	return respond(r, http.StatusOK, ctype, data), nil
}

func respond(r *http.Request, status int, ctype string, body []byte) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", ctype)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}
