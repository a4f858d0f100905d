package testutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Replayer serves recorded responses. Entries sharing a method and URL
// are served in recording order; once exhausted, the last one repeats.
// OData $batch calls all POST to the same URL, so order is what tells
// them apart.
type Replayer struct {
	mu sync.Mutex

	exact map[string][]*HAREntry
	// path indexes method + URL without the query, as a fallback
	path map[string][]*HAREntry
	next map[string]int

	passthrough bool
	log         zerolog.Logger
	served      int
	missed      []string
}

type ReplayerOption func(*Replayer)

// WithPassthrough lets unmatched requests reach the network instead of
// failing with 404. Only meaningful for the rod middleware.
func WithPassthrough(enabled bool) ReplayerOption {
	return func(r *Replayer) { r.passthrough = enabled }
}

// WithLogger logs every match and miss at debug level.
func WithLogger(l zerolog.Logger) ReplayerOption {
	return func(r *Replayer) { r.log = l }
}

func NewReplayer(har *HARLog, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		exact: make(map[string][]*HAREntry),
		path:  make(map[string][]*HAREntry),
		next:  make(map[string]int),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range har.Entries {
		e := &har.Entries[i]
		method := strings.ToUpper(e.Request.Method)
		r.exact[exactKey(method, e.Request.URL)] = append(r.exact[exactKey(method, e.Request.URL)], e)
		if pk, ok := pathKey(method, e.Request.URL); ok {
			r.path[pk] = append(r.path[pk], e)
		}
	}
	return r
}

func exactKey(method, rawURL string) string {
	return method + " " + rawURL
}

func pathKey(method, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return method + " " + u.Scheme + "://" + u.Host + u.Path, true
}

// Lookup returns the next recorded entry for a request.
func (r *Replayer) Lookup(method, rawURL string) (*HAREntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	method = strings.ToUpper(method)
	key := exactKey(method, rawURL)
	queue := r.exact[key]
	if len(queue) == 0 {
		if pk, ok := pathKey(method, rawURL); ok {
			key, queue = pk, r.path[pk]
		}
	}
	if len(queue) == 0 {
		r.missed = append(r.missed, method+" "+rawURL)
		r.log.Debug().Str("method", method).Str("url", rawURL).Msg("replay miss")
		return nil, false
	}

	i := r.next[key]
	if i >= len(queue) {
		i = len(queue) - 1
	} else {
		r.next[key] = i + 1
	}
	r.served++

	entry := r.followRedirects(queue[i])
	r.log.Debug().Str("method", method).Str("url", rawURL).Int("status", entry.Response.Status).Msg("replay hit")
	return entry, true
}

// followRedirects returns the final entry of a 3xx chain whose targets
// were recorded.
func (r *Replayer) followRedirects(entry *HAREntry) *HAREntry {
	const maxRedirects = 10
	current := entry

	for i := 0; i < maxRedirects; i++ {
		if current.Response.Status < 300 || current.Response.Status >= 400 {
			return current
		}
		location := current.Response.Header("Location")
		if location == "" {
			return current
		}

		target := r.exact[exactKey(http.MethodGet, location)]
		if len(target) == 0 {
			if pk, ok := pathKey(http.MethodGet, location); ok {
				target = r.path[pk]
			}
		}
		if len(target) == 0 {
			return current
		}
		current = target[0]
	}
	return current
}

// RoundTrip serves recorded responses to an http.Client. Unmatched
// requests get a 404 with a JSON body.
func (r *Replayer) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}

	entry, ok := r.Lookup(req.Method, req.URL.String())
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"error": "no recording found for URL"}`)),
			Request:    req,
		}, nil
	}

	body := entry.Response.Body()
	header := make(http.Header)
	for _, h := range entry.Response.Headers {
		if skipHeader(h.Name) {
			continue
		}
		header.Add(h.Name, h.Value)
	}
	if header.Get("Content-Type") == "" && entry.Response.Content.MimeType != "" {
		header.Set("Content-Type", entry.Response.Content.MimeType)
	}

	return &http.Response{
		StatusCode:    entry.Response.Status,
		Status:        fmt.Sprintf("%d %s", entry.Response.Status, http.StatusText(entry.Response.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// Client returns an http.Client backed by the replayer.
func (r *Replayer) Client() *http.Client {
	return &http.Client{Transport: r}
}

// Middleware returns a Rod hijack handler that serves recorded responses.
func (r *Replayer) Middleware() func(*rod.Hijack) {
	return func(h *rod.Hijack) {
		reqURL := h.Request.URL().String()

		entry, ok := r.Lookup(h.Request.Method(), reqURL)
		if !ok {
			if r.passthrough {
				_ = h.LoadResponse(http.DefaultClient, true)
				return
			}
			payload := h.Response.Payload()
			payload.ResponseCode = http.StatusNotFound
			payload.ResponseHeaders = []*proto.FetchHeaderEntry{{Name: "Content-Type", Value: "application/json"}}
			payload.Body = []byte(`{"error": "no recording found for URL"}`)
			return
		}

		var headers []*proto.FetchHeaderEntry
		for _, hd := range entry.Response.Headers {
			if skipHeader(hd.Name) {
				continue
			}
			headers = append(headers, &proto.FetchHeaderEntry{Name: hd.Name, Value: hd.Value})
		}
		if entry.Response.Header("Content-Type") == "" && entry.Response.Content.MimeType != "" {
			headers = append(headers, &proto.FetchHeaderEntry{Name: "Content-Type", Value: entry.Response.Content.MimeType})
		}

		payload := h.Response.Payload()
		payload.ResponseCode = entry.Response.Status
		payload.ResponseHeaders = headers
		payload.Body = entry.Response.Body()
	}
}

// skipHeader drops headers that no longer describe the decoded body.
func skipHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-encoding", "content-length", "location", "transfer-encoding":
		return true
	}
	return false
}

// Stats reports how many recordings are indexed and how many requests
// were served or missed.
func (r *Replayer) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]int{
		"exact_keys": len(r.exact),
		"path_keys":  len(r.path),
		"served":     r.served,
		"missed":     len(r.missed),
	}
}

// Missed lists the requests that had no recording.
func (r *Replayer) Missed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.missed...)
}
