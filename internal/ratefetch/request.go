// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratefetch

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RequestOptions are the per-request settings passed to Fetch.
type RequestOptions struct {
	// Method defaults to GET.
	Method string

	Header http.Header
	Body   []byte
}

func (o RequestOptions) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// CacheKey returns the coalescing key for a request: the method, the URL,
// the canonicalized headers in sorted order, and the body. Two requests
// with the same key are the same request.
func CacheKey(rawURL string, opts RequestOptions) string {
	var b strings.Builder
	b.WriteString(opts.method())
	b.WriteByte(' ')
	b.WriteString(rawURL)

	canon := make(map[string][]string, len(opts.Header))
	for k, vs := range opts.Header {
		ck := http.CanonicalHeaderKey(k)
		canon[ck] = append(canon[ck], vs...)
	}
	keys := make([]string, 0, len(canon))
	for k := range canon {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, strings.Join(canon[k], ", "))
	}

	if len(opts.Body) > 0 {
		b.WriteString("\n\n")
		b.Write(opts.Body)
	}
	return b.String()
}

// Response is a fully buffered HTTP response. Coalesced callers all receive
// the same *Response, so the body is read once and kept in memory.
type Response struct {
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Status     string      `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"-"`
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding JSON from %s: %w", r.URL, err)
	}
	return nil
}

// DecodeXML unmarshals the body into v.
func (r *Response) DecodeXML(v any) error {
	if err := xml.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding XML from %s: %w", r.URL, err)
	}
	return nil
}

// queuedRequest is one pending request. done is closed exactly once, after
// resp or err is set.
type queuedRequest struct {
	url        string
	opts       RequestOptions
	retryCount int
	enqueuedAt time.Time
	backoff    backoff.BackOff

	done chan struct{}
	resp *Response
	err  error
}

func newQueuedRequest(rawURL string, opts RequestOptions, b backoff.BackOff) *queuedRequest {
	return &queuedRequest{
		url:        rawURL,
		opts:       opts,
		enqueuedAt: time.Now(),
		backoff:    b,
		done:       make(chan struct{}),
	}
}

func (q *queuedRequest) settle(resp *Response, err error) {
	q.resp = resp
	q.err = err
	close(q.done)
}
