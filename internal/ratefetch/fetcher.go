// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratefetch serializes HTTP requests to one upstream host. Requests
// are dispatched one at a time from a queue, spaced by a minimum interval,
// retried with exponential backoff when the host answers 429, and coalesced
// when identical requests are already in flight.
package ratefetch

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gammazero/deque"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/litfetch/pkg/types"
)

const (
	DefaultMinInterval  = 350 * time.Millisecond
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 1 * time.Second
	DefaultMaxBodyBytes = 32 << 20
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "litfetch/0.1"

	// maxRetryAfter caps how long an upstream Retry-After header can stall the queue.
	maxRetryAfter = 2 * time.Minute
)

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Fetcher.
type Option func(f *Fetcher)

// WithDoer replaces the default *http.Client transport.
func WithDoer(d Doer) Option {
	return func(f *Fetcher) {
		f.doer = d
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

// WithMetrics sets the collectors the fetcher reports to.
func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithName sets the fetcher name used in logs and metric labels.
func WithName(name string) Option {
	return func(f *Fetcher) {
		f.name = name
	}
}

// Stats is a point-in-time view of a fetcher.
type Stats struct {
	// Queued is the number of requests waiting to be dispatched.
	Queued int

	// InFlight is the number of distinct requests not yet settled.
	InFlight int64

	// Dispatched is the number of network calls issued, retries included.
	Dispatched int64
}

// Fetcher is a rate-limited HTTP client for one upstream host. Construct one
// per host and share it by reference; all callers then share one rate budget.
type Fetcher struct {
	name    string
	cfg     types.FetchConfig
	doer    Doer
	log     zerolog.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group

	mu      sync.Mutex
	queue   deque.Deque[*queuedRequest]
	running bool
	closed  bool

	// lastDispatch is only touched by the processing loop. Successive loops
	// are ordered through mu (running flag), so no further locking is needed.
	lastDispatch time.Time

	inFlight   atomic.Int64
	dispatched atomic.Int64
}

// New returns a Fetcher for cfg. Zero config fields take the package defaults.
func New(cfg types.FetchConfig, opts ...Option) *Fetcher {
	cfg = applyDefaults(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	f := &Fetcher{
		name:   "default",
		cfg:    cfg,
		log:    zerolog.Nop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.doer == nil {
		f.doer = &http.Client{Timeout: cfg.Timeout}
	}
	if f.metrics == nil {
		f.metrics = NewMetrics(nil)
	}
	f.log = f.log.With().Str("fetcher", f.name).Logger()
	return f
}

func applyDefaults(cfg types.FetchConfig) types.FetchConfig {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return cfg
}

// Name returns the fetcher name.
func (f *Fetcher) Name() string { return f.name }

// Config returns the effective configuration, defaults applied.
func (f *Fetcher) Config() types.FetchConfig { return f.cfg }

// Fetch queues a request and waits for it to settle.
//
// If an identical request (same CacheKey) is already in flight, Fetch joins
// it and returns the same *Response or error as every other joined caller.
// Non-429 responses are returned as-is, whatever the status. Once every
// retry has been answered with 429, the error matches ErrRateLimitExceeded.
// Transport failures are returned unchanged and are not retried.
//
// ctx bounds only this caller's wait. The request itself keeps its place in
// the queue and settles for any other caller that joined it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts RequestOptions) (*Response, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	key := CacheKey(rawURL, opts)
	// leader is set only when this call runs the request itself. The write
	// happens before singleflight delivers the result on ch.
	leader := false
	ch := f.group.DoChan(key, func() (any, error) {
		leader = true
		req := newQueuedRequest(rawURL, opts, f.newBackOff())
		if err := f.enqueue(req); err != nil {
			return nil, err
		}
		<-req.done
		return req.resp, req.err
	})

	select {
	case res := <-ch:
		if res.Shared && !leader {
			f.metrics.Coalesced.WithLabelValues(f.name).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns a snapshot of the queue and counters.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	queued := f.queue.Len()
	f.mu.Unlock()
	return Stats{
		Queued:     queued,
		InFlight:   f.inFlight.Load(),
		Dispatched: f.dispatched.Load(),
	}
}

// Close stops the processing loop. Queued requests, requests waiting out a
// backoff, and the request on the wire (its transport call is cancelled)
// are rejected with ErrClosed; later Fetch calls return ErrClosed too.
// Close is idempotent.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	var pending []*queuedRequest
	for f.queue.Len() > 0 {
		pending = append(pending, f.queue.PopFront())
	}
	f.metrics.QueueDepth.WithLabelValues(f.name).Set(0)
	f.mu.Unlock()

	f.cancel()
	for _, req := range pending {
		f.finish(req, nil, ErrClosed)
	}
	if len(pending) > 0 {
		f.log.Info().Int("rejected", len(pending)).Msg("fetcher closed with queued requests")
	}
	return nil
}

func (f *Fetcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxBackOff(f.cfg.BaseDelay, f.cfg.MaxRetries)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(f.cfg.MaxRetries))
}

// maxBackOff returns base * 2^retries, saturating at the largest Duration.
func maxBackOff(base time.Duration, retries int) time.Duration {
	if retries >= 63 || base > time.Duration(math.MaxInt64>>uint(retries)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(retries)
}

// enqueue appends req to the back of the queue and starts the loop if idle.
func (f *Fetcher) enqueue(req *queuedRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.inFlight.Add(1)
	f.queue.PushBack(req)
	f.metrics.QueueDepth.WithLabelValues(f.name).Set(float64(f.queue.Len()))
	if !f.running {
		f.running = true
		go f.run()
	}
	return nil
}

// requeue puts a retried request at the head so it goes before requests
// that have never been dispatched.
func (f *Fetcher) requeue(req *queuedRequest) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.queue.PushFront(req)
	f.metrics.QueueDepth.WithLabelValues(f.name).Set(float64(f.queue.Len()))
	return true
}

// run drains the queue one request at a time and exits when it is empty.
func (f *Fetcher) run() {
	for {
		f.mu.Lock()
		if f.closed || f.queue.Len() == 0 {
			f.running = false
			f.mu.Unlock()
			return
		}
		req := f.queue.PopFront()
		f.metrics.QueueDepth.WithLabelValues(f.name).Set(float64(f.queue.Len()))
		f.mu.Unlock()

		if !f.pace() {
			f.finish(req, nil, ErrClosed)
			continue
		}
		f.dispatch(req)
	}
}

// pace waits until MinInterval has elapsed since the previous dispatch. It
// returns false if the fetcher was closed while waiting.
func (f *Fetcher) pace() bool {
	if f.lastDispatch.IsZero() {
		return true
	}
	wait := f.cfg.MinInterval - time.Since(f.lastDispatch)
	if wait <= 0 {
		return true
	}
	return f.sleep(wait)
}

func (f *Fetcher) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-f.ctx.Done():
		return false
	}
}

func (f *Fetcher) dispatch(req *queuedRequest) {
	f.lastDispatch = time.Now()
	f.dispatched.Add(1)
	f.metrics.Dispatched.WithLabelValues(f.name).Inc()
	attempt := req.retryCount + 1

	f.log.Debug().Str("url", req.url).Int("attempt", attempt).Msg("dispatching request")

	resp, err := f.roundTrip(req)
	if err != nil && f.ctx.Err() != nil {
		f.log.Debug().Err(err).Str("url", req.url).Msg("request cancelled by close")
		f.finish(req, nil, ErrClosed)
		return
	}
	if err != nil {
		f.metrics.TransportErrors.WithLabelValues(f.name).Inc()
		f.log.Debug().Err(err).Str("url", req.url).Msg("transport failure")
		f.finish(req, nil, err)
		return
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		f.metrics.QueueWait.WithLabelValues(f.name).Observe(time.Since(req.enqueuedAt).Seconds())
		f.finish(req, resp, nil)
		return
	}

	f.metrics.RateLimited.WithLabelValues(f.name).Inc()

	delay := req.backoff.NextBackOff()
	if delay == backoff.Stop {
		f.metrics.RetriesExhausted.WithLabelValues(f.name).Inc()
		f.log.Error().Str("url", req.url).Int("attempts", attempt).Msg("rate limit retries exhausted")
		f.finish(req, nil, &RateLimitError{URL: req.url, Attempts: attempt})
		return
	}
	if ra := retryAfter(resp.Header); ra > delay {
		delay = ra
	}

	f.log.Warn().
		Str("url", req.url).
		Int("attempt", attempt).
		Int("max_retries", f.cfg.MaxRetries).
		Dur("backoff", delay).
		Msg("rate limited, backing off")

	if !f.sleep(delay) {
		f.finish(req, nil, ErrClosed)
		return
	}
	req.retryCount++
	if !f.requeue(req) {
		f.finish(req, nil, ErrClosed)
	}
}

func (f *Fetcher) roundTrip(req *queuedRequest) (*Response, error) {
	var body io.Reader
	if len(req.opts.Body) > 0 {
		body = bytes.NewReader(req.opts.Body)
	}

	hreq, err := http.NewRequestWithContext(f.ctx, req.opts.method(), req.url, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.opts.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	hresp, err := f.doer.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		URL:        req.url,
		StatusCode: hresp.StatusCode,
		Status:     hresp.Status,
		Header:     hresp.Header,
		Body:       data,
	}, nil
}

func (f *Fetcher) finish(req *queuedRequest, resp *Response, err error) {
	f.inFlight.Add(-1)
	req.settle(resp, err)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. Missing, invalid, or past values yield zero.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}

	if d <= 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}
