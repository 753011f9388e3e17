// Package fetch performs JSON reads through a response cache.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"cruscotto/internal/cache"
)

var (
	// ErrRequestFailed marks a non-2xx response. Failed responses are never cached.
	ErrRequestFailed = errors.New("request failed")
	// ErrDecodeFailed marks a response body that is not valid JSON for the target type.
	ErrDecodeFailed = errors.New("decode failed")
)

// RequestError carries the status of a failed request.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.URL, e.StatusCode, ErrRequestFailed)
}

func (e *RequestError) Unwrap() error { return ErrRequestFailed }

// Options describe the outbound request. The zero value is a plain GET.
type Options struct {
	Method string
	Header http.Header
	// Body is encoded as JSON when non-nil.
	Body any
}

func (o Options) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// Fingerprint derives the cache key for a request. It is a stable
// serialization of method, URL, headers (sorted) and JSON body.
func Fingerprint(rawURL string, opts Options) string {
	var b strings.Builder
	b.WriteString(opts.method())
	b.WriteByte(' ')
	b.WriteString(rawURL)

	if len(opts.Header) > 0 {
		names := make([]string, 0, len(opts.Header))
		for name := range opts.Header {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString("|")
			b.WriteString(http.CanonicalHeaderKey(name))
			b.WriteByte('=')
			b.WriteString(strings.Join(opts.Header[name], ","))
		}
	}

	if opts.Body != nil {
		// encoding/json sorts map keys, so equal bodies serialize equally.
		if body, err := json.Marshal(opts.Body); err == nil {
			b.WriteString("|")
			b.Write(body)
		}
	}
	return b.String()
}

const defaultTimeout = 15 * time.Second

// Fetcher reads JSON payloads of type T through a ResponseCache.
type Fetcher[T any] struct {
	client  *http.Client
	cache   *cache.ResponseCache[T]
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// Config configures a Fetcher. Client defaults to NewHTTPClient(Timeout).
// A Client without a timeout is copied and given one, since requests are
// not bound to the caller's context.
type Config struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
	TTL     time.Duration
	Logger  *slog.Logger
}

// New creates a Fetcher backed by c.
func New[T any](c *cache.ResponseCache[T], cfg Config) *Fetcher[T] {
	client := cfg.Client
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	} else if client.Timeout <= 0 {
		c := *client
		c.Timeout = cfg.Timeout
		if c.Timeout <= 0 {
			c.Timeout = defaultTimeout
		}
		client = &c
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher[T]{
		client:  client,
		cache:   c,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ttl:     cfg.TTL,
		logger:  logger,
	}
}

// NewHTTPClient returns a client with connection pooling and an overall
// request timeout. A non-positive timeout falls back to 15 seconds.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Cache returns the backing cache.
func (f *Fetcher[T]) Cache() *cache.ResponseCache[T] {
	return f.cache
}

// Counters returns the number of cache hits and misses served so far.
func (f *Fetcher[T]) Counters() (hits, misses int64) {
	return f.hits.Load(), f.misses.Load()
}

// FetchThrough returns the cached payload for (url, opts) or performs the
// request, caching a successful decode for ttl. A non-positive ttl uses
// the fetcher's TTL, then the cache default. Concurrent misses for the
// same fingerprint share a single request.
//
// The request is detached from ctx and bounded by the client timeout: a
// caller whose ctx ends gets ctx.Err() at once, while the request keeps
// running for the other callers and its result is still cached. A result
// is not cached if the cache was cleared, or its key deleted, while the
// request was in flight.
//
// Returned values are shared with the cache and must not be modified.
func (f *Fetcher[T]) FetchThrough(ctx context.Context, rawURL string, opts Options, ttl time.Duration) (T, error) {
	var zero T
	target := f.resolve(rawURL)
	key := Fingerprint(target, opts)

	if v, ok := f.cache.Get(key); ok {
		f.hits.Add(1)
		f.logger.DebugContext(ctx, "Fetch cache hit", "key", key)
		return v, nil
	}

	if ttl <= 0 {
		ttl = f.ttl
	}

	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(key, func() (any, error) {
		f.misses.Add(1)
		gen := f.cache.Generation()
		payload, err := f.do(detached, target, opts)
		if err != nil {
			return nil, err
		}
		if !f.cache.SetIfGeneration(key, payload, ttl, gen) {
			f.logger.DebugContext(detached, "Fetch result invalidated while in flight", "key", key)
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			f.logger.DebugContext(ctx, "Fetch result shared with concurrent caller", "key", key)
		}
		return res.Val.(T), nil
	}
}

func (f *Fetcher[T]) do(ctx context.Context, target string, opts Options) (T, error) {
	var zero T

	var body io.Reader
	if opts.Body != nil {
		buf, err := json.Marshal(opts.Body)
		if err != nil {
			return zero, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	method := opts.method()
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return zero, fmt.Errorf("build request %s %s: %w", method, target, err)
	}
	for name, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	f.logger.DebugContext(ctx, "Fetch completed",
		"method", method,
		"url", target,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return zero, &RequestError{Method: method, URL: target, StatusCode: resp.StatusCode}
	}

	var payload T
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return zero, fmt.Errorf("%s %s: %w: %v", method, target, ErrDecodeFailed, err)
	}
	return payload, nil
}

// resolve joins relative paths onto the base URL. Absolute URLs pass through.
func (f *Fetcher[T]) resolve(rawURL string) string {
	if f.baseURL == "" {
		return rawURL
	}
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() {
		return rawURL
	}
	if !strings.HasPrefix(rawURL, "/") {
		rawURL = "/" + rawURL
	}
	return f.baseURL + rawURL
}
