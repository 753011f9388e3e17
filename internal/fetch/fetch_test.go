package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cruscotto/internal/cache"
)

type payload struct {
	Items []string `json:"items"`
}

func newCountingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("/x", Options{})
	b := Fingerprint("/x", Options{Method: "get"})
	if a != b {
		t.Fatalf("default method should be GET: %q vs %q", a, b)
	}

	h1 := http.Header{"X-B": {"2"}, "X-A": {"1"}}
	h2 := http.Header{"X-A": {"1"}, "X-B": {"2"}}
	if Fingerprint("/x", Options{Header: h1}) != Fingerprint("/x", Options{Header: h2}) {
		t.Fatal("header order must not change the fingerprint")
	}

	body1 := map[string]any{"from": "2024-01-01", "to": "2024-02-01"}
	body2 := map[string]any{"to": "2024-02-01", "from": "2024-01-01"}
	if Fingerprint("/x", Options{Method: "POST", Body: body1}) != Fingerprint("/x", Options{Method: "POST", Body: body2}) {
		t.Fatal("map key order must not change the fingerprint")
	}

	distinct := []string{
		Fingerprint("/x", Options{}),
		Fingerprint("/y", Options{}),
		Fingerprint("/x", Options{Method: http.MethodPost}),
		Fingerprint("/x", Options{Header: http.Header{"X-A": {"1"}}}),
		Fingerprint("/x", Options{Method: http.MethodPost, Body: body1}),
	}
	seen := map[string]bool{}
	for _, fp := range distinct {
		if seen[fp] {
			t.Fatalf("fingerprint collision: %q", fp)
		}
		seen[fp] = true
	}
}

func TestFetchThroughMissThenHit(t *testing.T) {
	srv, calls := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(payload{Items: []string{"a", "b"}})
	})

	f := New(cache.NewResponseCache[payload](), Config{BaseURL: srv.URL})
	ctx := context.Background()

	first, err := f.FetchThrough(ctx, "/x", Options{}, time.Minute)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("first fetch made %d calls, want 1", calls.Load())
	}

	second, err := f.FetchThrough(ctx, "/x", Options{}, time.Minute)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("second fetch within ttl made a network call (total %d)", calls.Load())
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("payloads differ: %+v vs %+v", first, second)
	}

	hits, misses := f.Counters()
	if hits != 1 || misses != 1 {
		t.Fatalf("counters = %d hits, %d misses", hits, misses)
	}
}

func TestFetchThroughRefetchesAfterExpiry(t *testing.T) {
	srv, calls := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":["a"]}`)
	})

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := New(cache.NewResponseCache[payload](cache.WithClock(clock)), Config{BaseURL: srv.URL})

	if _, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2 after expiry", calls.Load())
	}
}

func TestFetchThroughRequestFailedNotCached(t *testing.T) {
	srv, calls := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	c := cache.NewResponseCache[payload]()
	f := New(c, Config{BaseURL: srv.URL})

	for i := 0; i < 2; i++ {
		_, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute)
		if !errors.Is(err, ErrRequestFailed) {
			t.Fatalf("err = %v, want ErrRequestFailed", err)
		}
		var reqErr *RequestError
		if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusInternalServerError {
			t.Fatalf("err = %#v, want RequestError with status 500", err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("failures must not be cached nor retried: calls = %d", calls.Load())
	}
	if c.Len() != 0 {
		t.Fatalf("cache size = %d after failures", c.Len())
	}
}

func TestFetchThroughDecodeFailed(t *testing.T) {
	srv, _ := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not json</html>")
	})

	c := cache.NewResponseCache[payload]()
	f := New(c, Config{BaseURL: srv.URL})

	_, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("err = %v, want ErrDecodeFailed", err)
	}
	if c.Len() != 0 {
		t.Fatal("decode failures must not be cached")
	}
}

func TestFetchThroughPostBodyAndHeaders(t *testing.T) {
	var gotMethod, gotAuth, gotType string
	var gotBody map[string]string
	srv, _ := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, `{"items":[]}`)
	})

	f := New(cache.NewResponseCache[payload](), Config{BaseURL: srv.URL + "/"})
	_, err := f.FetchThrough(context.Background(), "stats", Options{
		Method: http.MethodPost,
		Header: http.Header{"Authorization": {"Bearer t"}},
		Body:   map[string]string{"range": "month"},
	}, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotMethod != http.MethodPost || gotAuth != "Bearer t" || gotType != "application/json" {
		t.Fatalf("request = %s auth=%q type=%q", gotMethod, gotAuth, gotType)
	}
	if gotBody["range"] != "month" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestFetchThroughConcurrentMissesShareRequest(t *testing.T) {
	release := make(chan struct{})
	srv, calls := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = io.WriteString(w, `{"items":["shared"]}`)
	})

	f := New(cache.NewResponseCache[payload](), Config{BaseURL: srv.URL})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute)
			errs <- err
		}()
	}

	// Give the goroutines time to pile up on the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchThroughAbsoluteURLBypassesBase(t *testing.T) {
	srv, calls := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"items":[]}`)
	})

	f := New(cache.NewResponseCache[payload](), Config{BaseURL: "http://unused.invalid"})
	if _, err := f.FetchThrough(context.Background(), srv.URL+"/abs", Options{}, 0); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestFetchThroughTimeout(t *testing.T) {
	srv, _ := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	f := New(cache.NewResponseCache[payload](), Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := f.FetchThrough(context.Background(), "/slow", Options{}, 0)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if errors.Is(err, ErrRequestFailed) || errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("transport error misclassified: %v", err)
	}
}

// blockingServer holds every request until release is closed and signals
// started for the first one.
func blockingServer(t *testing.T) (srv *httptest.Server, calls *atomic.Int32, started <-chan struct{}, release chan struct{}) {
	t.Helper()
	s := make(chan struct{}, 1)
	release = make(chan struct{})
	srv, calls = newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case s <- struct{}{}:
		default:
		}
		<-release
		_, _ = io.WriteString(w, `{"items":["late"]}`)
	})
	return srv, calls, s, release
}

func TestFetchThroughCancelledCallerDoesNotFailOthers(t *testing.T) {
	srv, calls, started, release := blockingServer(t)
	f := New(cache.NewResponseCache[payload](), Config{BaseURL: srv.URL})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.FetchThrough(ctxA, "/x", Options{}, time.Minute)
		errA <- err
	}()
	<-started

	type result struct {
		p   payload
		err error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute)
		resB <- result{p, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	b := <-resB
	if b.err != nil {
		t.Fatalf("live caller err = %v", b.err)
	}
	if !reflect.DeepEqual(b.p.Items, []string{"late"}) {
		t.Fatalf("live caller payload = %+v", b.p)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchThroughAbandonedResultIsCached(t *testing.T) {
	srv, calls, started, release := blockingServer(t)
	rc := cache.NewResponseCache[payload]()
	f := New(rc, Config{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.FetchThrough(ctx, "/x", Options{}, time.Minute)
		done <- err
	}()
	<-started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for rc.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("abandoned response was never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute)
	if err != nil || !reflect.DeepEqual(got.Items, []string{"late"}) {
		t.Fatalf("got %+v, %v", got, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchThroughClearDuringRequestDropsResult(t *testing.T) {
	srv, calls, started, release := blockingServer(t)
	rc := cache.NewResponseCache[payload]()
	f := New(rc, Config{BaseURL: srv.URL})

	done := make(chan error, 1)
	go func() {
		_, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute)
		done <- err
	}()
	<-started
	rc.Clear()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("in-flight caller err = %v", err)
	}
	if rc.Len() != 0 {
		t.Fatalf("result from before Clear was cached: %v", rc.Stats().Keys)
	}

	if _, err := f.FetchThrough(context.Background(), "/x", Options{}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 || rc.Len() != 1 {
		t.Fatalf("calls = %d size = %d, want a fresh request that is cached", calls.Load(), rc.Len())
	}
}

func TestNewGivesSuppliedClientATimeout(t *testing.T) {
	bare := &http.Client{}
	f := New(cache.NewResponseCache[payload](), Config{Client: bare, Timeout: time.Second})
	if f.client == bare || f.client.Timeout != time.Second {
		t.Fatalf("client timeout = %v", f.client.Timeout)
	}
	if bare.Timeout != 0 {
		t.Fatal("caller's client must not be modified")
	}
}
