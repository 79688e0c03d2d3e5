package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/resilience"
)

var testAgents = []string{"agent-a", "agent-b", "agent-c"}

func cleanPage() string {
	return "<html><head><title>Trade Ideas</title></head><body>" +
		strings.Repeat("<p>Buy TATASTEEL at 120.50 target 135.00</p>", 5) +
		"</body></html>"
}

func captchaPage() string {
	return "<html><head><title>Attention</title></head><body>Please solve the CAPTCHA to continue</body></html>"
}

func newTestClient(t *testing.T, mutate func(*Options)) *Client {
	t.Helper()
	opts := Options{
		Identities: NewIdentityPool(testAgents, 42),
		Detector:   NewBlockDetector(config.BlockConfig{MinBodyBytes: 50, Markers: []string{"captcha", "are you a robot"}}),
		Retry:      resilience.RetryConfig{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Sleep:      func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewClient(opts)
}

func TestFetch_StaticOK(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "https://example.com/", r.Header.Get("Referer"))
		_, _ = w.Write([]byte(cleanPage()))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{
		URL:     srv.URL,
		Mode:    model.ModeStatic,
		Headers: map[string]string{"Referer": "https://example.com/"},
	})

	assert.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 0, res.Rotations)
	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, res.Content, "TATASTEEL")
	assert.Contains(t, testAgents, gotUA)
}

func TestFetch_BlockedThenRotatedOK(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(captchaPage()))
			return
		}
		_, _ = w.Write([]byte(cleanPage()))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Rotations)
	require.Len(t, agents, 2)
	assert.NotEqual(t, agents[0], agents[1], "identity must rotate after a block")
}

func TestFetch_BlockedTwiceGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(cleanPage()))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusBlocked, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Rotations)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "http 403", res.BlockReason)
	assert.Empty(t, res.Content)
}

func TestFetch_BlockedAfterTransientStillRotatesOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte(captchaPage()))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusBlocked, res.Status)
	assert.Equal(t, 1, res.Rotations)
	assert.Equal(t, 3, res.Attempts)
}

func TestFetch_TransientRetriesThenOK(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(cleanPage()))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 0, res.Rotations)
}

func TestFetch_TransientExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	retries := 2
	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic, MaxRetries: &retries})

	assert.Equal(t, model.StatusHTTPError, res.Status)
	assert.Equal(t, 500, res.StatusCode)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_ShortServerErrorIsTransientNotBlocked(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, func(o *Options) {
		o.Detector = NewBlockDetector(config.BlockConfig{MinBodyBytes: 500, Markers: config.DefaultBlockMarkers})
	})
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusHTTPError, res.Status)
	assert.Equal(t, 503, res.StatusCode)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 0, res.Rotations)
	assert.Empty(t, res.BlockReason)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(cleanPage()))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusHTTPError, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestFetch_EmptyBodyRetriedThenEmpty(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("   "))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusEmpty, res.Status)
	assert.Equal(t, 4, res.Attempts)
}

func TestFetch_NetworkErrorIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	retries := 1
	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: addr, Mode: model.ModeStatic, MaxRetries: &retries})

	assert.Equal(t, model.StatusHTTPError, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.NotEmpty(t, res.Err)
}

func TestFetch_CancelledContextIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := newTestClient(t, nil)
	res := c.Fetch(ctx, Request{URL: srv.URL, Mode: model.ModeStatic})

	assert.Equal(t, model.StatusTimeout, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

func TestFetch_CacheBustOnRetry(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		n := len(queries)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(cleanPage()))
	}))
	defer srv.Close()

	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: srv.URL + "/ideas?page=1", Mode: model.ModeStatic, CacheBust: true})

	require.Equal(t, model.StatusOK, res.Status)
	require.Len(t, queries, 2)
	assert.Equal(t, "page=1", queries[0])
	assert.Contains(t, queries[1], "page=1")
	assert.Contains(t, queries[1], "_=")
}

type fakeRenderer struct {
	mu       sync.Mutex
	calls    int
	timeouts []time.Duration
	results  []renderResult
}

type renderResult struct {
	html string
	err  error
}

func (f *fakeRenderer) Render(ctx context.Context, _ RenderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		f.timeouts = append(f.timeouts, time.Until(dl))
	}
	r := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	return r.html, r.err
}

func (f *fakeRenderer) Close() {}

func TestFetch_RenderedOK(t *testing.T) {
	r := &fakeRenderer{results: []renderResult{{html: cleanPage()}}}
	c := newTestClient(t, func(o *Options) { o.Renderer = r })

	res := c.Fetch(context.Background(), Request{URL: "https://ideas.example/rendered", Mode: model.ModeRendered})
	assert.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Content, "TATASTEEL")
}

func TestFetch_RenderTimeoutRetriedOnceWithLongerWait(t *testing.T) {
	r := &fakeRenderer{results: []renderResult{
		{err: context.DeadlineExceeded},
		{html: cleanPage()},
	}}
	c := newTestClient(t, func(o *Options) {
		o.Renderer = r
		o.RenderTimeout = 10 * time.Second
	})

	res := c.Fetch(context.Background(), Request{URL: "https://ideas.example/rendered", Mode: model.ModeRendered})
	assert.Equal(t, model.StatusOK, res.Status)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, r.timeouts, 2)
	assert.Greater(t, r.timeouts[1], r.timeouts[0]+5*time.Second)
}

func TestFetch_RenderTimeoutTwiceGivesUp(t *testing.T) {
	r := &fakeRenderer{results: []renderResult{{err: context.DeadlineExceeded}}}
	c := newTestClient(t, func(o *Options) { o.Renderer = r })

	res := c.Fetch(context.Background(), Request{URL: "https://ideas.example/rendered", Mode: model.ModeRendered})
	assert.Equal(t, model.StatusTimeout, res.Status)
	assert.Equal(t, 2, res.Attempts)
}

func TestFetch_RenderedBlocked(t *testing.T) {
	r := &fakeRenderer{results: []renderResult{{html: captchaPage()}}}
	c := newTestClient(t, func(o *Options) { o.Renderer = r })

	res := c.Fetch(context.Background(), Request{URL: "https://ideas.example/rendered", Mode: model.ModeRendered})
	assert.Equal(t, model.StatusBlocked, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, res.Rotations)
	assert.Equal(t, "captcha", res.BlockReason)
}

func TestFetch_RenderedWithoutRenderer(t *testing.T) {
	c := newTestClient(t, nil)
	res := c.Fetch(context.Background(), Request{URL: "https://ideas.example/rendered", Mode: model.ModeRendered})
	assert.Equal(t, model.StatusHTTPError, res.Status)
	assert.Equal(t, 1, res.Attempts)
}

type memCache struct {
	mu    sync.Mutex
	pages map[string]string
}

func (m *memCache) GetPage(_ context.Context, url string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[url]
	return p, ok, nil
}

func (m *memCache) SetPage(_ context.Context, url, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[url] = content
	return nil
}

func TestFetch_CacheStoresAndServes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(cleanPage()))
	}))
	defer srv.Close()

	cache := &memCache{pages: map[string]string{}}
	c := newTestClient(t, func(o *Options) { o.Cache = cache })

	first := c.Fetch(context.Background(), Request{URL: srv.URL})
	require.Equal(t, model.StatusOK, first.Status)
	assert.False(t, first.FromCache)

	second := c.Fetch(context.Background(), Request{URL: srv.URL})
	assert.Equal(t, model.StatusOK, second.Status)
	assert.True(t, second.FromCache)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_CircuitOpenSkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	breakers := resilience.NewHostBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	c := newTestClient(t, func(o *Options) { o.Breakers = breakers })

	first := c.Fetch(context.Background(), Request{URL: srv.URL})
	assert.Equal(t, model.StatusHTTPError, first.Status)

	second := c.Fetch(context.Background(), Request{URL: srv.URL})
	assert.Equal(t, model.StatusHTTPError, second.Status)
	assert.Equal(t, 0, second.Attempts)
	assert.Contains(t, second.Err, "circuit open")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Fetch.MaxRetries = 2
	cfg.Fetch.MinDelayMS = 100
	cfg.Fetch.MaxDelayMS = 300
	cfg.Fetch.TimeoutSecs = 5
	cfg.Render.TimeoutSecs = 20

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.MinDelay)
	assert.Equal(t, 300*time.Millisecond, opts.MaxDelay)
	assert.Equal(t, 5*time.Second, opts.HTTPClient.Timeout)
	assert.NotNil(t, opts.HTTPClient.Jar)
	assert.Equal(t, 20*time.Second, opts.RenderTimeout)
	assert.NotNil(t, opts.Breakers)
	assert.NotNil(t, opts.Detector)
}
