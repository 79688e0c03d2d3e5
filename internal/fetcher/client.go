// Package fetcher retrieves source pages while evading naive bot detection:
// rotating identities, jittered delays, per-host throttling and bounded retries.
package fetcher

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
	"github.com/sells-group/stockleads/internal/resilience"
)

var (
	// ErrBlocked marks an anti-bot response.
	ErrBlocked = eris.New("fetcher: blocked")
	// ErrEmptyBody marks a 2xx response or render with no content.
	ErrEmptyBody = eris.New("fetcher: empty body")
)

// PageCache stores successfully fetched page content by URL.
type PageCache interface {
	GetPage(ctx context.Context, url string) (string, bool, error)
	SetPage(ctx context.Context, url, content string) error
}

// Request is one fetch. Zero values fall back to client defaults.
type Request struct {
	URL        string
	Mode       model.RenderMode
	Headers    map[string]string
	Wait       model.WaitStrategy
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxRetries *int
	CacheBust  bool
}

// Options configures a Client.
type Options struct {
	HTTPClient    *http.Client
	Renderer      Renderer
	Identities    *IdentityPool
	Throttle      *HostThrottle
	Breakers      *resilience.HostBreakers
	Detector      *BlockDetector
	Cache         PageCache
	Retry         resilience.RetryConfig
	MinDelay      time.Duration
	MaxDelay      time.Duration
	RenderSettle  time.Duration
	RenderTimeout time.Duration

	// Sleep replaces the context-aware sleep, for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig builds client options from configuration. Renderer,
// identities, throttle and cache are supplied by the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// Session cookies from a source's warm-up page ride along on its
	// later requests.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return Options{
		HTTPClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		Breakers:      resilience.NewHostBreakers(resilience.FromCircuitConfig(cfg.Fetch.Circuit.FailureThreshold, cfg.Fetch.Circuit.ResetTimeoutSecs)),
		Detector:      NewBlockDetector(cfg.Fetch.Block),
		Retry:         resilience.FromRetryConfig(cfg.Fetch.MaxRetries, cfg.Fetch.InitialBackoffMS, cfg.Fetch.MaxBackoffMS, cfg.Fetch.JitterFraction),
		MinDelay:      time.Duration(cfg.Fetch.MinDelayMS) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.Fetch.MaxDelayMS) * time.Millisecond,
		RenderSettle:  time.Duration(cfg.Render.SettleMS) * time.Millisecond,
		RenderTimeout: time.Duration(cfg.Render.TimeoutSecs) * time.Second,
	}
}

// Client fetches pages. It holds no per-request state; everything mutable
// lives in the shared identity pool, throttle and breakers.
type Client struct {
	opts Options
}

// NewClient creates a Client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Identities == nil {
		opts.Identities = NewIdentityPool(config.DefaultUserAgents, 0)
	}
	if opts.Detector == nil {
		opts.Detector = NewBlockDetector(config.BlockConfig{MinBodyBytes: 500})
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = 45 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = resilience.Sleep
	}
	return &Client{opts: opts}
}

type fetchState int

const (
	stateAttempting fetchState = iota
	stateSuccess
	stateRetry
	stateBlockedRotate
	stateGiveUp
)

// attemptOutcome is the result of a single network or render attempt. err is
// a *resilience.TransientError when the attempt may be retried.
type attemptOutcome struct {
	status    model.FetchStatus
	code      int
	content   string
	reason    string
	err       error
	cancelled bool
}

// Fetch retrieves req.URL. It never returns an error: every failure is a
// FetchResult status. A BLOCKED response rotates identity and is retried at
// most once; transient failures are retried up to the configured limit; a
// render timeout is retried once with a doubled wait.
func (c *Client) Fetch(ctx context.Context, req Request) *model.FetchResult {
	start := time.Now()
	res := &model.FetchResult{URL: req.URL}
	log := zap.L().With(zap.String("url", req.URL), zap.String("mode", string(req.Mode)))

	if c.opts.Cache != nil {
		if content, ok, err := c.opts.Cache.GetPage(ctx, req.URL); err != nil {
			log.Debug("fetcher: cache lookup failed", zap.Error(err))
		} else if ok {
			res.Status = model.StatusOK
			res.Content = content
			res.FromCache = true
			return res
		}
	}

	host := hostOf(req.URL)
	if c.opts.Breakers != nil && !c.opts.Breakers.Allow(host) {
		res.Status = model.StatusHTTPError
		res.Err = "circuit open for " + host
		res.Elapsed = time.Since(start)
		log.Warn("fetcher: circuit open, skipping")
		return res
	}

	maxRetries := c.opts.Retry.MaxAttempts - 1
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		maxRetries = *req.MaxRetries
	}

	id := c.opts.Identities.Pick()
	renderTimeout := req.Wait.Timeout(c.opts.RenderTimeout)
	retries := 0
	renderRetried := false
	var out attemptOutcome

	state := stateAttempting
	for state != stateSuccess && state != stateGiveUp {
		switch state {
		case stateAttempting:
			if err := c.politeWait(ctx, req); err != nil {
				out = attemptOutcome{status: model.StatusTimeout, err: err, cancelled: true}
				state = stateGiveUp
				continue
			}
			res.Attempts++
			out = c.attempt(ctx, req, id, renderTimeout, res.Attempts > 1)
			log.Debug("fetcher: attempt finished",
				zap.Int("attempt", res.Attempts),
				zap.String("status", string(out.status)),
				zap.Int("code", out.code),
				zap.Int("identity", id.Index),
			)

			switch {
			case out.status == model.StatusOK:
				state = stateSuccess
			case out.cancelled || ctx.Err() != nil:
				out.status = model.StatusTimeout
				state = stateGiveUp
			case out.status == model.StatusBlocked:
				if res.Rotations < 1 {
					state = stateBlockedRotate
				} else {
					state = stateGiveUp
				}
			case out.status == model.StatusTimeout && req.Mode == model.ModeRendered:
				if !renderRetried {
					renderRetried = true
					renderTimeout *= 2
					state = stateRetry
				} else {
					state = stateGiveUp
				}
			case resilience.IsTransient(out.err) && retries < maxRetries:
				retries++
				state = stateRetry
			default:
				state = stateGiveUp
			}

		case stateRetry:
			delay := resilience.Backoff(max(retries-1, 0), c.opts.Retry)
			if err := c.opts.Sleep(ctx, delay); err != nil {
				out = attemptOutcome{status: model.StatusTimeout, err: err, cancelled: true}
				state = stateGiveUp
				continue
			}
			state = stateAttempting

		case stateBlockedRotate:
			res.Rotations++
			prev := id
			id = c.opts.Identities.Rotate(id)
			log.Info("fetcher: blocked, rotating identity",
				zap.String("reason", out.reason),
				zap.Int("from", prev.Index),
				zap.Int("to", id.Index),
			)
			state = stateAttempting
		}
	}

	res.Status = out.status
	res.StatusCode = out.code
	if out.status == model.StatusBlocked {
		res.BlockReason = out.reason
	}
	if out.err != nil {
		res.Err = out.err.Error()
	}
	res.Elapsed = time.Since(start)

	if c.opts.Breakers != nil && !out.cancelled {
		c.opts.Breakers.Record(host, out.status == model.StatusOK || out.status == model.StatusBlocked)
	}

	if out.status == model.StatusOK {
		res.Content = out.content
		if c.opts.Cache != nil {
			if err := c.opts.Cache.SetPage(ctx, req.URL, out.content); err != nil {
				log.Debug("fetcher: cache store failed", zap.Error(err))
			}
		}
	} else {
		log.Warn("fetcher: giving up",
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
			zap.Int("rotations", res.Rotations),
			zap.String("reason", out.reason),
		)
	}
	return res
}

// politeWait applies the randomized inter-request delay and the per-host
// minimum interval.
func (c *Client) politeWait(ctx context.Context, req Request) error {
	lo, hi := c.opts.MinDelay, c.opts.MaxDelay
	if req.MinDelay > 0 || req.MaxDelay > 0 {
		lo, hi = req.MinDelay, req.MaxDelay
	}
	if d := c.opts.Identities.Jitter(lo, hi); d > 0 {
		if err := c.opts.Sleep(ctx, d); err != nil {
			return err
		}
	}
	if c.opts.Throttle != nil {
		return c.opts.Throttle.Wait(ctx, req.URL)
	}
	return ctx.Err()
}

func (c *Client) attempt(ctx context.Context, req Request, id Identity, renderTimeout time.Duration, retry bool) attemptOutcome {
	if req.Mode == model.ModeRendered {
		return c.render(ctx, req, id, renderTimeout)
	}
	target := req.URL
	if retry && req.CacheBust {
		target = cacheBust(target)
	}
	return c.get(ctx, target, req.Headers, id)
}

func (c *Client) get(ctx context.Context, target string, headers map[string]string, id Identity) attemptOutcome {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return attemptOutcome{status: model.StatusHTTPError, err: eris.Wrap(err, "fetcher: build request")}
	}
	httpReq.Header.Set("User-Agent", id.UserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-IN,en;q=0.9")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{status: model.StatusTimeout, err: ctx.Err(), cancelled: true}
		}
		status := model.StatusHTTPError
		if resilience.IsTimeout(err) {
			status = model.StatusTimeout
		}
		return attemptOutcome{status: status, err: resilience.NewTransientError(eris.Wrap(err, "fetcher: request"), 0)}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := readBody(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{status: model.StatusTimeout, code: resp.StatusCode, err: ctx.Err(), cancelled: true}
		}
		return attemptOutcome{status: model.StatusHTTPError, code: resp.StatusCode, err: resilience.NewTransientError(err, resp.StatusCode)}
	}

	if kind, reason := c.opts.Detector.Detect(resp.StatusCode, resp.Header, body); kind != BlockNone {
		if c.opts.Throttle != nil {
			c.opts.Throttle.OnRateLimit(target)
		}
		return attemptOutcome{status: model.StatusBlocked, code: resp.StatusCode, reason: reason, err: ErrBlocked}
	}

	if resp.StatusCode >= 400 {
		var err error = eris.Errorf("fetcher: http %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			err = resilience.NewTransientError(err, resp.StatusCode)
		}
		return attemptOutcome{status: model.StatusHTTPError, code: resp.StatusCode, err: err}
	}

	if strings.TrimSpace(body) == "" {
		return attemptOutcome{
			status: model.StatusEmpty,
			code:   resp.StatusCode,
			reason: "empty body",
			err:    resilience.NewTransientError(ErrEmptyBody, resp.StatusCode),
		}
	}

	if c.opts.Throttle != nil {
		c.opts.Throttle.OnSuccess(target)
	}
	return attemptOutcome{status: model.StatusOK, code: resp.StatusCode, content: body}
}

func (c *Client) render(ctx context.Context, req Request, id Identity, timeout time.Duration) attemptOutcome {
	if c.opts.Renderer == nil {
		return attemptOutcome{status: model.StatusHTTPError, err: eris.New("fetcher: no renderer configured")}
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	html, err := c.opts.Renderer.Render(rctx, RenderRequest{
		URL:       req.URL,
		UserAgent: id.UserAgent,
		Headers:   req.Headers,
		Wait:      req.Wait,
		Settle:    req.Wait.Settle(c.opts.RenderSettle),
	})
	if err != nil {
		if ctx.Err() != nil {
			return attemptOutcome{status: model.StatusTimeout, err: ctx.Err(), cancelled: true}
		}
		if resilience.IsTimeout(err) {
			return attemptOutcome{status: model.StatusTimeout, err: err}
		}
		return attemptOutcome{status: model.StatusHTTPError, err: resilience.NewTransientError(eris.Wrap(err, "fetcher: render"), 0)}
	}

	if kind, reason := c.opts.Detector.Detect(0, nil, html); kind != BlockNone {
		return attemptOutcome{status: model.StatusBlocked, reason: reason, err: ErrBlocked}
	}
	if strings.TrimSpace(html) == "" {
		return attemptOutcome{status: model.StatusEmpty, reason: "empty render", err: resilience.NewTransientError(ErrEmptyBody, 0)}
	}
	return attemptOutcome{status: model.StatusOK, content: html}
}

// cacheBust appends a throwaway query parameter so intermediaries do not
// serve a cached block page.
func cacheBust(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}
