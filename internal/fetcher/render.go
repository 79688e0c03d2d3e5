package fetcher

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stockleads/internal/config"
	"github.com/sells-group/stockleads/internal/model"
)

// RenderRequest describes one headless render.
type RenderRequest struct {
	URL       string
	UserAgent string
	Headers   map[string]string
	Wait      model.WaitStrategy
	Settle    time.Duration
}

// Renderer returns the fully rendered DOM of a page. Implementations must
// honor ctx cancellation and deadlines.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
	Close()
}

// ChromeRenderer renders pages with a shared headless Chrome, one tab per
// call. The browser starts on first use.
type ChromeRenderer struct {
	cfg       config.RenderConfig
	semaphore chan struct{}

	once          sync.Once
	startErr      error
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeRenderer creates a renderer limited to cfg.MaxTabs concurrent tabs.
func NewChromeRenderer(cfg config.RenderConfig) *ChromeRenderer {
	if cfg.MaxTabs < 1 {
		cfg.MaxTabs = 2
	}
	return &ChromeRenderer{
		cfg:       cfg,
		semaphore: make(chan struct{}, cfg.MaxTabs),
	}
}

func (r *ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("window-size", "1920,1080"),
	)
	if r.cfg.ExecPath != "" {
		return append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	for _, p := range []string{
		"/headless-shell/headless-shell",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/google-chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return append(opts, chromedp.ExecPath(p))
		}
	}
	return opts
}

func (r *ChromeRenderer) start() error {
	r.once.Do(func() {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), r.allocatorOptions()...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			r.startErr = eris.Wrap(err, "fetcher: start browser")
			return
		}
		r.allocCancel = allocCancel
		r.browserCtx = browserCtx
		r.browserCancel = browserCancel
		zap.L().Info("fetcher: headless browser started", zap.Int("max_tabs", r.cfg.MaxTabs))
	})
	return r.startErr
}

// Render navigates a fresh tab to req.URL, waits for the content-ready
// condition and returns the outer HTML.
func (r *ChromeRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	if err := r.start(); err != nil {
		return "", err
	}

	select {
	case r.semaphore <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-r.semaphore }()

	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
	defer tabCancel()

	// Tie the tab to the caller's deadline and cancellation.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}

	headers := network.Headers{"Accept-Language": "en-IN,en;q=0.9"}
	for k, v := range req.Headers {
		headers[k] = v
	}

	var html string
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(req.UserAgent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(headers).Do(ctx)
		}),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if req.Wait.Selector != "" {
		tasks = append(tasks, chromedp.WaitVisible(req.Wait.Selector, chromedp.ByQuery))
	} else if req.Settle > 0 {
		tasks = append(tasks, chromedp.Sleep(req.Settle))
	}
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if tabCtx.Err() == context.DeadlineExceeded {
			return "", context.DeadlineExceeded
		}
		return "", eris.Wrapf(err, "fetcher: render %s", req.URL)
	}
	return html, nil
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
}
