// Package headless renders pages in headless Chrome and reads the browser's
// navigation timings for the performance section of a report.
package headless

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/auditsnap/internal/fetcher"
)

const timingScript = `(() => {
  const nav = performance.getEntriesByType("navigation")[0] || {};
  const paint = performance.getEntriesByName("first-contentful-paint")[0] ||
    performance.getEntriesByType("paint")[0];
  return {
    ttfb: nav.responseStart || 0,
    firstPaint: paint ? paint.startTime : 0,
    domContentLoaded: nav.domContentLoadedEventEnd || 0,
    load: nav.loadEventEnd || 0,
  };
})()`

type navTimings struct {
	TTFB             float64 `json:"ttfb"`
	FirstPaint       float64 `json:"firstPaint"`
	DOMContentLoaded float64 `json:"domContentLoaded"`
	Load             float64 `json:"load"`
}

func (n navTimings) toTimings() *fetcher.Timings {
	return &fetcher.Timings{
		TTFB:             msToDuration(n.TTFB),
		FirstPaint:       msToDuration(n.FirstPaint),
		DOMContentLoaded: msToDuration(n.DOMContentLoaded),
		Load:             msToDuration(n.Load),
	}
}

func msToDuration(ms float64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Config tunes the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

const defaultNavigationTimeout = 45 * time.Second

// Fetcher renders pages in a shared headless Chrome allocator.
type Fetcher struct {
	cfg         Config
	tabs        chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp starts an exec allocator. Chrome itself is only launched on the
// first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.tabs = make(chan struct{}, cfg.MaxParallel)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch loads request.URL, waits for the body and returns the rendered DOM
// together with the navigation timings the page recorded.
func (f *Fetcher) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	if err := f.openTab(ctx); err != nil {
		return fetcher.Response{}, err
	}
	defer f.closeTab()

	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.timeout())
	defer cancel()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.listen)

	var (
		html     string
		finalURL string
		timings  navTimings
	)
	start := time.Now()
	err := chromedp.Run(tabCtx,
		f.prepare(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(timingScript, &timings),
	)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	resp := doc.result(request.URL, finalURL)
	resp.Body = []byte(html)
	resp.Duration = time.Since(start)
	resp.Rendered = true
	resp.Timings = timings.toTimings()
	return resp, nil
}

func (f *Fetcher) prepare(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("user agent: %w", err)
			}
		}
		if len(headers) == 0 {
			return nil
		}
		extra := network.Headers{}
		for key := range headers {
			extra[key] = headers.Get(key)
		}
		if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
			return fmt.Errorf("extra headers: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) openTab(ctx context.Context) error {
	if f.tabs == nil {
		return nil
	}
	select {
	case f.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for browser tab: %w", ctx.Err())
	}
}

func (f *Fetcher) closeTab() {
	if f.tabs != nil {
		<-f.tabs
	}
}

func (f *Fetcher) timeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// documentResponse keeps the last top-level document response seen by the
// tab. Listener callbacks run on chromedp's event goroutine.
type documentResponse struct {
	mu     sync.Mutex
	status int
	url    string
	header http.Header
}

func (d *documentResponse) listen(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	header := headerFrom(e.Response.Headers)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(e.Response.Status)
	d.url = e.Response.URL
	d.header = header
}

// result fills status, URL and headers, falling back to the browser location
// and a 200 when no document event arrived.
func (d *documentResponse) result(requestURL, finalURL string) fetcher.Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := fetcher.Response{StatusCode: d.status, URL: d.url, Headers: d.header}
	if resp.URL == "" {
		resp.URL = cmp.Or(finalURL, requestURL)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	if resp.Headers == nil {
		resp.Headers = http.Header{}
	}
	return resp
}

// headerFrom flattens CDP header values, which arrive as strings or, for
// repeated headers, newline-joined strings.
func headerFrom(src network.Headers) http.Header {
	out := http.Header{}
	for key, value := range src {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		for _, v := range strings.Split(s, "\n") {
			out.Add(key, v)
		}
	}
	return out
}
