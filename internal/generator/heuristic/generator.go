// Package heuristic builds audit reports from a single page fetch. It needs
// no external API: SEO, accessibility and security signals are read from
// the HTML and response headers, and performance from the fetch itself or,
// when enabled, from a headless browser's navigation timings.
package heuristic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/fetcher"
	"github.com/JakeFAU/auditsnap/internal/headless/detector"
	"github.com/JakeFAU/auditsnap/internal/policy/blocklist"
	"github.com/JakeFAU/auditsnap/internal/policy/netguard"
	"github.com/JakeFAU/auditsnap/internal/policy/ratelimit"
)

// ErrBlocked is returned for targets on the blocklist.
var ErrBlocked = errors.New("target host is blocked")

// Limiter throttles fetches per domain.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options wires the generator's collaborators. Fetcher is required.
type Options struct {
	Fetcher fetcher.Fetcher
	// Headless, when set, is used for navigation timings and to render
	// client-side pages before analysis.
	Headless  fetcher.Fetcher
	Detector  *detector.Heuristic
	Limiter   Limiter
	Blocklist *blocklist.Blocklist
	Clock     audit.Clock
	Logger    *zap.Logger
	// AllowPrivateNetworks permits localhost and non-public IP literals as
	// targets. The Colly fetcher carries its own dial-time guard.
	AllowPrivateNetworks bool
}

// Generator implements audit.Generator.
type Generator struct {
	fetch     fetcher.Fetcher
	headless  fetcher.Fetcher
	detector  *detector.Heuristic
	limiter   Limiter
	blocklist *blocklist.Blocklist
	clock     audit.Clock
	logger    *zap.Logger

	allowPrivate bool
}

// New validates opts and builds a Generator.
func New(opts Options) (*Generator, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("heuristic generator requires a fetcher")
	}
	if opts.Clock == nil {
		return nil, errors.New("heuristic generator requires a clock")
	}
	if opts.Detector == nil {
		opts.Detector = detector.NewHeuristic(0)
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(ratelimit.Config{})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{
		fetch:     opts.Fetcher,
		headless:  opts.Headless,
		detector:  opts.Detector,
		limiter:   opts.Limiter,
		blocklist: opts.Blocklist,
		clock:     opts.Clock,
		logger:    opts.Logger,

		allowPrivate: opts.AllowPrivateNetworks,
	}, nil
}

// Generate fetches url and scores it.
func (g *Generator) Generate(ctx context.Context, url string) (audit.ReportData, error) {
	if g.blocklist.BlocksURL(url) {
		return audit.ReportData{}, fmt.Errorf("%w: %s", ErrBlocked, url)
	}
	if !g.allowPrivate {
		if err := netguard.CheckURL(url); err != nil {
			return audit.ReportData{}, fmt.Errorf("%w: %w", ErrBlocked, err)
		}
	}
	if err := g.limiter.Wait(ctx, url); err != nil {
		return audit.ReportData{}, err
	}
	page, err := g.fetch.Fetch(ctx, fetcher.Request{URL: url})
	if err != nil {
		return audit.ReportData{}, fmt.Errorf("fetch page: %w", err)
	}
	if page.StatusCode >= http.StatusBadRequest {
		return audit.ReportData{}, fmt.Errorf("site returned HTTP %d", page.StatusCode)
	}
	page = g.maybeRender(ctx, url, page)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return audit.ReportData{}, fmt.Errorf("parse html: %w", err)
	}

	data := g.build(url, page, doc)
	if err := data.Validate(); err != nil {
		return audit.ReportData{}, err
	}
	return data, nil
}

// maybeRender runs the headless render. Its body replaces the static one only
// when the detector flags a client-rendered page; its timings are kept
// either way. A failed render falls back to the static fetch.
func (g *Generator) maybeRender(ctx context.Context, url string, page fetcher.Response) fetcher.Response {
	if g.headless == nil {
		return page
	}
	rendered, err := g.headless.Fetch(ctx, fetcher.Request{URL: url})
	if err != nil {
		g.logger.Warn("headless render failed", zap.String("url", url), zap.Error(err))
		return page
	}
	if ok, reason := g.detector.NeedsRender(page); ok {
		g.logger.Debug("using rendered body", zap.String("url", url), zap.String("reason", reason))
		rendered.Headers = mergeHeaders(page.Headers, rendered.Headers)
		return rendered
	}
	page.Timings = rendered.Timings
	return page
}

func (g *Generator) build(url string, page fetcher.Response, doc *goquery.Document) audit.ReportData {
	seo := seoChecks(doc)
	security := securityChecks(url, page)
	access := accessibilityChecks(doc)
	perf := performanceChecks(page, doc)

	scores := audit.Scores{
		SEO:           seoScore(seo),
		Performance:   performanceScore(perf),
		Accessibility: accessibilityScore(access),
		Security:      securityScore(security),
	}
	return audit.ReportData{
		URL:           url,
		Date:          g.clock.Now().Format("2006-01-02"),
		OverallScore:  overall(scores),
		Scores:        scores,
		Summary:       summarize(scores, seo, perf, access, security),
		SEO:           seo,
		Performance:   perf,
		Accessibility: access,
		Security:      security,
	}
}

// mergeHeaders prefers the static response's headers, which come straight
// from the origin, and fills gaps from the browser's view.
func mergeHeaders(static, rendered http.Header) http.Header {
	out := http.Header{}
	for k, v := range rendered {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range static {
		out[k] = append([]string(nil), v...)
	}
	return out
}
