package heuristic

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/fetcher"
	collyfetcher "github.com/JakeFAU/auditsnap/internal/fetcher/colly"
	"github.com/JakeFAU/auditsnap/internal/policy/blocklist"
	"github.com/JakeFAU/auditsnap/internal/policy/netguard"
)

const goodPage = `<!doctype html><html lang="en"><head><title>Example Store Home Page</title>
<meta name="description" content="Example Store sells handmade goods shipped worldwide with free returns on every order.">
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="canonical" href="https://example.com/"></head>
<body><h1>Welcome</h1><img src="/logo.png" alt="Logo">
<form><label for="q">Search</label><input id="q" type="text"><input type="submit" value="Go"></form>
<a href="/about">About</a></body></html>`

const poorPage = `<html><body><img src="x.png"><input type="text" name="q"><a href="/x"></a></body></html>`

var secureHeaders = http.Header{
	"Strict-Transport-Security": {"max-age=63072000; includeSubDomains"},
	"Content-Security-Policy":   {"default-src 'self'"},
	"X-Frame-Options":           {"DENY"},
	"X-Content-Type-Options":    {"nosniff"},
	"Referrer-Policy":           {"strict-origin-when-cross-origin"},
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }

type stubFetcher struct {
	resp  fetcher.Response
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, fetcher.Request) (fetcher.Response, error) {
	s.calls++
	return s.resp, s.err
}

func newGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()
	opts.Clock = fixedClock{}
	g, err := New(opts)
	require.NoError(t, err)
	return g
}

func TestGenerateHealthyPage(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{resp: fetcher.Response{
		URL: "https://example.com/", StatusCode: 200, Headers: secureHeaders,
		Body: []byte(goodPage), Duration: 100 * time.Millisecond,
	}}
	g := newGenerator(t, Options{Fetcher: f})

	data, err := g.Generate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.NoError(t, data.Validate())
	require.Equal(t, "2025-03-14", data.Date)
	require.Equal(t, "https://example.com/", data.URL)
	require.Equal(t, audit.Scores{SEO: 100, Performance: 100, Accessibility: 100, Security: 100}, data.Scores)
	require.Equal(t, 100, data.OverallScore)
	require.Empty(t, data.Summary.CriticalIssues)
	require.Empty(t, data.Security.Findings)
	require.Empty(t, data.Accessibility.Issues)
	require.Len(t, data.SEO, 6)
	for _, c := range data.SEO {
		require.Equal(t, statusPass, c.Status, c.Name)
	}
	require.Len(t, data.Summary.KeyFindings, 4)
}

func TestGeneratePoorPage(t *testing.T) {
	t.Parallel()

	f := &stubFetcher{resp: fetcher.Response{
		URL: "http://example.com/", StatusCode: 200, Body: []byte(poorPage), Duration: 2 * time.Second,
	}}
	g := newGenerator(t, Options{Fetcher: f})

	data, err := g.Generate(context.Background(), "http://example.com/")
	require.NoError(t, err)
	require.NoError(t, data.Validate())
	require.Equal(t, 8, data.Scores.SEO)
	require.Zero(t, data.Scores.Security)
	require.Zero(t, data.Scores.Accessibility)
	require.Equal(t, 67, data.Scores.Performance)
	require.Equal(t, 19, data.OverallScore)
	require.Contains(t, data.Summary.CriticalIssues, "The page is served over plain HTTP.")
	require.Contains(t, data.Summary.CriticalIssues, "The page has no title.")
	require.LessOrEqual(t, len(data.Summary.Recommendations), maxRecommendations)
	require.Len(t, data.Accessibility.Issues, 4)
	require.Equal(t, `<img src="x.png">`, data.Accessibility.Issues[0].Element)
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	t.Run("http error status", func(t *testing.T) {
		t.Parallel()
		g := newGenerator(t, Options{Fetcher: &stubFetcher{resp: fetcher.Response{StatusCode: 503}}})
		_, err := g.Generate(context.Background(), "https://example.com")
		require.EqualError(t, err, "site returned HTTP 503")
	})

	t.Run("fetch error", func(t *testing.T) {
		t.Parallel()
		g := newGenerator(t, Options{Fetcher: &stubFetcher{err: errors.New("dns failure")}})
		_, err := g.Generate(context.Background(), "https://example.com")
		require.ErrorContains(t, err, "fetch page: dns failure")
	})

	t.Run("blocked host", func(t *testing.T) {
		t.Parallel()
		f := &stubFetcher{}
		g := newGenerator(t, Options{Fetcher: f, Blocklist: blocklist.New([]string{"*.internal"})})
		_, err := g.Generate(context.Background(), "https://admin.internal/")
		require.ErrorIs(t, err, ErrBlocked)
		require.Zero(t, f.calls)
	})

	t.Run("private targets", func(t *testing.T) {
		t.Parallel()
		f := &stubFetcher{}
		g := newGenerator(t, Options{Fetcher: f})
		for _, target := range []string{"http://localhost:8080/", "http://127.0.0.1/", "http://169.254.169.254/latest/", "http://[::1]/"} {
			_, err := g.Generate(context.Background(), target)
			require.ErrorIs(t, err, ErrBlocked, target)
			require.ErrorIs(t, err, netguard.ErrNotPublic, target)
		}
		require.Zero(t, f.calls)
	})
}

func TestGenerateUsesHeadlessRender(t *testing.T) {
	t.Parallel()

	shell := fetcher.Response{
		URL: "https://example.com/", StatusCode: 200, Headers: secureHeaders,
		Body: []byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`),
	}
	rendered := fetcher.Response{
		URL: "https://example.com/", StatusCode: 200, Rendered: true,
		Body:    []byte(goodPage),
		Timings: &fetcher.Timings{TTFB: 200 * time.Millisecond, FirstPaint: 900 * time.Millisecond, Load: 5 * time.Second},
	}
	g := newGenerator(t, Options{Fetcher: &stubFetcher{resp: shell}, Headless: &stubFetcher{resp: rendered}})

	data, err := g.Generate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Equal(t, 100, data.Scores.SEO, "rendered DOM is analyzed")
	require.Equal(t, 100, data.Scores.Security, "origin headers survive the render")

	names := map[string]string{}
	for _, m := range data.Performance.Metrics {
		names[m.Name] = m.Status
	}
	require.Equal(t, metricGood, names["First Contentful Paint"])
	require.Equal(t, metricPoor, names["Load Time"])
	require.NotContains(t, names, "DOM Content Loaded")
}

func TestGenerateHeadlessFailureFallsBack(t *testing.T) {
	t.Parallel()

	static := fetcher.Response{URL: "https://example.com/", StatusCode: 200, Headers: secureHeaders, Body: []byte(goodPage)}
	g := newGenerator(t, Options{Fetcher: &stubFetcher{resp: static}, Headless: &stubFetcher{err: errors.New("chrome missing")}})

	data, err := g.Generate(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, data.Performance.Metrics, 3)
}

func TestGenerateWithCollyFetcher(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range secureHeaders {
			w.Header()[k] = v
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(goodPage))
	}))
	t.Cleanup(srv.Close)

	g := newGenerator(t, Options{
		Fetcher:              collyfetcher.New(collyfetcher.Config{UserAgent: "auditsnap-test", Timeout: 2 * time.Second, AllowPrivateNetworks: true}),
		AllowPrivateNetworks: true,
	})
	data, err := g.Generate(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Equal(t, 100, data.Scores.SEO)
	require.Equal(t, 40, data.Scores.Security, "plain HTTP caps the security score")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Clock: fixedClock{}})
	require.Error(t, err)
	_, err = New(Options{Fetcher: &stubFetcher{}})
	require.Error(t, err)
}
