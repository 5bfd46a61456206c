package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/auditsnap/internal/fetcher"
	"github.com/JakeFAU/auditsnap/internal/metrics"
)

const (
	robotsAllowAll      = "User-agent: *\nAllow: /"
	robotsTimeoutReason = "TLS handshake timeout"
)

// robotsTransport retries robots.txt lookups that time out. Once the retries
// run out the site is treated as allow-all and the page is annotated as
// indeterminate, so a slow robots.txt never sinks an audit. Other requests
// pass straight through.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration

	mu     sync.Mutex
	status fetcher.RobotsStatus
	reason string
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	return &robotsTransport{
		base:    base,
		backoff: []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second},
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req)
	}
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		}
		if attempt >= len(t.backoff) {
			t.giveUp(robotsTimeoutReason)
			return allowAll(req), nil
		}
		select {
		case <-req.Context().Done():
			return nil, fmt.Errorf("fetch robots.txt: %w", req.Context().Err())
		case <-time.After(t.backoff[attempt]):
		}
	}
}

func (t *robotsTransport) giveUp(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == fetcher.RobotsStatusIndeterminate {
		return
	}
	t.status = fetcher.RobotsStatusIndeterminate
	t.reason = reason
	metrics.ObserveRobotsFallback()
}

// annotate copies the robots outcome onto page. Safe on a nil receiver.
func (t *robotsTransport) annotate(page *fetcher.Response) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == fetcher.RobotsStatusUnknown {
		return
	}
	page.RobotsStatus = t.status
	page.RobotsReason = t.reason
}

func allowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(robotsAllowAll)),
		ContentLength: int64(len(robotsAllowAll)),
		Header:        http.Header{},
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
