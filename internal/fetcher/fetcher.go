// Package fetcher defines the page retrieval contract used by the heuristic
// report generator.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// RobotsStatus records how robots.txt was resolved for a fetch.
type RobotsStatus string

// Robots outcomes.
const (
	RobotsStatusUnknown       RobotsStatus = ""
	RobotsStatusIndeterminate RobotsStatus = "indeterminate"
)

// Request describes a single page retrieval.
type Request struct {
	URL     string
	Headers http.Header
}

// Timings holds browser navigation timings.
type Timings struct {
	TTFB             time.Duration
	FirstPaint       time.Duration
	DOMContentLoaded time.Duration
	Load             time.Duration
}

// Response is the retrieved page.
type Response struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// Rendered is set when the body came from a headless browser.
	Rendered bool
	// Timings is only populated by the headless fetcher.
	Timings      *Timings
	RobotsStatus RobotsStatus
	RobotsReason string
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}
