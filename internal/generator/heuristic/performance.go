package heuristic

import (
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/fetcher"
)

const (
	metricGood = "good"
	metricNI   = "needs-improvement"
	metricPoor = "poor"
)

type band struct {
	good, ok float64
}

func (b band) rate(v float64) string {
	switch {
	case v <= b.good:
		return metricGood
	case v <= b.ok:
		return metricNI
	default:
		return metricPoor
	}
}

var (
	responseBand = band{good: 0.8, ok: 1.8}
	fcpBand      = band{good: 1.8, ok: 3.0}
	dclBand      = band{good: 2.0, ok: 4.0}
	loadBand     = band{good: 2.5, ok: 4.0}
	weightBand   = band{good: 500 * 1024, ok: 2 * 1024 * 1024}
	requestsBand = band{good: 30, ok: 80}
)

func performanceChecks(page fetcher.Response, doc *goquery.Document) audit.PerformanceSection {
	sec := audit.PerformanceSection{Issues: []audit.PerformanceIssue{}}
	add := func(name string, value string, status string, issue audit.PerformanceIssue) {
		sec.Metrics = append(sec.Metrics, audit.PerformanceMetric{Name: name, Value: value, Status: status})
		if status != metricGood {
			issue.Impact = impactFor(status)
			sec.Issues = append(sec.Issues, issue)
		}
	}

	response := page.Duration
	if page.Timings != nil && page.Timings.TTFB > 0 {
		response = page.Timings.TTFB
	}
	add("Server Response Time", seconds(response), responseBand.rate(response.Seconds()), audit.PerformanceIssue{
		Name:        "Slow server response",
		Description: "The server took long to deliver the first byte.",
		Details:     fmt.Sprintf("Response arrived after %s.", seconds(response)),
	})

	weight := float64(len(page.Body))
	add("Page Weight", kilobytes(len(page.Body)), weightBand.rate(weight), audit.PerformanceIssue{
		Name:        "Heavy HTML document",
		Description: "The HTML payload is large.",
		Details:     fmt.Sprintf("Document is %s.", kilobytes(len(page.Body))),
	})

	requests := doc.Find("script[src], link[rel=stylesheet], img[src], iframe[src]").Length()
	add("Resource Requests", fmt.Sprintf("%d", requests), requestsBand.rate(float64(requests)), audit.PerformanceIssue{
		Name:        "Many subresources",
		Description: "The page references many scripts, styles and images.",
		Details:     fmt.Sprintf("%d subresources referenced.", requests),
	})

	if t := page.Timings; t != nil {
		timed := []struct {
			name  string
			d     time.Duration
			band  band
			issue string
		}{
			{"First Contentful Paint", t.FirstPaint, fcpBand, "Slow first paint"},
			{"DOM Content Loaded", t.DOMContentLoaded, dclBand, "Slow DOM construction"},
			{"Load Time", t.Load, loadBand, "Slow full load"},
		}
		for _, m := range timed {
			if m.d <= 0 {
				continue
			}
			add(m.name, seconds(m.d), m.band.rate(m.d.Seconds()), audit.PerformanceIssue{
				Name:        m.issue,
				Description: m.name + " is above the recommended threshold.",
				Details:     fmt.Sprintf("Measured %s in headless Chrome.", seconds(m.d)),
			})
		}
	}
	return sec
}

func impactFor(status string) string {
	if status == metricPoor {
		return "high"
	}
	return "medium"
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func kilobytes(n int) string {
	return fmt.Sprintf("%.0f KB", float64(n)/1024)
}
