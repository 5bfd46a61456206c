// Package detector decides when a fetched page is a client-rendered shell
// that must be rendered in a browser before it can be audited.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/auditsnap/internal/fetcher"
)

const defaultThreshold = 2048

// Heuristic implements a handful of rule-based render decisions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. Zero uses a 2 KiB threshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

// NeedsRender reports whether resp should be rendered headlessly and why.
// Only successful responses qualify.
func (h *Heuristic) NeedsRender(resp fetcher.Response) (bool, string) {
	if resp.StatusCode != 200 || resp.Rendered {
		return false, ""
	}
	body := resp.Body
	if len(body) == 0 {
		return true, "empty body"
	}
	if len(body) < h.BodyLengthThreshold && scriptShare(body) >= 25 {
		return true, "script heavy"
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true, "spa marker " + string(marker)
		}
	}
	return false, ""
}

// scriptShare returns the percentage of body covered by <script> elements.
// An unterminated tag covers the rest of the document.
func scriptShare(body []byte) int {
	doc := strings.ToLower(string(body))
	if doc == "" {
		return 0
	}
	covered := 0
	for pos := 0; pos < len(doc); {
		rel := strings.Index(doc[pos:], "<script")
		if rel < 0 {
			break
		}
		start := pos + rel
		end := len(doc)
		if gt := strings.IndexByte(doc[start:], '>'); gt >= 0 {
			content := start + gt + 1
			if closeAt := strings.Index(doc[content:], "</script>"); closeAt >= 0 {
				end = content + closeAt + len("</script>")
			}
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / len(doc)
}
