package audit

import (
	"errors"
	"fmt"
	"strings"
)

// ReportData is the scored audit payload attached to a completed report.
type ReportData struct {
	URL           string               `json:"url"`
	Date          string               `json:"date"`
	OverallScore  int                  `json:"overallScore"`
	Scores        Scores               `json:"scores"`
	Summary       Summary              `json:"summary"`
	SEO           []SEOCheck           `json:"seo"`
	Performance   PerformanceSection   `json:"performance"`
	Accessibility AccessibilitySection `json:"accessibility"`
	Security      SecuritySection      `json:"security"`
}

// Scores holds the per-category scores, each between 0 and 100.
type Scores struct {
	SEO           int `json:"seo"`
	Performance   int `json:"performance"`
	Accessibility int `json:"accessibility"`
	Security      int `json:"security"`
}

// Summary lists the headline findings.
type Summary struct {
	KeyFindings     []string `json:"keyFindings"`
	CriticalIssues  []string `json:"criticalIssues"`
	Recommendations []string `json:"recommendations"`
}

// SEOCheck is a single SEO signal.
type SEOCheck struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	Description    string `json:"description"`
	Details        string `json:"details,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// PerformanceSection groups measured metrics and detected issues.
type PerformanceSection struct {
	Metrics []PerformanceMetric `json:"metrics"`
	Issues  []PerformanceIssue  `json:"issues"`
}

// PerformanceMetric is a rendered measurement such as "1.2s".
type PerformanceMetric struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

// PerformanceIssue describes something slowing the page down.
type PerformanceIssue struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Details     string `json:"details"`
	Impact      string `json:"impact"`
}

// AccessibilitySection groups WCAG checks and element-level issues.
type AccessibilitySection struct {
	WCAG   []WCAGCheck          `json:"wcag"`
	Issues []AccessibilityIssue `json:"issues"`
}

// WCAGCheck is a conformance result for one level.
type WCAGCheck struct {
	Level       string `json:"level"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// AccessibilityIssue points at an offending element.
type AccessibilityIssue struct {
	Name           string `json:"name"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Element        string `json:"element"`
	Recommendation string `json:"recommendation"`
}

// SecuritySection groups header checks and findings.
type SecuritySection struct {
	Headers  []HeaderCheck     `json:"headers"`
	Findings []SecurityFinding `json:"findings"`
}

// HeaderCheck reports on one response header.
type HeaderCheck struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// SecurityFinding is a security observation with a severity.
type SecurityFinding struct {
	Name           string `json:"name"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
}

var (
	seoStatuses      = enum("pass", "warning", "fail")
	metricStatuses   = enum("good", "needs-improvement", "poor")
	wcagStatuses     = enum("pass", "fail")
	headerStatuses   = enum("pass", "fail", "warning")
	severityStatuses = enum("high", "medium", "low")
)

func enum(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// Validate checks scores and enumerated fields. All problems are joined into
// a single error wrapping ErrInvalidPayload.
func (d *ReportData) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: missing report data", ErrInvalidPayload)
	}
	var errs []error
	score := func(field string, v int) {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s must be within 0..100, got %d", field, v))
		}
	}
	oneOf := func(field, v string, allowed map[string]struct{}) {
		if _, ok := allowed[v]; !ok {
			errs = append(errs, fmt.Errorf("%s has unknown value %q", field, v))
		}
	}

	if strings.TrimSpace(d.URL) == "" {
		errs = append(errs, errors.New("url is required"))
	}
	score("overallScore", d.OverallScore)
	score("scores.seo", d.Scores.SEO)
	score("scores.performance", d.Scores.Performance)
	score("scores.accessibility", d.Scores.Accessibility)
	score("scores.security", d.Scores.Security)

	for i, c := range d.SEO {
		oneOf(fmt.Sprintf("seo[%d].status", i), c.Status, seoStatuses)
	}
	for i, m := range d.Performance.Metrics {
		oneOf(fmt.Sprintf("performance.metrics[%d].status", i), m.Status, metricStatuses)
	}
	for i, w := range d.Accessibility.WCAG {
		oneOf(fmt.Sprintf("accessibility.wcag[%d].status", i), w.Status, wcagStatuses)
	}
	for i, is := range d.Accessibility.Issues {
		oneOf(fmt.Sprintf("accessibility.issues[%d].severity", i), is.Severity, severityStatuses)
	}
	for i, h := range d.Security.Headers {
		oneOf(fmt.Sprintf("security.headers[%d].status", i), h.Status, headerStatuses)
	}
	for i, f := range d.Security.Findings {
		oneOf(fmt.Sprintf("security.findings[%d].severity", i), f.Severity, severityStatuses)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPayload, errors.Join(errs...))
}

// Clone returns a deep copy so stores never share slices with callers.
func (d *ReportData) Clone() *ReportData {
	if d == nil {
		return nil
	}
	out := *d
	out.Summary.KeyFindings = append([]string(nil), d.Summary.KeyFindings...)
	out.Summary.CriticalIssues = append([]string(nil), d.Summary.CriticalIssues...)
	out.Summary.Recommendations = append([]string(nil), d.Summary.Recommendations...)
	out.SEO = append([]SEOCheck(nil), d.SEO...)
	out.Performance.Metrics = append([]PerformanceMetric(nil), d.Performance.Metrics...)
	out.Performance.Issues = append([]PerformanceIssue(nil), d.Performance.Issues...)
	out.Accessibility.WCAG = append([]WCAGCheck(nil), d.Accessibility.WCAG...)
	out.Accessibility.Issues = append([]AccessibilityIssue(nil), d.Accessibility.Issues...)
	out.Security.Headers = append([]HeaderCheck(nil), d.Security.Headers...)
	out.Security.Findings = append([]SecurityFinding(nil), d.Security.Findings...)
	return &out
}
