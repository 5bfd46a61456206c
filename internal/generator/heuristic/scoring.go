package heuristic

import (
	"fmt"
	"math"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

const maxRecommendations = 5

// ratio maps the share of points earned to a 0..100 score.
func ratio(earned, possible float64) int {
	if possible <= 0 {
		return 100
	}
	return clamp(int(math.Round(earned / possible * 100)))
}

func clamp(v int) int {
	return max(0, min(100, v))
}

func seoScore(checks []audit.SEOCheck) int {
	var earned float64
	for _, c := range checks {
		switch c.Status {
		case statusPass:
			earned++
		case statusWarning:
			earned += 0.5
		}
	}
	return ratio(earned, float64(len(checks)))
}

func performanceScore(sec audit.PerformanceSection) int {
	var earned float64
	for _, m := range sec.Metrics {
		switch m.Status {
		case metricGood:
			earned++
		case metricNI:
			earned += 0.5
		}
	}
	return ratio(earned, float64(len(sec.Metrics)))
}

func accessibilityScore(sec audit.AccessibilitySection) int {
	var earned float64
	for _, w := range sec.WCAG {
		if w.Status == statusPass {
			earned++
		}
	}
	return ratio(earned, float64(len(sec.WCAG)))
}

// securityScore weights headers by severity and caps plain-HTTP sites at 40.
func securityScore(sec audit.SecuritySection) int {
	weights := map[string]float64{}
	for _, rule := range headerRules {
		weights[rule.name] = severityWeight(rule.severity)
	}
	var earned, possible float64
	for _, h := range sec.Headers {
		w := weights[h.Name]
		possible += w
		switch h.Status {
		case statusPass:
			earned += w
		case statusWarning:
			earned += w / 2
		}
	}
	score := ratio(earned, possible)
	for _, f := range sec.Findings {
		if f.Name == "No HTTPS" {
			score = min(score, 40)
		}
	}
	return score
}

func severityWeight(severity string) float64 {
	switch severity {
	case severityHigh:
		return 3
	case severityMedium:
		return 2
	default:
		return 1
	}
}

func overall(s audit.Scores) int {
	return clamp(int(math.Round(float64(s.SEO+s.Performance+s.Accessibility+s.Security) / 4)))
}

func summarize(
	scores audit.Scores,
	seo []audit.SEOCheck,
	perf audit.PerformanceSection,
	access audit.AccessibilitySection,
	security audit.SecuritySection,
) audit.Summary {
	sum := audit.Summary{
		KeyFindings: []string{
			fmt.Sprintf("SEO scores %d/100", scores.SEO),
			fmt.Sprintf("Performance scores %d/100", scores.Performance),
			fmt.Sprintf("Accessibility scores %d/100", scores.Accessibility),
			fmt.Sprintf("Security scores %d/100", scores.Security),
		},
		CriticalIssues:  []string{},
		Recommendations: []string{},
	}
	seen := map[string]bool{}
	recommend := func(r string) {
		if r == "" || seen[r] || len(sum.Recommendations) >= maxRecommendations {
			return
		}
		seen[r] = true
		sum.Recommendations = append(sum.Recommendations, r)
	}

	for _, f := range security.Findings {
		if f.Severity == severityHigh {
			sum.CriticalIssues = append(sum.CriticalIssues, f.Description)
		}
	}
	for _, is := range access.Issues {
		if is.Severity == severityHigh {
			sum.CriticalIssues = append(sum.CriticalIssues, is.Description)
		}
	}
	for _, c := range seo {
		if c.Status == statusFail {
			sum.CriticalIssues = append(sum.CriticalIssues, c.Description)
		}
	}
	for _, is := range perf.Issues {
		if is.Impact == "high" {
			sum.CriticalIssues = append(sum.CriticalIssues, is.Details)
		}
	}

	for _, f := range security.Findings {
		recommend(f.Recommendation)
	}
	for _, is := range access.Issues {
		recommend(is.Recommendation)
	}
	for _, c := range seo {
		recommend(c.Recommendation)
	}
	return sum
}
