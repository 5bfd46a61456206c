package heuristic

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/fetcher"
)

const (
	severityHigh   = "high"
	severityMedium = "medium"
	severityLow    = "low"
)

type headerRule struct {
	name     string
	severity string
	check    func(value string) bool
	passDesc string
	failDesc string
	advice   string
}

var headerRules = []headerRule{
	{
		name:     "Strict-Transport-Security",
		severity: severityHigh,
		check:    func(v string) bool { return strings.Contains(strings.ToLower(v), "max-age=") },
		passDesc: "HSTS is enabled.",
		failDesc: "HSTS header is missing.",
		advice:   "Send Strict-Transport-Security with a max-age of at least one year.",
	},
	{
		name:     "Content-Security-Policy",
		severity: severityMedium,
		check:    func(v string) bool { return strings.TrimSpace(v) != "" },
		passDesc: "A content security policy is set.",
		failDesc: "No content security policy.",
		advice:   "Define a Content-Security-Policy restricting script sources.",
	},
	{
		name:     "X-Frame-Options",
		severity: severityMedium,
		check: func(v string) bool {
			v = strings.ToUpper(strings.TrimSpace(v))
			return v == "DENY" || v == "SAMEORIGIN"
		},
		passDesc: "Clickjacking protection is set.",
		failDesc: "Page can be framed by other sites.",
		advice:   "Send X-Frame-Options: DENY or a CSP frame-ancestors directive.",
	},
	{
		name:     "X-Content-Type-Options",
		severity: severityLow,
		check:    func(v string) bool { return strings.EqualFold(strings.TrimSpace(v), "nosniff") },
		passDesc: "MIME sniffing is disabled.",
		failDesc: "MIME sniffing is not disabled.",
		advice:   "Send X-Content-Type-Options: nosniff.",
	},
	{
		name:     "Referrer-Policy",
		severity: severityLow,
		check:    func(v string) bool { return strings.TrimSpace(v) != "" },
		passDesc: "A referrer policy is set.",
		failDesc: "No referrer policy.",
		advice:   "Send Referrer-Policy: strict-origin-when-cross-origin.",
	},
}

func securityChecks(rawURL string, page fetcher.Response) audit.SecuritySection {
	sec := audit.SecuritySection{
		Headers:  make([]audit.HeaderCheck, 0, len(headerRules)),
		Findings: []audit.SecurityFinding{},
	}
	csp := page.Headers.Get("Content-Security-Policy")
	for _, rule := range headerRules {
		value := page.Headers.Get(rule.name)
		ok := rule.check(value)
		if !ok && rule.name == "X-Frame-Options" && strings.Contains(csp, "frame-ancestors") {
			sec.Headers = append(sec.Headers, audit.HeaderCheck{
				Name:        rule.name,
				Status:      statusWarning,
				Description: "Covered by CSP frame-ancestors instead.",
			})
			continue
		}
		if ok {
			sec.Headers = append(sec.Headers, audit.HeaderCheck{Name: rule.name, Status: statusPass, Description: rule.passDesc})
			continue
		}
		sec.Headers = append(sec.Headers, audit.HeaderCheck{Name: rule.name, Status: statusFail, Description: rule.failDesc})
		sec.Findings = append(sec.Findings, audit.SecurityFinding{
			Name:           "Missing " + rule.name,
			Severity:       rule.severity,
			Description:    rule.failDesc,
			Recommendation: rule.advice,
		})
	}

	if !servedOverHTTPS(rawURL, page.URL) {
		sec.Findings = append(sec.Findings, audit.SecurityFinding{
			Name:           "No HTTPS",
			Severity:       severityHigh,
			Description:    "The page is served over plain HTTP.",
			Recommendation: "Serve the site over HTTPS and redirect HTTP requests.",
		})
	}
	return sec
}

// servedOverHTTPS checks the final URL after redirects, falling back to the
// requested one.
func servedOverHTTPS(requested, final string) bool {
	target := final
	if target == "" {
		target = requested
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "https"
}
