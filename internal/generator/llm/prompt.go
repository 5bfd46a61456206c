package llm

import "fmt"

const promptTemplate = `Generate a comprehensive website audit report for the website at %s.
The audit should include detailed analysis in these areas:
1. SEO Analysis: meta tags, headers, content structure, keywords, etc.
2. Performance: loading speed, Core Web Vitals estimates, resource usage
3. Accessibility: WCAG compliance, screen reader compatibility, keyboard navigation
4. Security: SSL, headers, known vulnerabilities
5. Mobile Responsiveness: viewport settings, media queries, touch targets

For each category, provide:
- An overall score out of 100
- Key findings (3-5 bullet points)
- Critical issues that need immediate attention
- Specific recommendations for improvement

Allowed values: seo[].status is pass, warning or fail; performance.metrics[].status is good,
needs-improvement or poor; accessibility.wcag[].status is pass or fail; security.headers[].status
is pass, fail or warning; every severity is high, medium or low.

Format the response as a JSON object with the following structure:
{
  "url": "website-url",
  "date": "current-date",
  "overallScore": number,
  "scores": {
    "seo": number,
    "performance": number,
    "accessibility": number,
    "security": number
  },
  "summary": {
    "keyFindings": [array of strings],
    "criticalIssues": [array of strings],
    "recommendations": [array of strings]
  },
  "seo": [array of objects with name, status, description, details, recommendation],
  "performance": {
    "metrics": [array of objects with name, value, status],
    "issues": [array of objects with name, description, details, impact]
  },
  "accessibility": {
    "wcag": [array of objects with level, status, description],
    "issues": [array of objects with name, severity, description, element, recommendation]
  },
  "security": {
    "headers": [array of objects with name, status, description],
    "findings": [array of objects with name, severity, description, recommendation]
  }
}`

func prompt(url string) string {
	return fmt.Sprintf(promptTemplate, url)
}
