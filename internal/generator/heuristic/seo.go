package heuristic

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

const (
	statusPass    = "pass"
	statusWarning = "warning"
	statusFail    = "fail"
)

func seoChecks(doc *goquery.Document) []audit.SEOCheck {
	return []audit.SEOCheck{
		titleCheck(doc),
		descriptionCheck(doc),
		headingCheck(doc),
		imageAltCheck(doc),
		viewportCheck(doc),
		canonicalCheck(doc),
	}
}

func titleCheck(doc *goquery.Document) audit.SEOCheck {
	title := strings.TrimSpace(doc.Find("head title").First().Text())
	n := utf8.RuneCountInString(title)
	c := audit.SEOCheck{Name: "Meta Title", Details: title}
	switch {
	case n == 0:
		c.Status = statusFail
		c.Description = "The page has no title."
		c.Recommendation = "Add a descriptive <title> of 10 to 60 characters."
	case n < 10 || n > 60:
		c.Status = statusWarning
		c.Description = fmt.Sprintf("Title is %d characters long.", n)
		c.Recommendation = "Keep the title between 10 and 60 characters so it is not truncated in results."
	default:
		c.Status = statusPass
		c.Description = "Title is present and well sized."
	}
	return c
}

func descriptionCheck(doc *goquery.Document) audit.SEOCheck {
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	desc = strings.TrimSpace(desc)
	n := utf8.RuneCountInString(desc)
	c := audit.SEOCheck{Name: "Meta Description", Details: desc}
	switch {
	case n == 0:
		c.Status = statusFail
		c.Description = "The page has no meta description."
		c.Recommendation = "Add a meta description of 50 to 160 characters summarizing the page."
	case n < 50 || n > 160:
		c.Status = statusWarning
		c.Description = fmt.Sprintf("Meta description is %d characters long.", n)
		c.Recommendation = "Aim for 50 to 160 characters."
	default:
		c.Status = statusPass
		c.Description = "Meta description is present and well sized."
	}
	return c
}

func headingCheck(doc *goquery.Document) audit.SEOCheck {
	n := doc.Find("h1").Length()
	c := audit.SEOCheck{Name: "H1 Heading", Details: fmt.Sprintf("%d h1 elements", n)}
	switch n {
	case 0:
		c.Status = statusFail
		c.Description = "No h1 heading found."
		c.Recommendation = "Give the page a single h1 describing its main topic."
	case 1:
		c.Status = statusPass
		c.Description = "Exactly one h1 heading."
	default:
		c.Status = statusWarning
		c.Description = "Multiple h1 headings dilute the page topic."
		c.Recommendation = "Use one h1 and demote the others to h2."
	}
	return c
}

func imageAltCheck(doc *goquery.Document) audit.SEOCheck {
	total, missing := imagesMissingAlt(doc)
	c := audit.SEOCheck{Name: "Image Alt Text", Details: fmt.Sprintf("%d of %d images lack alt text", missing, total)}
	switch {
	case missing == 0:
		c.Status = statusPass
		c.Description = "All images have alt attributes."
	case missing*2 > total:
		c.Status = statusFail
		c.Description = "Most images have no alt text."
		c.Recommendation = "Describe each meaningful image with an alt attribute."
	default:
		c.Status = statusWarning
		c.Description = "Some images have no alt text."
		c.Recommendation = "Describe each meaningful image with an alt attribute."
	}
	return c
}

func viewportCheck(doc *goquery.Document) audit.SEOCheck {
	content, ok := doc.Find(`meta[name="viewport"]`).First().Attr("content")
	if !ok || !strings.Contains(content, "width=device-width") {
		return audit.SEOCheck{
			Name:           "Mobile Viewport",
			Status:         statusFail,
			Description:    "No responsive viewport meta tag.",
			Recommendation: `Add <meta name="viewport" content="width=device-width, initial-scale=1">.`,
		}
	}
	return audit.SEOCheck{Name: "Mobile Viewport", Status: statusPass, Description: "Responsive viewport configured."}
}

func canonicalCheck(doc *goquery.Document) audit.SEOCheck {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return audit.SEOCheck{
			Name:           "Canonical URL",
			Status:         statusWarning,
			Description:    "No canonical link.",
			Recommendation: "Declare a canonical URL to avoid duplicate content.",
		}
	}
	return audit.SEOCheck{Name: "Canonical URL", Status: statusPass, Description: "Canonical URL declared.", Details: href}
}

func imagesMissingAlt(doc *goquery.Document) (total, missing int) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		total++
		if _, ok := s.Attr("alt"); !ok {
			missing++
		}
	})
	return total, missing
}
