package heuristic

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

func accessibilityChecks(doc *goquery.Document) audit.AccessibilitySection {
	sec := audit.AccessibilitySection{Issues: []audit.AccessibilityIssue{}}
	add := func(level string, ok bool, passDesc, failDesc string, issue audit.AccessibilityIssue) {
		if ok {
			sec.WCAG = append(sec.WCAG, audit.WCAGCheck{Level: level, Status: statusPass, Description: passDesc})
			return
		}
		sec.WCAG = append(sec.WCAG, audit.WCAGCheck{Level: level, Status: statusFail, Description: failDesc})
		sec.Issues = append(sec.Issues, issue)
	}

	missingAlt := doc.Find("img:not([alt])")
	add("A", missingAlt.Length() == 0,
		"1.1.1 Images have text alternatives.",
		"1.1.1 Images without text alternatives.",
		audit.AccessibilityIssue{
			Name:           "Images missing alt text",
			Severity:       severityHigh,
			Description:    fmt.Sprintf("%d images have no alt attribute.", missingAlt.Length()),
			Element:        outline(missingAlt.First()),
			Recommendation: `Add alt text, or alt="" for decorative images.`,
		})

	lang, _ := doc.Find("html").First().Attr("lang")
	add("A", strings.TrimSpace(lang) != "",
		"3.1.1 Page language is declared.",
		"3.1.1 Page language is not declared.",
		audit.AccessibilityIssue{
			Name:           "Missing document language",
			Severity:       severityMedium,
			Description:    "The html element has no lang attribute.",
			Element:        "<html>",
			Recommendation: `Declare the language, for example <html lang="en">.`,
		})

	unlabeled := unlabeledInputs(doc)
	add("A", unlabeled.Length() == 0,
		"1.3.1 Form fields have labels.",
		"1.3.1 Form fields without labels.",
		audit.AccessibilityIssue{
			Name:           "Unlabeled form fields",
			Severity:       severityHigh,
			Description:    fmt.Sprintf("%d form fields have no accessible label.", unlabeled.Length()),
			Element:        outline(unlabeled.First()),
			Recommendation: "Associate a <label for> or aria-label with every field.",
		})

	emptyLinks := emptyLinkText(doc)
	add("AA", emptyLinks.Length() == 0,
		"2.4.4 Links have discernible text.",
		"2.4.4 Links without discernible text.",
		audit.AccessibilityIssue{
			Name:           "Links without text",
			Severity:       severityLow,
			Description:    fmt.Sprintf("%d links have no text or label.", emptyLinks.Length()),
			Element:        outline(emptyLinks.First()),
			Recommendation: "Give each link visible text or an aria-label.",
		})
	return sec
}

func unlabeledInputs(doc *goquery.Document) *goquery.Selection {
	labeled := map[string]bool{}
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("for"); ok {
			labeled[id] = true
		}
	})
	return doc.Find("input, select, textarea").FilterFunction(func(_ int, s *goquery.Selection) bool {
		switch strings.ToLower(s.AttrOr("type", "")) {
		case "hidden", "submit", "button", "reset", "image":
			return false
		}
		if id, ok := s.Attr("id"); ok && labeled[id] {
			return false
		}
		if s.AttrOr("aria-label", "") != "" || s.AttrOr("aria-labelledby", "") != "" {
			return false
		}
		return s.ParentsFiltered("label").Length() == 0
	})
}

func emptyLinkText(doc *goquery.Document) *goquery.Selection {
	return doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != "" || s.AttrOr("aria-label", "") != "" {
			return false
		}
		return s.Find("img[alt]").FilterFunction(func(_ int, img *goquery.Selection) bool {
			return strings.TrimSpace(img.AttrOr("alt", "")) != ""
		}).Length() == 0
	})
}

// outline renders the opening tag of the first matched element for display.
func outline(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	node := s.Get(0)
	var b strings.Builder
	b.WriteString("<" + node.Data)
	for _, a := range node.Attr {
		fmt.Fprintf(&b, " %s=%q", a.Key, a.Val)
	}
	b.WriteString(">")
	return b.String()
}
