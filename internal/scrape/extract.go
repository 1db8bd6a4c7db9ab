package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// productPathMarkers identify anchors that point at product pages.
var productPathMarkers = []string{"/otc/", "/medicine/"}

// CollectCandidates harvests product links from a search results page,
// resolving relative hrefs against base. Anchors with empty display text are
// skipped since they cannot be matched against the query.
func CollectCandidates(htmlStr string, base *url.URL) ([]Candidate, error) {
	doc, err := loadDocument(htmlStr)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !isProductHref(href) {
			return
		}
		title := cleanText(s.Text())
		if title == "" {
			return
		}
		abs := resolveHref(href, base)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		candidates = append(candidates, Candidate{Title: title, URL: abs})
	})
	return candidates, nil
}

func isProductHref(href string) bool {
	for _, marker := range productPathMarkers {
		if strings.Contains(href, marker) {
			return true
		}
	}
	return false
}

// resolveHref converts a possibly-relative href to an absolute URL, dropping
// anything that is not plain http(s).
func resolveHref(href string, base *url.URL) string {
	lower := strings.ToLower(strings.TrimSpace(href))
	if lower == "" ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// ExtractComposition pulls the salt composition from a product page. The
// page layout has shifted repeatedly, so extraction cascades through known
// layouts and the first non-empty hit wins; all misses yield an empty string
// rather than an error.
func ExtractComposition(htmlStr string) (string, error) {
	doc, err := loadDocument(htmlStr)
	if err != nil {
		return "", err
	}
	root, err := loadNode(htmlStr)
	if err != nil {
		return "", err
	}

	// Current layout: obfuscated heading classes, composition text in the
	// element right after the heading.
	if heading := doc.Find("h3.Gd.Dd.Sp").First(); heading.Length() > 0 {
		if text := cleanText(heading.Next().Text()); text != "" {
			return text, nil
		}
	}

	// Any h3 announcing a composition section.
	if node := htmlquery.FindOne(root, `//h3[contains(., 'Composition')]/following-sibling::*[1]`); node != nil {
		if text := nodeText(node); text != "" {
			return text, nil
		}
	}

	// Older layout: a #composition container with paragraph children.
	if comp := doc.Find("#composition"); comp.Length() > 0 {
		var parts []string
		comp.Find("p").Each(func(_ int, p *goquery.Selection) {
			if text := cleanText(p.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if joined := strings.Join(parts, " "); joined != "" {
			return joined, nil
		}
	}

	// Last resort: any wrapper div carrying a composition class.
	if node := htmlquery.FindOne(root, `//div[contains(@class, 'compositionWrapper')]`); node != nil {
		if text := nodeText(node); text != "" {
			return text, nil
		}
	}

	return "", nil
}

// ExtractTitle returns the product display name from a product page, or an
// empty string when the header block is missing.
func ExtractTitle(htmlStr string) (string, error) {
	root, err := loadNode(htmlStr)
	if err != nil {
		return "", err
	}
	node := htmlquery.FindOne(root, `//*[contains(@class, 'DrugHeader__header-content')]`)
	if node == nil {
		return "", nil
	}
	return nodeText(node), nil
}
