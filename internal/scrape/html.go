package scrape

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize caps parsed pages at 10MB to prevent memory exhaustion.
const MaxHTMLSize = 10 * 1024 * 1024

var textPolicy = bluemonday.StrictPolicy()

// validateHTML rejects empty or oversized documents before parsing.
func validateHTML(htmlStr string) error {
	if len(htmlStr) == 0 {
		return fmt.Errorf("html content required")
	}
	if len(htmlStr) > MaxHTMLSize {
		return fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}
	return nil
}

// detectCharset sniffs the character encoding of raw HTML bytes.
func detectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// loadDocument parses HTML into a goquery document with charset conversion.
func loadDocument(htmlStr string) (*goquery.Document, error) {
	if err := validateHTML(htmlStr); err != nil {
		return nil, err
	}

	data := []byte(htmlStr)
	reader := bytes.NewReader(data)
	utf8Reader, err := charset.NewReader(reader, detectCharset(data))
	if err != nil {
		// Fall back to parsing the raw bytes.
		return goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	}

	return goquery.NewDocumentFromReader(utf8Reader)
}

// loadNode parses HTML into an xpath-compatible node tree.
func loadNode(htmlStr string) (*html.Node, error) {
	if err := validateHTML(htmlStr); err != nil {
		return nil, err
	}

	data := []byte(htmlStr)
	reader := bytes.NewReader(data)
	utf8Reader, err := charset.NewReader(reader, detectCharset(data))
	if err != nil {
		return htmlquery.Parse(strings.NewReader(htmlStr))
	}

	return htmlquery.Parse(utf8Reader)
}

// nodeText collects the sanitized text content of a node, with whitespace
// runs collapsed.
func nodeText(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return cleanText(buf.String())
}

// cleanText strips any markup from a text fragment and normalizes its
// whitespace. Sanitizing escapes entities, so unescape afterwards.
func cleanText(s string) string {
	s = stdhtml.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
