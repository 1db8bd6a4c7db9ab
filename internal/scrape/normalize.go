package scrape

import (
	"regexp"
	"strings"
)

// nonAlnum matches anything outside lowercase alphanumerics and spaces.
var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// formWords are dosage-form words that carry no identity: "crocin 650 tablet"
// and "crocin 650" name the same product.
var formWords = []*regexp.Regexp{
	regexp.MustCompile(`\btablet(?:s)?\b`),
	regexp.MustCompile(`\btabs?\b`),
	regexp.MustCompile(`\bcapsule(?:s)?\b`),
	regexp.MustCompile(`\bcap\b`),
	regexp.MustCompile(`\bstrip\b`),
	regexp.MustCompile(`\bsyrup\b`),
	regexp.MustCompile(`\binjection\b`),
	regexp.MustCompile(`\bointment\b`),
	regexp.MustCompile(`\bcream\b`),
	regexp.MustCompile(`\bsolution\b`),
	regexp.MustCompile(`\bdrop(?:s)?\b`),
}

var (
	spaceRuns = regexp.MustCompile(`\s+`)
	mgGap     = regexp.MustCompile(`(\d+)\s*mg`)
)

// CleanQuery normalizes a drug name for searching and matching: lowercase,
// punctuation stripped, dosage-form words removed, whitespace collapsed, and
// dosage strengths glued ("4 mg" -> "4mg").
func CleanQuery(name string) string {
	name = strings.ToLower(name)
	name = nonAlnum.ReplaceAllString(name, " ")
	for _, fw := range formWords {
		name = fw.ReplaceAllString(name, " ")
	}
	name = strings.TrimSpace(spaceRuns.ReplaceAllString(name, " "))
	name = mgGap.ReplaceAllString(name, "${1}mg")
	return name
}

// Flatten removes all spaces from an already-cleaned string so that titles
// and queries compare on content alone.
func Flatten(cleaned string) string {
	return strings.ReplaceAll(cleaned, " ", "")
}
