// Package htmltext flattens rich-text fragments (review comments, PubMed inline
// markup, email reports) into plain text.
package htmltext

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre"

// ToText renders an HTML fragment as plain text with one line per block element
// and runs of whitespace collapsed.
func ToText(fragment string) (string, error) {
	if !strings.ContainsAny(fragment, "<&") {
		return normalize(fragment), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}

	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return normalize(doc.Text()), nil
}

// MustText is ToText for callers that prefer the raw fragment over an error.
func MustText(fragment string) string {
	text, err := ToText(fragment)
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return text
}

// IsBlank reports whether a fragment carries no visible text.
func IsBlank(fragment string) bool {
	return MustText(fragment) == ""
}

func normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
