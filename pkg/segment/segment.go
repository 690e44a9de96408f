// Package segment splits normalized text into heading-delimited sections and
// derives short excerpts.
package segment

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// DefaultMinSectionLength drops sections shorter than this many
	// characters, unless doing so would lose the whole document.
	DefaultMinSectionLength = 100

	// DefaultExcerptLength bounds Excerpt output.
	DefaultExcerptLength = 300

	maxHeadingLength   = 100
	maxHeadingAllCaps  = 8
	sentenceCutMinimum = 0.7
)

// Section is one heading-delimited span of text. Heading is empty for text
// that precedes any detected heading.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^#+\s+`),        // markdown heading
	regexp.MustCompile(`^\d+\.\s+`),     // 1. Introduction
	regexp.MustCompile(`^[IVX]+\.\s+`),  // I. Introduction
	regexp.MustCompile(`^[A-Z][a-z]+:$`), // Title Case:
}

// Segment splits text into sections on blank-line-delimited paragraphs.
// Heading-looking paragraphs open a new section; body paragraphs accumulate
// under the most recent heading. Sections shorter than minSectionLength are
// dropped afterwards, but segmentation never loses content: if nothing
// survives, the full original text comes back as a single unheaded section.
// minSectionLength <= 0 uses the default of 100.
func Segment(text string, minSectionLength int) []Section {
	if minSectionLength <= 0 {
		minSectionLength = DefaultMinSectionLength
	}

	whole := []Section{{Body: text}}

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return whole
	}

	var sections []Section
	current := Section{}
	var body []string

	flush := func() {
		if len(body) > 0 {
			current.Body = strings.Join(body, "\n\n")
			sections = append(sections, current)
		}
	}

	for _, para := range paragraphs {
		if isHeading(para) {
			flush()
			current = Section{Heading: para}
			body = nil
			continue
		}
		body = append(body, para)
	}
	flush()

	if len(sections) == 0 {
		return whole
	}

	kept := sections[:0]
	for _, s := range sections {
		if len(s.Body) >= minSectionLength {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return whole
	}
	return kept
}

// isHeading classifies a paragraph as a section heading.
func isHeading(text string) bool {
	if len(text) > maxHeadingLength {
		return false
	}
	if strings.HasSuffix(text, ":") {
		return true
	}
	if isAllUpper(text) && len(strings.Fields(text)) <= maxHeadingAllCaps {
		return true
	}
	for _, pattern := range headingPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// isAllUpper reports whether text contains at least one letter and no
// lowercase letters.
func isAllUpper(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// Excerpt returns a prefix of text at most maxLength characters long. It
// prefers to cut at the last sentence terminator when that lands at 70% or
// more of maxLength; otherwise it cuts at the last word boundary and appends
// an ellipsis. maxLength <= 0 uses the default of 300.
func Excerpt(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultExcerptLength
	}
	if len(text) <= maxLength {
		return text
	}

	prefix := text[:maxLength]
	if cut := strings.LastIndexAny(prefix, ".?!"); float64(cut) > float64(maxLength)*sentenceCutMinimum {
		return text[:cut+1]
	}

	if space := strings.LastIndex(prefix, " "); space > 0 {
		return prefix[:space] + "..."
	}
	return prefix + "..."
}
