// Package common holds small helpers shared by pipeline stages.
package common

import (
	"net/url"
	"regexp"
	"strings"
)

// markdownLinkPattern extracts the URL from "[text](url)".
var markdownLinkPattern = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)

// SanitizeURL cleans up common copy-paste and feed artifacts around a URL:
// surrounding whitespace, markdown link syntax, stray punctuation.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)

	if matches := markdownLinkPattern.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = matches[1]
	}

	for _, char := range []string{",", ".", ")", "}", "]", "\"", "'", ">", ";"} {
		cleaned = strings.TrimSuffix(cleaned, char)
	}
	for _, char := range []string{"(", "[", "<", "\"", "'"} {
		cleaned = strings.TrimPrefix(cleaned, char)
	}

	return strings.TrimSpace(cleaned)
}

// ValidURL reports whether a sanitized URL is an http(s) URL worth fetching.
// Feed entries regularly carry empty or junk links; those get dropped at
// ingest instead of wasting fetch attempts.
func ValidURL(rawURL string) bool {
	if rawURL == "" || strings.Contains(rawURL, " ") {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}
	if strings.ContainsAny(parsed.Host, "{}[]<>\"'") {
		return false
	}
	return true
}
