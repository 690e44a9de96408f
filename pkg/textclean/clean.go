// Package textclean turns raw article HTML into normalized plain text and
// page metadata.
package textclean

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// DefaultWordsPerMinute is the reading-speed assumption for reading time.
const DefaultWordsPerMinute = 200

// Non-content elements stripped before text extraction.
const strippedSelector = "script,style,nav,footer,header,iframe,noscript,aside"

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n\s*\n+`)
)

// Clean strips non-content HTML and returns normalized plain text: runs of
// spaces collapsed, three or more newlines collapsed to one blank line, each
// line trimmed, and the document trimmed.
func Clean(rawHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find(strippedSelector).Remove()
	for _, n := range doc.Nodes {
		removeComments(n)
	}

	return NormalizeWhitespace(doc.Text()), nil
}

// NormalizeWhitespace applies the whitespace rules of Clean to already
// extracted text.
func NormalizeWhitespace(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// ExtractArticle runs a readability pass to isolate the main article content
// of a full web page, returning normalized plain text. Callers should fall
// back to Clean when this errors or the result is too short to be useful.
func ExtractArticle(rawURL, rawHTML string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	return NormalizeWhitespace(article.TextContent), nil
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ReadingTime estimates reading time in minutes, never below one.
// wordsPerMinute <= 0 uses the default of 200.
func ReadingTime(text string, wordsPerMinute int) int {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	minutes := int(math.Round(float64(WordCount(text)) / float64(wordsPerMinute)))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Metadata holds standard and Open Graph page metadata. Fields whose source
// tag is absent stay empty.
type Metadata struct {
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Keywords      string `json:"keywords,omitempty"`
	OGTitle       string `json:"og_title,omitempty"`
	OGDescription string `json:"og_description,omitempty"`
}

// ExtractMetadata reads title, meta description/keywords and Open Graph tags.
func ExtractMetadata(rawHTML string) (Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Metadata{}, fmt.Errorf("parse html: %w", err)
	}

	var meta Metadata
	if title := doc.Find("title").First(); title.Length() > 0 {
		meta.Title = strings.TrimSpace(title.Text())
	}
	meta.Description = metaContent(doc, `meta[name="description"]`)
	meta.Keywords = metaContent(doc, `meta[name="keywords"]`)
	meta.OGTitle = metaContent(doc, `meta[property="og:title"]`)
	meta.OGDescription = metaContent(doc, `meta[property="og:description"]`)
	return meta, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, ok := doc.Find(selector).First().Attr("content")
	if !ok {
		return ""
	}
	return strings.TrimSpace(content)
}
