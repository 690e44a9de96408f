// Package feed reads RSS/Atom feeds into normalized entries.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

const defaultTimeout = 30 * time.Second

// Entry is a normalized feed item. It is ephemeral: the ingest stage
// consumes it immediately and only Documents are persisted.
type Entry struct {
	Title       string
	URL         string
	Author      string
	PublishedAt *time.Time
	Content     string // full text if the feed carries it, else summary
	Summary     string // short summary/description for fallback
}

// NetworkError wraps transport failures while fetching a feed.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("feed fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// MalformedFeedError indicates the response could not be parsed as
// syndication XML.
type MalformedFeedError struct {
	URL string
	Err error
}

func (e *MalformedFeedError) Error() string {
	return fmt.Sprintf("malformed feed %s: %v", e.URL, e.Err)
}

func (e *MalformedFeedError) Unwrap() error { return e.Err }

// Reader fetches and parses feeds. Each Read performs one fetch; re-invoking
// re-fetches.
type Reader struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

// NewReader builds a Reader with the given fetch timeout (0 means 30s).
func NewReader(timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	p := gofeed.NewParser()
	p.UserAgent = "briefpipe/1.0 (feed reader; +https://github.com)"
	p.Client = &http.Client{Timeout: timeout}
	return &Reader{parser: p, timeout: timeout}
}

// Read fetches feedURL and returns its entries in feed order.
func (r *Reader) Read(ctx context.Context, feedURL string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	parsed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) || isTransport(err) {
			return nil, &NetworkError{URL: feedURL, Err: err}
		}
		return nil, &MalformedFeedError{URL: feedURL, Err: err}
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entries = append(entries, mapItem(item))
	}
	return entries, nil
}

func mapItem(item *gofeed.Item) Entry {
	title := item.Title
	if title == "" {
		title = "Untitled"
	}

	// Dedicated content beats the summary/description.
	content := item.Content
	if content == "" {
		content = item.Description
	}

	return Entry{
		Title:       title,
		URL:         item.Link,
		Author:      entryAuthor(item),
		PublishedAt: entryPublished(item),
		Content:     content,
		Summary:     item.Description,
	}
}

func entryAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// entryPublished prefers the published timestamp, falls back to updated, and
// takes a second pass with a lenient parser over the raw strings. An
// unparseable date yields nil rather than failing the read.
func entryPublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return &t
		}
	}
	return nil
}

func isTransport(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps dial/timeout failures.
	type temporary interface{ Temporary() bool }
	var tmp temporary
	return errors.As(err, &tmp)
}
