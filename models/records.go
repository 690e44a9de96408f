package models

import (
	"time"

	"briefpipe/pkg/analysis"
	"briefpipe/pkg/segment"
)

// Source is a subscribed feed. FeedURL is the natural key: the same feed
// cannot be registered twice.
type Source struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FeedURL   string    `json:"feed_url"`
	Active    bool      `json:"active"`
	Cadence   string    `json:"cadence,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is one fetched article. URL is the natural key; RawContent holds
// whatever the ingest stage could get (full page HTML or the feed's own
// content when fetching failed or was skipped).
type Document struct {
	ID          string            `json:"id"`
	SourceID    string            `json:"source_id"`
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Author      string            `json:"author,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	RawContent  string            `json:"raw_content"`
	ContentHash string            `json:"content_hash"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// Extraction is the cleaned, segmented text for one document, plus its
// embedding once the embed stage has run. One extraction per document.
type Extraction struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	CleanedText string            `json:"cleaned_text"`
	Sections    []segment.Section `json:"sections"`
	WordCount   int               `json:"word_count"`
	ReadingTime int               `json:"reading_time_minutes"`
	Excerpt     string            `json:"excerpt"`
	Language    string            `json:"language"`
	Embedding   []float32         `json:"embedding,omitempty"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// Summary is the structured analysis output for one extraction, with the
// token accounting needed for cost reporting.
type Summary struct {
	ID            string       `json:"id"`
	ExtractionID  string       `json:"extraction_id"`
	Analysis      analysis.Doc `json:"analysis"`
	ModelUsed     string       `json:"model_used"`
	PromptVersion string       `json:"prompt_version"`
	InputTokens   int          `json:"input_tokens"`
	OutputTokens  int          `json:"output_tokens"`
	CostUSD       float64      `json:"cost_usd"`
	AnalyzedAt    time.Time    `json:"analyzed_at"`
}
