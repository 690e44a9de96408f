// Package extract cleans stored documents into structured text: sections,
// excerpt, word count, reading time, language.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"briefpipe/internal/pipeline"
	"briefpipe/models"
	"briefpipe/pkg/segment"
	"briefpipe/pkg/store"
	"briefpipe/pkg/textclean"
)

// minViableChars is the floor under which a cleaned document is considered
// empty. Such documents fail extraction terminally rather than producing
// junk rows.
const minViableChars = 100

// Options controls one extract run.
type Options struct {
	// RecordID selects exactly one document by ID instead of the backlog,
	// whether or not it already has an extraction.
	RecordID string
	// Reprocess re-extracts documents that already have an extraction,
	// replacing it in place.
	Reprocess bool
	Limit     int
	DryRun    bool
	Workers   int
}

type Stage struct {
	store    *store.Store
	detector *textclean.LanguageDetector
	logger   *slog.Logger
	now      func() time.Time
}

func New(st *store.Store, logger *slog.Logger) *Stage {
	return &Stage{
		store:    st,
		detector: textclean.NewLanguageDetector(),
		logger:   logger,
		now:      time.Now,
	}
}

// Run extracts every document that has no extraction yet (or all documents
// with Reprocess).
func (s *Stage) Run(ctx context.Context, opts Options) (*pipeline.Report, error) {
	var docs []models.Document
	var err error
	switch {
	case opts.RecordID != "":
		var doc *models.Document
		doc, err = s.store.GetDocument(opts.RecordID)
		if doc != nil {
			docs = []models.Document{*doc}
		}
	case opts.Reprocess:
		docs, err = s.store.AllDocuments(opts.Limit)
	default:
		docs, err = s.store.DocumentsWithoutExtraction(opts.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}

	return pipeline.Run(ctx, "extract", docs, pipeline.Options{Workers: opts.Workers},
		func(d models.Document) string { return d.URL },
		func(ctx context.Context, d models.Document) error {
			return s.extractDocument(d, opts)
		}), nil
}

func (s *Stage) extractDocument(doc models.Document, opts Options) error {
	if opts.DryRun {
		s.logger.Info("Would extract document", "url", doc.URL)
		return nil
	}

	text, err := s.cleanText(doc)
	if err != nil {
		return err
	}
	if len(text) < minViableChars {
		return fmt.Errorf("document %s yielded only %d chars of text", doc.URL, len(text))
	}

	sections := segment.Segment(text, 0)
	words := textclean.WordCount(text)
	extraction := &models.Extraction{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		CleanedText: text,
		Sections:    sections,
		WordCount:   words,
		ReadingTime: textclean.ReadingTime(text, 0),
		Excerpt:     segment.Excerpt(text, 0),
		Language:    s.detector.Detect(text),
		ExtractedAt: s.now().UTC(),
	}
	if err := s.store.UpsertExtraction(extraction); err != nil {
		return err
	}
	s.logger.Info("Extracted document", "url", doc.URL,
		"words", words, "sections", len(sections), "language", extraction.Language)
	return nil
}

// cleanText prefers readability extraction for documents that hold a full
// page, falling back to plain tag stripping when it finds nothing. Feed
// content skips readability: it is already just the article body.
func (s *Stage) cleanText(doc models.Document) (string, error) {
	if doc.Metadata["fetched_via"] == "url_fetch" {
		text, err := textclean.ExtractArticle(doc.URL, doc.RawContent)
		if err == nil && len(text) >= minViableChars {
			return text, nil
		}
		if err != nil {
			s.logger.Warn("Readability extraction failed, stripping tags instead", "url", doc.URL, "error", err)
		}
	}
	text, err := textclean.Clean(doc.RawContent)
	if err != nil {
		return "", fmt.Errorf("failed to clean document %s: %w", doc.URL, err)
	}
	return text, nil
}
