// Package ingest pulls entries from subscribed feeds and stores them as
// documents.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"briefpipe/internal/common"
	"briefpipe/internal/pipeline"
	"briefpipe/models"
	"briefpipe/pkg/contenthash"
	"briefpipe/pkg/feed"
	"briefpipe/pkg/fetcher"
	"briefpipe/pkg/store"
)

// Provenance values recorded in document metadata under "fetched_via".
const (
	viaURLFetch     = "url_fetch"
	viaFeedFallback = "feed_fallback"
	viaFeed         = "feed"
)

// Options controls one ingest run.
type Options struct {
	// Source restricts the run to sources whose name contains this
	// string, case-insensitively. Empty means all active sources.
	Source string
	// DaysBack admits only entries published within the window. Entries
	// with no publish date are always admitted.
	DaysBack int
	// FullHistory disables the date window entirely.
	FullHistory bool
	// FetchFull fetches each article page; on failure the feed's own
	// content is stored instead.
	FetchFull bool
	Limit     int
	DryRun    bool
	Workers   int
}

type Stage struct {
	store  *store.Store
	feeds  *feed.Reader
	fetch  *fetcher.Fetcher
	logger *slog.Logger
	now    func() time.Time
}

func New(st *store.Store, feeds *feed.Reader, fetch *fetcher.Fetcher, logger *slog.Logger) *Stage {
	return &Stage{store: st, feeds: feeds, fetch: fetch, logger: logger, now: time.Now}
}

type job struct {
	source models.Source
	entry  feed.Entry
}

// Run reads every active source's feed and stores new entries as documents.
// Feed read failures are reported per source; entry failures per entry.
// Entries whose URL is already stored count as skipped.
func (s *Stage) Run(ctx context.Context, opts Options) (*pipeline.Report, error) {
	sources, err := s.store.ListSources(true)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	if opts.Source != "" {
		sources = filterSources(sources, opts.Source)
		if len(sources) == 0 {
			s.logger.Warn("No active source matches filter", "filter", opts.Source)
		}
	}
	if len(sources) == 0 {
		s.logger.Info("No active sources to ingest")
		return &pipeline.Report{Stage: "ingest"}, nil
	}

	var cutoff time.Time
	if !opts.FullHistory && opts.DaysBack > 0 {
		cutoff = s.now().AddDate(0, 0, -opts.DaysBack)
	}

	var jobs []job
	var feedFailures []pipeline.Failure
	for _, src := range sources {
		entries, err := s.feeds.Read(ctx, src.FeedURL)
		if err != nil {
			s.logger.Error("Failed to read feed", "source", src.Name, "feed_url", src.FeedURL, "error", err)
			feedFailures = append(feedFailures, pipeline.Failure{Record: src.FeedURL, Err: err})
			continue
		}
		admitted := 0
		for _, entry := range entries {
			entry.URL = common.SanitizeURL(entry.URL)
			if !common.ValidURL(entry.URL) {
				s.logger.Warn("Feed entry has no usable URL, dropping", "source", src.Name, "title", entry.Title)
				continue
			}
			// Undated entries pass the window: dropping them would
			// silently lose feeds that omit publish dates.
			if !cutoff.IsZero() && entry.PublishedAt != nil && entry.PublishedAt.Before(cutoff) {
				continue
			}
			jobs = append(jobs, job{source: src, entry: entry})
			admitted++
		}
		s.logger.Info("Feed read", "source", src.Name, "entries", len(entries), "admitted", admitted)
	}

	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}

	report := pipeline.Run(ctx, "ingest", jobs, pipeline.Options{Workers: opts.Workers},
		func(j job) string { return j.entry.URL },
		func(ctx context.Context, j job) error {
			return s.ingestEntry(ctx, j, opts)
		})
	// Unreadable feeds count as attempted work, keeping the report's
	// attempted = succeeded + failed + skipped accounting intact.
	report.Attempted += len(feedFailures)
	report.Failed += len(feedFailures)
	report.Failures = append(feedFailures, report.Failures...)
	return report, nil
}

// filterSources keeps sources whose name contains needle, ignoring case.
func filterSources(list []models.Source, needle string) []models.Source {
	needle = strings.ToLower(needle)
	var kept []models.Source
	for _, src := range list {
		if strings.Contains(strings.ToLower(src.Name), needle) {
			kept = append(kept, src)
		}
	}
	return kept
}

func (s *Stage) ingestEntry(ctx context.Context, j job, opts Options) error {
	exists, err := s.store.DocumentExists(j.entry.URL)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("document %s: %w", j.entry.URL, store.ErrDuplicate)
	}

	if opts.DryRun {
		s.logger.Info("Would ingest entry", "url", j.entry.URL, "title", j.entry.Title)
		return nil
	}

	content := j.entry.Content
	provenance := viaFeed
	if opts.FetchFull {
		result := s.fetch.Fetch(ctx, j.entry.URL, j.entry.Content)
		content = result.HTML
		if result.Success {
			provenance = viaURLFetch
		} else {
			provenance = viaFeedFallback
			s.logger.Warn("Full fetch failed, storing feed content",
				"url", j.entry.URL, "attempts", result.Attempts, "error", result.Error)
		}
	}

	metadata := map[string]string{"fetched_via": provenance}
	if j.entry.Summary != "" {
		metadata["summary"] = j.entry.Summary
	}

	hash := contenthash.Fingerprint(content)
	if dupURL, err := s.store.FindDocumentByHash(hash); err != nil {
		return err
	} else if dupURL != "" {
		// Same content under a different URL is stored anyway; syndication
		// is common and the extract stage dedupes nothing. The match is
		// recorded so a reader of the row can trace it.
		metadata["duplicate_of"] = dupURL
		s.logger.Info("Content matches an existing document", "url", j.entry.URL, "duplicate_of", dupURL)
	}

	doc := &models.Document{
		ID:          uuid.NewString(),
		SourceID:    j.source.ID,
		URL:         j.entry.URL,
		Title:       j.entry.Title,
		Author:      j.entry.Author,
		PublishedAt: j.entry.PublishedAt,
		RawContent:  content,
		ContentHash: hash,
		Metadata:    metadata,
		FetchedAt:   s.now().UTC(),
	}
	if err := s.store.InsertDocument(doc); err != nil {
		return err
	}
	s.logger.Info("Ingested document", "url", doc.URL, "title", doc.Title, "fetched_via", provenance)
	return nil
}
