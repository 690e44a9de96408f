// Package analyze sends extracted text to the analysis service and stores
// the validated structured output as summaries.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"briefpipe/internal/pipeline"
	"briefpipe/models"
	"briefpipe/pkg/analysis"
	"briefpipe/pkg/llm"
	"briefpipe/pkg/store"
)

// Options controls one analyze run.
type Options struct {
	// RecordID selects exactly one extraction by ID instead of the
	// backlog, whether or not it already has a summary.
	RecordID string
	// Reprocess re-analyzes extractions that already have a summary,
	// replacing it in place.
	Reprocess bool
	Limit     int
	DryRun    bool
	Workers   int
}

type Stage struct {
	store  *store.Store
	client *llm.Client
	logger *slog.Logger
	now    func() time.Time
}

func New(st *store.Store, client *llm.Client, logger *slog.Logger) *Stage {
	return &Stage{store: st, client: client, logger: logger, now: time.Now}
}

// Run analyzes every extraction that has no summary yet (or all with
// Reprocess). The report carries cost and token metrics.
func (s *Stage) Run(ctx context.Context, opts Options) (*pipeline.Report, error) {
	var pending []store.PendingAnalysis
	var err error
	switch {
	case opts.RecordID != "":
		var p *store.PendingAnalysis
		p, err = s.store.PendingAnalysisByID(opts.RecordID)
		if p != nil {
			pending = []store.PendingAnalysis{*p}
		}
	case opts.Reprocess:
		pending, err = s.store.AllPendingAnalysis(opts.Limit)
	default:
		pending, err = s.store.ExtractionsWithoutSummary(opts.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select extractions: %w", err)
	}

	var tally costTally
	report := pipeline.Run(ctx, "analyze", pending, pipeline.Options{Workers: opts.Workers},
		func(p store.PendingAnalysis) string { return p.URL },
		func(ctx context.Context, p store.PendingAnalysis) error {
			return s.analyzeOne(ctx, p, opts, &tally)
		})
	report.AddMetric("input_tokens", float64(tally.inputTokens.Load()))
	report.AddMetric("output_tokens", float64(tally.outputTokens.Load()))
	report.AddMetric("cost_usd", float64(tally.costMillicents.Load())/100000)
	return report, nil
}

// costTally accumulates token usage across workers. Cost is tracked in
// thousandths of a cent so it can live in an atomic integer.
type costTally struct {
	inputTokens    atomic.Int64
	outputTokens   atomic.Int64
	costMillicents atomic.Int64
}

func (t *costTally) add(r *llm.Result) {
	t.inputTokens.Add(int64(r.InputTokens))
	t.outputTokens.Add(int64(r.OutputTokens))
	t.costMillicents.Add(int64(r.CostUSD * 100000))
}

func (s *Stage) analyzeOne(ctx context.Context, p store.PendingAnalysis, opts Options, tally *costTally) error {
	if opts.DryRun {
		s.logger.Info("Would analyze extraction", "url", p.URL, "chars", len(p.CleanedText))
		return nil
	}

	meta := llm.ArticleMeta{Title: p.Title, Author: p.Author, URL: p.URL}
	if p.PublishedAt.Valid {
		meta.PublishedAt = p.PublishedAt.Time.Format("2006-01-02")
	}

	result, err := s.client.Analyze(ctx, p.CleanedText, meta)
	if err != nil {
		return fmt.Errorf("analysis of %s failed: %w", p.URL, err)
	}
	tally.add(result)

	doc, err := analysis.ExtractJSON(result.ResponseText)
	if err != nil {
		return fmt.Errorf("analysis of %s returned no JSON: %w", p.URL, err)
	}

	if ok, errs := analysis.Validate(doc); !ok {
		s.logger.Warn("Analysis output failed validation, repairing",
			"url", p.URL, "errors", len(errs))
		repaired, err := analysis.Repair(doc)
		if err != nil {
			var unrep *analysis.UnrepairableError
			if errors.As(err, &unrep) {
				return fmt.Errorf("analysis of %s is unrepairable: %w", p.URL, err)
			}
			return err
		}
		doc = repaired
	}

	summary := &models.Summary{
		ID:            uuid.NewString(),
		ExtractionID:  p.ExtractionID,
		Analysis:      doc,
		ModelUsed:     result.Model,
		PromptVersion: llm.PromptVersion,
		InputTokens:   result.InputTokens,
		OutputTokens:  result.OutputTokens,
		CostUSD:       result.CostUSD,
		AnalyzedAt:    s.now().UTC(),
	}
	if err := s.store.UpsertSummary(summary); err != nil {
		return err
	}

	stats := analysis.Stats(doc)
	s.logger.Info("Analyzed extraction", "url", p.URL,
		"claims", stats["claims"], "uncertainties", stats["uncertainties"],
		"input_tokens", result.InputTokens, "output_tokens", result.OutputTokens,
		"cost_usd", result.CostUSD)
	return nil
}
