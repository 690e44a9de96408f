package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"briefpipe/models"
	"briefpipe/pkg/analysis"
)

// UpsertSummary stores the analysis result for an extraction, replacing any
// previous one in place.
func (s *Store) UpsertSummary(sum *models.Summary) error {
	doc, err := json.Marshal(sum.Analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	query, args, err := builder.
		Insert("summaries").
		Columns("id", "extraction_id", "analysis", "model_used", "prompt_version",
			"input_tokens", "output_tokens", "cost_usd", "analyzed_at").
		Values(sum.ID, sum.ExtractionID, string(doc), sum.ModelUsed, sum.PromptVersion,
			sum.InputTokens, sum.OutputTokens, sum.CostUSD, sum.AnalyzedAt).
		Suffix(`ON CONFLICT(extraction_id) DO UPDATE SET
			analysis = excluded.analysis,
			model_used = excluded.model_used,
			prompt_version = excluded.prompt_version,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cost_usd = excluded.cost_usd,
			analyzed_at = excluded.analyzed_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build summary upsert: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}
	return nil
}

// GetSummaryByExtraction returns the summary for an extraction.
func (s *Store) GetSummaryByExtraction(extractionID string) (*models.Summary, error) {
	query, args, err := builder.
		Select("id", "extraction_id", "analysis", "model_used", "prompt_version",
			"input_tokens", "output_tokens", "cost_usd", "analyzed_at").
		From("summaries").
		Where(sq.Eq{"extraction_id": extractionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build summary query: %w", err)
	}

	var sum models.Summary
	var doc string
	err = s.db.QueryRow(query, args...).Scan(&sum.ID, &sum.ExtractionID, &doc,
		&sum.ModelUsed, &sum.PromptVersion, &sum.InputTokens, &sum.OutputTokens,
		&sum.CostUSD, &sum.AnalyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	if err := json.Unmarshal([]byte(doc), &sum.Analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	if sum.Analysis == nil {
		sum.Analysis = analysis.Empty()
	}
	return &sum, nil
}

// Backlog counts stored records and the work remaining per stage.
type Backlog struct {
	Sources          int
	ActiveSources    int
	Documents        int
	Extractions      int
	Summaries        int
	PendingExtract   int
	PendingEmbed     int
	PendingAnalyze   int
	TotalCostUSD     float64
	TotalInputTokens int
}

// Counts returns the backlog snapshot used by the status command.
func (s *Store) Counts() (*Backlog, error) {
	var b Backlog
	counts := []struct {
		dest  *int
		query string
	}{
		{&b.Sources, "SELECT COUNT(*) FROM sources"},
		{&b.ActiveSources, "SELECT COUNT(*) FROM sources WHERE active = 1"},
		{&b.Documents, "SELECT COUNT(*) FROM documents"},
		{&b.Extractions, "SELECT COUNT(*) FROM extractions"},
		{&b.Summaries, "SELECT COUNT(*) FROM summaries"},
		{&b.PendingExtract, "SELECT COUNT(*) FROM documents WHERE id NOT IN (SELECT document_id FROM extractions)"},
		{&b.PendingEmbed, "SELECT COUNT(*) FROM extractions WHERE embedding IS NULL"},
		{&b.PendingAnalyze, "SELECT COUNT(*) FROM extractions WHERE id NOT IN (SELECT extraction_id FROM summaries)"},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count records: %w", err)
		}
	}
	err := s.db.QueryRow("SELECT COALESCE(SUM(cost_usd), 0), COALESCE(SUM(input_tokens), 0) FROM summaries").
		Scan(&b.TotalCostUSD, &b.TotalInputTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to sum costs: %w", err)
	}
	return &b, nil
}
