// Package embeddings computes vectors for extractions that do not have one
// yet.
package embeddings

import (
	"context"
	"fmt"
	"log/slog"

	"briefpipe/models"
	"briefpipe/pkg/embedding"
	"briefpipe/pkg/store"
)

// Options controls one embed run.
type Options struct {
	// BatchSize is how many extractions go into one service request.
	BatchSize int
	Limit     int
	DryRun    bool
}

// Report summarizes one embed run.
type Report struct {
	Attempted int
	Succeeded int
	Failed    int
}

type Stage struct {
	store  *store.Store
	client *embedding.Client
	logger *slog.Logger
}

func New(st *store.Store, client *embedding.Client, logger *slog.Logger) *Stage {
	return &Stage{store: st, client: client, logger: logger}
}

// Run embeds extractions whose embedding column is still NULL, in batches.
// A failed batch is recorded and the remaining batches continue.
func (s *Stage) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}

	pending, err := s.store.ExtractionsWithoutEmbedding(opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select extractions: %w", err)
	}

	report := &Report{Attempted: len(pending)}
	if len(pending) == 0 {
		s.logger.Info("No extractions awaiting embedding")
		return report, nil
	}
	if opts.DryRun {
		s.logger.Info("Would embed extractions", "count", len(pending), "batch_size", opts.BatchSize)
		return report, nil
	}

	for start := 0; start < len(pending); start += opts.BatchSize {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		end := start + opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		if err := s.embedBatch(ctx, batch); err != nil {
			s.logger.Error("Batch embedding failed", "from", start, "size", len(batch), "error", err)
			report.Failed += len(batch)
			continue
		}
		report.Succeeded += len(batch)
	}

	s.logger.Info("Embedding run finished",
		"attempted", report.Attempted, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

func (s *Stage) embedBatch(ctx context.Context, batch []models.Extraction) error {
	texts := make([]string, len(batch))
	for i, e := range batch {
		texts[i] = e.CleanedText
	}

	vectors, err := s.client.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	for i, e := range batch {
		if err := s.store.SetEmbedding(e.ID, vectors[i]); err != nil {
			return fmt.Errorf("failed to store vector for extraction %s: %w", e.ID, err)
		}
	}
	return nil
}
