package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"briefpipe/models"
	"briefpipe/pkg/segment"
)

var extractionColumnList = []string{
	"id", "document_id", "cleaned_text", "sections", "word_count",
	"reading_time", "excerpt", "language", "embedding", "extracted_at",
}

// UpsertExtraction stores the extraction for a document, replacing any
// previous one in place. The row ID and the embedding of an existing row
// are preserved so reprocessing does not orphan summaries or discard
// vectors.
func (s *Store) UpsertExtraction(e *models.Extraction) error {
	sections, err := json.Marshal(e.Sections)
	if err != nil {
		return fmt.Errorf("failed to encode sections: %w", err)
	}
	query, args, err := builder.
		Insert("extractions").
		Columns(extractionColumnList...).
		Values(e.ID, e.DocumentID, e.CleanedText, string(sections), e.WordCount,
			e.ReadingTime, e.Excerpt, e.Language, encodeEmbedding(e.Embedding), e.ExtractedAt).
		Suffix(`ON CONFLICT(document_id) DO UPDATE SET
			cleaned_text = excluded.cleaned_text,
			sections = excluded.sections,
			word_count = excluded.word_count,
			reading_time = excluded.reading_time,
			excerpt = excluded.excerpt,
			language = excluded.language,
			extracted_at = excluded.extracted_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build extraction upsert: %w", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to upsert extraction: %w", err)
	}
	return nil
}

// GetExtractionByDocument returns the extraction for a document.
func (s *Store) GetExtractionByDocument(documentID string) (*models.Extraction, error) {
	q := builder.
		Select(extractionColumnList...).
		From("extractions").
		Where(sq.Eq{"document_id": documentID})
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction query: %w", err)
	}
	e, err := scanExtraction(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("extraction: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ExtractionsWithoutEmbedding returns extractions whose embedding column is
// still NULL, oldest first. limit <= 0 means no limit.
func (s *Store) ExtractionsWithoutEmbedding(limit int) ([]models.Extraction, error) {
	q := builder.
		Select(extractionColumnList...).
		From("extractions").
		Where("embedding IS NULL").
		OrderBy("extracted_at")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	var extractions []models.Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		extractions = append(extractions, e)
	}
	return extractions, rows.Err()
}

// SetEmbedding writes the vector for one extraction.
func (s *Store) SetEmbedding(extractionID string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	result, err := s.db.Exec("UPDATE extractions SET embedding = ? WHERE id = ?", string(data), extractionID)
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("extraction %s: %w", extractionID, ErrNotFound)
	}
	return nil
}

// PendingAnalysis is an extraction joined with its document's metadata,
// ready to send to the analysis service.
type PendingAnalysis struct {
	ExtractionID string
	DocumentID   string
	CleanedText  string
	Title        string
	Author       string
	PublishedAt  sql.NullTime
	URL          string
}

// PendingAnalysisByID returns the analysis input for one extraction,
// regardless of whether it already has a summary.
func (s *Store) PendingAnalysisByID(extractionID string) (*PendingAnalysis, error) {
	query, args, err := builder.
		Select("e.id", "e.document_id", "e.cleaned_text", "d.title", "d.author", "d.published_at", "d.url").
		From("extractions e").
		Join("documents d ON d.id = e.document_id").
		Where(sq.Eq{"e.id": extractionID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis query: %w", err)
	}
	var p PendingAnalysis
	var author sql.NullString
	err = s.db.QueryRow(query, args...).Scan(&p.ExtractionID, &p.DocumentID, &p.CleanedText,
		&p.Title, &author, &p.PublishedAt, &p.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("extraction %s: %w", extractionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis row: %w", err)
	}
	p.Author = author.String
	return &p, nil
}

// ExtractionsWithoutSummary returns extractions that have no summary yet,
// joined with document metadata, oldest first. limit <= 0 means no limit.
func (s *Store) ExtractionsWithoutSummary(limit int) ([]PendingAnalysis, error) {
	q := builder.
		Select("e.id", "e.document_id", "e.cleaned_text", "d.title", "d.author", "d.published_at", "d.url").
		From("extractions e").
		Join("documents d ON d.id = e.document_id").
		Where("e.id NOT IN (SELECT extraction_id FROM summaries)").
		OrderBy("e.extracted_at")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis backlog query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis backlog: %w", err)
	}
	defer rows.Close()

	var pending []PendingAnalysis
	for rows.Next() {
		var p PendingAnalysis
		var author sql.NullString
		if err := rows.Scan(&p.ExtractionID, &p.DocumentID, &p.CleanedText,
			&p.Title, &author, &p.PublishedAt, &p.URL); err != nil {
			return nil, fmt.Errorf("failed to scan analysis backlog row: %w", err)
		}
		p.Author = author.String
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// AllPendingAnalysis returns every extraction joined with document metadata
// regardless of summary state. Used by reprocess runs.
func (s *Store) AllPendingAnalysis(limit int) ([]PendingAnalysis, error) {
	q := builder.
		Select("e.id", "e.document_id", "e.cleaned_text", "d.title", "d.author", "d.published_at", "d.url").
		From("extractions e").
		Join("documents d ON d.id = e.document_id").
		OrderBy("e.extracted_at")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	var pending []PendingAnalysis
	for rows.Next() {
		var p PendingAnalysis
		var author sql.NullString
		if err := rows.Scan(&p.ExtractionID, &p.DocumentID, &p.CleanedText,
			&p.Title, &author, &p.PublishedAt, &p.URL); err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		p.Author = author.String
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func scanExtraction(row rowScanner) (models.Extraction, error) {
	var e models.Extraction
	var sections string
	var embedding sql.NullString
	err := row.Scan(&e.ID, &e.DocumentID, &e.CleanedText, &sections, &e.WordCount,
		&e.ReadingTime, &e.Excerpt, &e.Language, &embedding, &e.ExtractedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan extraction: %w", err)
	}
	if sections != "" {
		if err := json.Unmarshal([]byte(sections), &e.Sections); err != nil {
			return e, fmt.Errorf("failed to decode sections: %w", err)
		}
	}
	if e.Sections == nil {
		e.Sections = []segment.Section{}
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &e.Embedding); err != nil {
			return e, fmt.Errorf("failed to decode embedding: %w", err)
		}
	}
	return e, nil
}

func encodeEmbedding(vector []float32) sql.NullString {
	if len(vector) == 0 {
		return sql.NullString{}
	}
	data, _ := json.Marshal(vector)
	return sql.NullString{String: string(data), Valid: true}
}
