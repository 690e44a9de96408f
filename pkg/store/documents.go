package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"briefpipe/models"
)

const documentColumns = "id, source_id, url, title, author, published_at, raw_content, content_hash, metadata, fetched_at"

var documentColumnList = []string{
	"id", "source_id", "url", "title", "author", "published_at",
	"raw_content", "content_hash", "metadata", "fetched_at",
}

// InsertDocument stores a fetched article. Returns ErrDuplicate if a
// document with the same URL already exists.
func (s *Store) InsertDocument(doc *models.Document) error {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	query, args, err := builder.
		Insert("documents").
		Columns(documentColumnList...).
		Values(doc.ID, doc.SourceID, doc.URL, doc.Title, nullString(doc.Author),
			nullTime(doc.PublishedAt), doc.RawContent, doc.ContentHash, meta, doc.FetchedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build document insert: %w", err)
	}
	_, err = s.db.Exec(query, args...)
	return wrapInsertErr(err, "document")
}

// DocumentExists reports whether a document with this URL is already stored.
func (s *Store) DocumentExists(url string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM documents WHERE url = ?", url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return true, nil
}

// FindDocumentByHash returns the URL of a stored document carrying the same
// content fingerprint, or "" when none does. Used for informational
// duplicate-content reporting.
func (s *Store) FindDocumentByHash(hash string) (string, error) {
	if hash == "" {
		return "", nil
	}
	var url string
	err := s.db.QueryRow("SELECT url FROM documents WHERE content_hash = ? LIMIT 1", hash).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up content hash: %w", err)
	}
	return url, nil
}

// GetDocument returns the document with the given ID.
func (s *Store) GetDocument(id string) (*models.Document, error) {
	row := s.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DocumentsWithoutExtraction returns documents that have no extraction row
// yet, oldest fetched first. limit <= 0 means no limit.
func (s *Store) DocumentsWithoutExtraction(limit int) ([]models.Document, error) {
	q := builder.
		Select(documentColumnList...).
		From("documents").
		Where("id NOT IN (SELECT document_id FROM extractions)").
		OrderBy("fetched_at")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.queryDocuments(q)
}

// AllDocuments returns every stored document, oldest fetched first. Used by
// reprocess runs. limit <= 0 means no limit.
func (s *Store) AllDocuments(limit int) ([]models.Document, error) {
	q := builder.
		Select(documentColumnList...).
		From("documents").
		OrderBy("fetched_at")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return s.queryDocuments(q)
}

func (s *Store) queryDocuments(q sq.SelectBuilder) ([]models.Document, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build document query: %w", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row rowScanner) (models.Document, error) {
	var doc models.Document
	var author, meta sql.NullString
	var published sql.NullTime
	err := row.Scan(&doc.ID, &doc.SourceID, &doc.URL, &doc.Title, &author,
		&published, &doc.RawContent, &doc.ContentHash, &meta, &doc.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Author = author.String
	if published.Valid {
		t := published.Time
		doc.PublishedAt = &t
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
			return doc, fmt.Errorf("failed to decode document metadata: %w", err)
		}
	}
	return doc, nil
}

func encodeMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode document metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
