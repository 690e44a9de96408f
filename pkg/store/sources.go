package store

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"briefpipe/models"
)

// InsertSource registers a feed. Returns ErrDuplicate if the feed URL is
// already registered.
func (s *Store) InsertSource(src *models.Source) error {
	query, args, err := builder.
		Insert("sources").
		Columns("id", "name", "feed_url", "active", "cadence", "created_at").
		Values(src.ID, src.Name, src.FeedURL, src.Active, src.Cadence, src.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build source insert: %w", err)
	}
	_, err = s.db.Exec(query, args...)
	return wrapInsertErr(err, "source")
}

// ListSources returns sources ordered by name. With activeOnly, disabled
// sources are filtered out.
func (s *Store) ListSources(activeOnly bool) ([]models.Source, error) {
	q := builder.
		Select("id", "name", "feed_url", "active", "cadence", "created_at").
		From("sources").
		OrderBy("name")
	if activeOnly {
		q = q.Where(sq.Eq{"active": true})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build source query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// GetSource returns the source with the given ID.
func (s *Store) GetSource(id string) (*models.Source, error) {
	return s.getSourceWhere(sq.Eq{"id": id})
}

// GetSourceByFeedURL returns the source registered for feedURL.
func (s *Store) GetSourceByFeedURL(feedURL string) (*models.Source, error) {
	return s.getSourceWhere(sq.Eq{"feed_url": feedURL})
}

func (s *Store) getSourceWhere(cond sq.Eq) (*models.Source, error) {
	query, args, err := builder.
		Select("id", "name", "feed_url", "active", "cadence", "created_at").
		From("sources").
		Where(cond).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build source query: %w", err)
	}

	src, err := scanSource(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// SetSourceActive enables or disables a source. Disabled sources are
// skipped by ingest.
func (s *Store) SetSourceActive(id string, active bool) error {
	query, args, err := builder.
		Update("sources").
		Set("active", active).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build source update: %w", err)
	}
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (models.Source, error) {
	var src models.Source
	var cadence sql.NullString
	err := row.Scan(&src.ID, &src.Name, &src.FeedURL, &src.Active, &cadence, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return src, err
		}
		return src, fmt.Errorf("failed to scan source: %w", err)
	}
	src.Cadence = cadence.String
	return src, nil
}
