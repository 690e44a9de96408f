// Package sources manages the feed subscription list.
package sources

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"briefpipe/internal/common"
	"briefpipe/models"
	"briefpipe/pkg/store"
)

type Manager struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(st *store.Store, logger *slog.Logger) *Manager {
	return &Manager{store: st, logger: logger, now: time.Now}
}

// Add registers a feed. The feed URL is sanitized and validated before
// insert; a URL already registered returns store.ErrDuplicate.
func (m *Manager) Add(name, feedURL, cadence string) (*models.Source, error) {
	feedURL = common.SanitizeURL(feedURL)
	if !common.ValidURL(feedURL) {
		return nil, fmt.Errorf("invalid feed URL: %q", feedURL)
	}
	if name == "" {
		return nil, fmt.Errorf("source name cannot be empty")
	}

	src := &models.Source{
		ID:        uuid.NewString(),
		Name:      name,
		FeedURL:   feedURL,
		Active:    true,
		Cadence:   cadence,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.InsertSource(src); err != nil {
		return nil, err
	}
	m.logger.Info("Added source", "name", name, "feed_url", feedURL)
	return src, nil
}

// List returns registered sources.
func (m *Manager) List(activeOnly bool) ([]models.Source, error) {
	return m.store.ListSources(activeOnly)
}

// SetActive enables or disables a source by ID.
func (m *Manager) SetActive(id string, active bool) error {
	if err := m.store.SetSourceActive(id, active); err != nil {
		return err
	}
	m.logger.Info("Updated source", "id", id, "active", active)
	return nil
}

// importFile is the YAML shape accepted by Import.
type importFile struct {
	Sources []struct {
		Name    string `yaml:"name"`
		FeedURL string `yaml:"feed_url"`
		Cadence string `yaml:"cadence"`
	} `yaml:"sources"`
}

// ImportResult summarizes an Import run.
type ImportResult struct {
	Added   int
	Skipped int
	Failed  int
}

// Import registers every source listed in a YAML file. Already-registered
// feeds are skipped; invalid entries are counted and logged but do not stop
// the import.
func (m *Manager) Import(path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	var file importFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", path, err)
	}

	result := &ImportResult{}
	for _, entry := range file.Sources {
		_, err := m.Add(entry.Name, entry.FeedURL, entry.Cadence)
		switch {
		case err == nil:
			result.Added++
		case isDuplicate(err):
			m.logger.Info("Source already registered, skipping", "feed_url", entry.FeedURL)
			result.Skipped++
		default:
			m.logger.Warn("Failed to import source", "name", entry.Name, "error", err)
			result.Failed++
		}
	}
	return result, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, store.ErrDuplicate)
}
