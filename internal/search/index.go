package search

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/tellmeastory/zine-server/internal/domain"
)

const batchSize = 500

// SearchIndex is an in-memory Bleve index over the current catalog.
//
// Thread safety: all public methods are safe for concurrent use. Rebuild builds
// a fresh index off to the side and swaps it in, so searches never see a
// half-indexed catalog.
type SearchIndex struct {
	index   bleve.Index
	logger  *slog.Logger
	version string
	mu      sync.RWMutex
}

// NewSearchIndex creates an empty index.
func NewSearchIndex(logger *slog.Logger) (*SearchIndex, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &SearchIndex{index: index, logger: logger}, nil
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// Rebuild replaces the indexed content with catalog c.
func (s *SearchIndex) Rebuild(c *domain.Catalog) error {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	docs := CatalogDocuments(c)
	if err := indexDocuments(index, docs); err != nil {
		_ = index.Close()
		return err
	}

	s.mu.Lock()
	old := s.index
	s.index = index
	if c != nil {
		s.version = c.Version
	}
	s.mu.Unlock()

	if err := old.Close(); err != nil {
		s.logger.Warn("failed to close previous search index", "error", err)
	}
	s.logger.Info("rebuilt search index", "documents", len(docs), "catalog_version", s.Version())
	return nil
}

// Version returns the catalog version of the indexed content.
func (s *SearchIndex) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// DocumentCount returns the total number of indexed documents.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

func indexDocuments(index bleve.Index, docs []*SearchDocument) error {
	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))

		batch := index.NewBatch()
		for _, doc := range docs[i:end] {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}
