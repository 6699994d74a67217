package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

// ContactIndex wraps a Bleve index with contact-specific operations.
//
// Thread safety: All public methods are safe for concurrent use.
// The mutex protects against index corruption during rebuild operations.
type ContactIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex // Protects index operations during rebuild
}

// Options configures the contact index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // Logger for operations (uses stderr if nil)
}

// mappingVersion is incremented whenever the index mapping changes.
// This triggers an automatic rebuild on startup when the version doesn't match.
const mappingVersion = "1"

// NewContactIndex creates or opens a contact search index.
// If an existing index is found, it opens it. Otherwise, creates a new one.
// If the existing index is corrupted or has an outdated mapping, it's removed and recreated.
func NewContactIndex(opts Options) (*ContactIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	indexPath := filepath.Join(opts.DataPath, "contacts.bleve")
	versionPath := filepath.Join(opts.DataPath, "contacts.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		if readErr != nil {
			// Version file missing but index exists - this is an old index
			logger.Info("contact index has no version file, will rebuild with current mapping",
				"new_version", mappingVersion,
			)
			needsRebuild = true
		} else if string(existingVersion) != mappingVersion {
			logger.Info("contact index mapping version changed, will rebuild",
				"old_version", string(existingVersion),
				"new_version", mappingVersion,
			)
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open existing index, will recreate",
				"path", indexPath,
				"error", err,
			)
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		indexMapping := buildIndexMapping()
		index, err = bleve.New(indexPath, indexMapping)
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0644); writeErr != nil {
			logger.Warn("failed to write contact index version file", "error", writeErr)
		}
		logger.Info("created new contact index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened existing contact index", "path", indexPath)
	}

	return &ContactIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *ContactIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexCard indexes a single saved card under an owner scope.
func (s *ContactIndex) IndexCard(scope domain.Scope, card *domain.Card) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := CardToDocument(scope, card)
	// Convert to map to ensure field names match the mapping (lowercase)
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexContacts replaces the indexed documents for a scope with the given
// list. Used after a session reconcile, when the in-memory list is
// authoritative: cards indexed earlier but absent from the list are removed
// in the same batch, so a diverged list never leaves stale documents behind.
func (s *ContactIndex) IndexContacts(scope domain.Scope, cards domain.ContactList) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, err := s.scopeDocumentIDs(scope)
	if err != nil {
		return fmt.Errorf("list scope documents: %w", err)
	}

	batch := s.index.NewBatch()
	for _, docID := range existing {
		batch.Delete(docID)
	}

	// A surviving card's index op overrides its delete within the batch
	for i := range cards {
		doc := CardToDocument(scope, &cards[i])
		if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
	}

	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// scopeDocumentIDs pages through every document ID owned by a scope.
// Caller must hold at least a read lock.
func (s *ContactIndex) scopeDocumentIDs(scope domain.Scope) ([]string, error) {
	ownerQuery := bleve.NewTermQuery(scope.String())
	ownerQuery.SetField("owner")

	const pageSize = 500

	var ids []string
	for offset := 0; ; offset += pageSize {
		req := bleve.NewSearchRequestOptions(ownerQuery, pageSize, offset, false)
		res, err := s.index.Search(req)
		if err != nil {
			return nil, err
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if offset+len(res.Hits) >= int(res.Total) || len(res.Hits) == 0 {
			return ids, nil
		}
	}
}

// DeleteCard removes a card from the index.
func (s *ContactIndex) DeleteCard(scope domain.Scope, cardID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(DocumentID(scope, cardID))
}

// DocumentCount returns the total number of indexed documents.
func (s *ContactIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops the existing index and creates a new one.
// Used for full reindex operations when schema changes or corruption occurs.
//
// IMPORTANT: This acquires an exclusive lock and blocks all other operations.
func (s *ContactIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}

	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	indexMapping := buildIndexMapping()
	index, err := bleve.New(s.path, indexMapping)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	s.index = index
	s.logger.Info("rebuilt contact index", "path", s.path)

	return nil
}
