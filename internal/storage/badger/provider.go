package badger

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// Provider implements interfaces.DatabaseStorageProvider for Badger.
// Used as the replica document store: it holds a filtered, best-effort
// copy of items and artifacts and is never treated as authoritative.
// Metadata text, summaries and other large blobs are not replicated, so
// the MetadataStorage methods report not-found.
type Provider struct {
	*ItemStorage
	*ArtifactStorage

	db     *BadgerDB
	ownsDB bool
	logger arbor.ILogger
}

// NewProvider creates a new Badger storage provider
func NewProvider(logger arbor.ILogger, config *common.BadgerConfig) (*Provider, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	p := NewProviderWithDB(db, logger)
	p.ownsDB = true
	return p, nil
}

// NewProviderWithDB wraps an already-open Badger connection. Used when the
// replica shares the database with the durable queue.
func NewProviderWithDB(db *BadgerDB, logger arbor.ILogger) *Provider {
	return &Provider{
		ItemStorage:     NewItemStorage(db, logger),
		ArtifactStorage: NewArtifactStorage(db, logger),
		db:              db,
		logger:          logger,
	}
}

func (p *Provider) ProviderName() string { return "badger" }

func (p *Provider) SupportsTransactions() bool { return false }

func (p *Provider) SupportsFullTextSearch() bool { return false }

// SaveMetadata is a no-op: metadata text is primary-only by design of the
// replication allow-list.
func (p *Provider) SaveMetadata(ctx context.Context, meta *models.ItemMetadata) error {
	return nil
}

func (p *Provider) GetMetadata(ctx context.Context, itemID string) (*models.ItemMetadata, error) {
	return nil, interfaces.ErrNotFound
}

// SaveSummary is a no-op: summaries are primary-only.
func (p *Provider) SaveSummary(ctx context.Context, summary *models.ItemSummary) error {
	return nil
}

func (p *Provider) GetSummary(ctx context.Context, itemID string) (*models.ItemSummary, error) {
	return nil, interfaces.ErrNotFound
}

// DB returns the underlying database connection
func (p *Provider) DB() *BadgerDB {
	return p.db
}

// Close closes the database connection when this provider opened it.
// A shared connection is left open for its other users.
func (p *Provider) Close() error {
	if p.ownsDB && p.db != nil {
		return p.db.Close()
	}
	return nil
}

var _ interfaces.DatabaseStorageProvider = (*Provider)(nil)
