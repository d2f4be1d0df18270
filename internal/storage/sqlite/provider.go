package sqlite

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
)

// Provider implements interfaces.DatabaseStorageProvider on SQLite.
// This is the primary, authoritative store.
type Provider struct {
	*ItemStorage
	*ArtifactStorage
	*MetadataStorage

	db     *SQLiteDB
	logger arbor.ILogger
}

// NewProvider creates a new SQLite storage provider
func NewProvider(logger arbor.ILogger, config *common.SQLiteConfig) (*Provider, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		ItemStorage:     NewItemStorage(db, logger),
		ArtifactStorage: NewArtifactStorage(db, logger),
		MetadataStorage: NewMetadataStorage(db, logger),
		db:              db,
		logger:          logger,
	}, nil
}

func (p *Provider) ProviderName() string { return "sqlite" }

func (p *Provider) SupportsTransactions() bool { return true }

func (p *Provider) SupportsFullTextSearch() bool { return true }

// DB returns the underlying database handle.
func (p *Provider) DB() *SQLiteDB {
	return p.db
}

// Close closes the database connection
func (p *Provider) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

var _ interfaces.DatabaseStorageProvider = (*Provider)(nil)
