package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	badgerstore "github.com/ternarybob/hoard/internal/storage/badger"
	"github.com/ternarybob/hoard/internal/storage/dualwrite"
	"github.com/ternarybob/hoard/internal/storage/sqlite"
)

// NewStorageProvider builds the database provider stack from config:
// SQLite primary, optionally wrapped with a Badger replica behind the
// dual-write coordinator. The Badger connection is shared with the
// durable queue, so it is passed in rather than opened here.
func NewStorageProvider(logger arbor.ILogger, config *common.Config, badgerDB *badgerstore.BadgerDB) (interfaces.DatabaseStorageProvider, error) {
	primary, err := sqlite.NewProvider(logger, &config.Storage.SQLite)
	if err != nil {
		return nil, err
	}

	if !config.Storage.Replica.Enabled {
		return primary, nil
	}

	replica := badgerstore.NewProviderWithDB(badgerDB, logger)
	mode := dualwrite.ParseFailureMode(config.Storage.Replica.FailureMode)

	var journal *dualwrite.RetryJournal
	if mode == dualwrite.QueueRetry {
		journal = dualwrite.NewRetryJournal(badgerDB.Store())
	}

	logger.Info().
		Str("primary", primary.ProviderName()).
		Str("replica", replica.ProviderName()).
		Str("failure_mode", string(mode)).
		Msg("Dual-write storage enabled")

	return dualwrite.NewCoordinator(primary, replica, mode, journal, logger), nil
}
