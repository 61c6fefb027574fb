package dbbadger

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

type repoManager struct {
	tradeDb *badgerhold.Store
	offerDb *badgerhold.Store

	tradeRepository domain.TradeRepository
	offerRepository domain.OfferRepository
}

// NewRepoManager opens (or creates if not exists) the badger stores for
// trades and offers under the given base directory. An empty directory
// makes the stores live in memory only.
func NewRepoManager(
	baseDbDir string, logger badger.Logger,
) (ports.RepoManager, error) {
	var tradeDir, offerDir string
	if len(baseDbDir) > 0 {
		tradeDir = filepath.Join(baseDbDir, "trades")
		offerDir = filepath.Join(baseDbDir, "offers")
	}

	tradeDb, err := createDb(tradeDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening trades db: %w", err)
	}
	offerDb, err := createDb(offerDir, logger)
	if err != nil {
		tradeDb.Close()
		return nil, fmt.Errorf("opening offers db: %w", err)
	}

	return &repoManager{
		tradeDb:         tradeDb,
		offerDb:         offerDb,
		tradeRepository: NewTradeRepositoryImpl(tradeDb),
		offerRepository: NewOfferRepositoryImpl(offerDb),
	}, nil
}

func (r *repoManager) TradeRepository() domain.TradeRepository {
	return r.tradeRepository
}

func (r *repoManager) OfferRepository() domain.OfferRepository {
	return r.offerRepository
}

func (r *repoManager) Close() {
	if err := r.tradeDb.Close(); err != nil {
		log.WithError(err).Warn("failed to close trades db")
	}
	if err := r.offerDb.Close(); err != nil {
		log.WithError(err).Warn("failed to close offers db")
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
