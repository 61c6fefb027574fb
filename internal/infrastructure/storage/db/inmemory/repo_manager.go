package inmemory

import (
	"sync"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

type repoManager struct {
	tradeRepository domain.TradeRepository
	offerRepository domain.OfferRepository
}

// NewRepoManager returns a RepoManager that keeps everything in memory.
// Stored values are always copies, so that callers can't mutate the state
// of the repositories without going through UpdateTrade.
func NewRepoManager() ports.RepoManager {
	return &repoManager{
		tradeRepository: NewTradeRepositoryImpl(),
		offerRepository: NewOfferRepositoryImpl(),
	}
}

func (r *repoManager) TradeRepository() domain.TradeRepository {
	return r.tradeRepository
}

func (r *repoManager) OfferRepository() domain.OfferRepository {
	return r.offerRepository
}

func (r *repoManager) Close() {}

type tradeInmemoryStore struct {
	trades map[string]domain.Trade
	locker *sync.RWMutex
}

type offerInmemoryStore struct {
	offers map[string]domain.Offer
	locker *sync.RWMutex
}
