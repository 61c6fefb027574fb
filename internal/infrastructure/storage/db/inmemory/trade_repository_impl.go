package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

type tradeRepositoryImpl struct {
	store *tradeInmemoryStore
}

// NewTradeRepositoryImpl returns a new inmemory TradeRepository implementation.
func NewTradeRepositoryImpl() domain.TradeRepository {
	return &tradeRepositoryImpl{&tradeInmemoryStore{
		trades: make(map[string]domain.Trade),
		locker: &sync.RWMutex{},
	}}
}

func (r *tradeRepositoryImpl) AddTrade(
	_ context.Context, trade *domain.Trade,
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.trades[trade.ID]; ok {
		return domain.ErrTradeAlreadyExists
	}
	r.store.trades[trade.ID] = *trade.Clone()
	return nil
}

func (r *tradeRepositoryImpl) GetTrade(
	_ context.Context, tradeID string,
) (*domain.Trade, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	trade, ok := r.store.trades[tradeID]
	if !ok {
		return nil, domain.ErrTradeNotFound
	}
	return trade.Clone(), nil
}

func (r *tradeRepositoryImpl) GetAllTrades(
	_ context.Context,
) ([]*domain.Trade, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	return r.findTrades(func(domain.Trade) bool { return true }), nil
}

func (r *tradeRepositoryImpl) GetPendingTrades(
	_ context.Context,
) ([]*domain.Trade, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	return r.findTrades(func(t domain.Trade) bool {
		return !t.Phase.IsTerminal()
	}), nil
}

func (r *tradeRepositoryImpl) GetTradesByOffer(
	_ context.Context, offerID string,
) ([]*domain.Trade, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	return r.findTrades(func(t domain.Trade) bool {
		return t.Offer.ID == offerID
	}), nil
}

func (r *tradeRepositoryImpl) UpdateTrade(
	_ context.Context,
	tradeID string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	current, ok := r.store.trades[tradeID]
	if !ok {
		return domain.ErrTradeNotFound
	}

	updated, err := updateFn(current.Clone())
	if err != nil {
		return err
	}
	r.store.trades[tradeID] = *updated.Clone()
	return nil
}

// findTrades returns the matching trades sorted by creation time. The caller
// must hold the lock.
func (r *tradeRepositoryImpl) findTrades(
	match func(domain.Trade) bool,
) []*domain.Trade {
	trades := make([]*domain.Trade, 0)
	for _, trade := range r.store.trades {
		if match(trade) {
			trades = append(trades, trade.Clone())
		}
	}
	sortTrades(trades)
	return trades
}

func sortTrades(trades []*domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Timestamp.Created == trades[j].Timestamp.Created {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].Timestamp.Created < trades[j].Timestamp.Created
	})
}
