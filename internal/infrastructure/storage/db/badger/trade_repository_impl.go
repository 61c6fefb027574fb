package dbbadger

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

type tradeRepositoryImpl struct {
	store *badgerhold.Store
}

// NewTradeRepositoryImpl returns a new badger TradeRepository implementation.
func NewTradeRepositoryImpl(store *badgerhold.Store) domain.TradeRepository {
	return &tradeRepositoryImpl{store}
}

func (r *tradeRepositoryImpl) AddTrade(
	_ context.Context, trade *domain.Trade,
) error {
	if err := r.store.Insert(trade.ID, *trade); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return domain.ErrTradeAlreadyExists
		}
		return err
	}
	return nil
}

func (r *tradeRepositoryImpl) GetTrade(
	_ context.Context, tradeID string,
) (*domain.Trade, error) {
	var trade domain.Trade
	if err := r.store.Get(tradeID, &trade); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (r *tradeRepositoryImpl) GetAllTrades(
	_ context.Context,
) ([]*domain.Trade, error) {
	return r.findTrades(nil)
}

func (r *tradeRepositoryImpl) GetPendingTrades(
	_ context.Context,
) ([]*domain.Trade, error) {
	query := badgerhold.Where("Phase").MatchFunc(
		func(ra *badgerhold.RecordAccess) (bool, error) {
			phase, ok := ra.Field().(domain.Phase)
			if !ok {
				return false, nil
			}
			return !phase.IsTerminal(), nil
		},
	)
	return r.findTrades(query)
}

func (r *tradeRepositoryImpl) GetTradesByOffer(
	_ context.Context, offerID string,
) ([]*domain.Trade, error) {
	query := badgerhold.Where("Offer.ID").Eq(offerID)
	return r.findTrades(query)
}

// UpdateTrade reads, updates and writes back the trade within the same
// badger transaction, nothing is written if updateFn fails.
func (r *tradeRepositoryImpl) UpdateTrade(
	_ context.Context,
	tradeID string,
	updateFn func(t *domain.Trade) (*domain.Trade, error),
) error {
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		var trade domain.Trade
		if err := r.store.TxGet(tx, tradeID, &trade); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.ErrTradeNotFound
			}
			return err
		}

		updated, err := updateFn(&trade)
		if err != nil {
			return err
		}
		return r.store.TxUpdate(tx, tradeID, *updated)
	})
}

func (r *tradeRepositoryImpl) findTrades(
	query *badgerhold.Query,
) ([]*domain.Trade, error) {
	var trades []domain.Trade
	if err := r.store.Find(&trades, query); err != nil {
		return nil, err
	}

	res := make([]*domain.Trade, 0, len(trades))
	for i := range trades {
		res = append(res, &trades[i])
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Timestamp.Created == res[j].Timestamp.Created {
			return res[i].ID < res[j].ID
		}
		return res[i].Timestamp.Created < res[j].Timestamp.Created
	})
	return res, nil
}
