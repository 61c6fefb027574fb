package domain

import "context"

// TradeRepository is the abstraction for any kind of database intended to
// persist Trades. A trade is always saved as a whole, each update is an
// atomic save point.
type TradeRepository interface {
	// AddTrade persists a new trade, failing with ErrTradeAlreadyExists if a
	// trade with the same id is already stored.
	AddTrade(ctx context.Context, trade *Trade) error
	// GetTrade returns the trade with the given id or ErrTradeNotFound.
	GetTrade(ctx context.Context, tradeID string) (*Trade, error)
	// GetAllTrades returns all the trades stored in the repository.
	GetAllTrades(ctx context.Context) ([]*Trade, error)
	// GetPendingTrades returns the trades not in a terminal phase.
	GetPendingTrades(ctx context.Context) ([]*Trade, error)
	// GetTradesByOffer returns the trades originated from the given offer.
	GetTradesByOffer(ctx context.Context, offerID string) ([]*Trade, error)
	// UpdateTrade allows to commit multiple changes to the same trade in a
	// transactional way.
	UpdateTrade(
		ctx context.Context,
		tradeID string,
		updateFn func(t *Trade) (*Trade, error),
	) error
}

// OfferRepository persists the offers known to the daemon, both the local
// ones and those received from the offer book.
type OfferRepository interface {
	AddOffer(ctx context.Context, offer Offer) error
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
	GetAllOffers(ctx context.Context) ([]Offer, error)
}
