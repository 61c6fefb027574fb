package trade

import (
	"context"
	"fmt"

	"github.com/tdex-network/tdex-escrow/internal/core/application/protocol"
	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// Protocol is the part of the trade protocol used by the service.
type Protocol interface {
	OpenTrade(ctx context.Context, trade *domain.Trade) error
	Do(ctx context.Context, tradeID string, action protocol.UserAction) error
}

// Config holds the terms applied to the offers taken by the local node.
type Config struct {
	Self    domain.NodeAddress
	Network domain.Network
	// Arbitrator is assigned to the trades taken by this node.
	Arbitrator domain.MaybeAddress
	// TxFee is the network fee of the deposit transaction.
	TxFee uint64
	// TakerFeeBasisPoint is the fee charged to the taker, in basis points of
	// the trade amount.
	TakerFeeBasisPoint uint64
	// MandatoryCapabilities must be declared by the maker of a taken offer.
	MandatoryCapabilities []domain.Capability
}

func (c Config) validate() error {
	if c.Self.IsZero() {
		return fmt.Errorf("missing node address")
	}
	if c.Network == domain.NetworkUnspecified {
		return fmt.Errorf("missing network")
	}
	if c.TakerFeeBasisPoint >= 10000 {
		return fmt.Errorf("taker fee must be lower than 100%%")
	}
	return nil
}

// Filter selects the trades returned by ListTrades.
type Filter struct {
	PendingOnly bool
	OfferID     string
}

func paginate(trades []*domain.Trade, page *domain.Page) []*domain.Trade {
	if page == nil {
		return trades
	}
	start, end := page.Bounds(len(trades))
	return trades[start:end]
}
