package ports

import (
	"context"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

// OfferBook gives access to the offers published in the network.
type OfferBook interface {
	GetOffer(ctx context.Context, offerID string) (*domain.Offer, error)
	AddOffer(ctx context.Context, offer domain.Offer) error
	ListOffers(ctx context.Context) ([]domain.Offer, error)
}
