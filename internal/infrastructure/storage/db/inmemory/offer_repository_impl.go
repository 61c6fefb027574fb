package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
)

type offerRepositoryImpl struct {
	store *offerInmemoryStore
}

// NewOfferRepositoryImpl returns a new inmemory OfferRepository implementation.
func NewOfferRepositoryImpl() domain.OfferRepository {
	return &offerRepositoryImpl{&offerInmemoryStore{
		offers: make(map[string]domain.Offer),
		locker: &sync.RWMutex{},
	}}
}

func (r *offerRepositoryImpl) AddOffer(_ context.Context, offer domain.Offer) error {
	r.store.locker.Lock()
	defer r.store.locker.Unlock()

	if _, ok := r.store.offers[offer.ID]; ok {
		return domain.ErrOfferAlreadyExists
	}
	r.store.offers[offer.ID] = offer.Clone()
	return nil
}

func (r *offerRepositoryImpl) GetOffer(
	_ context.Context, offerID string,
) (*domain.Offer, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	offer, ok := r.store.offers[offerID]
	if !ok {
		return nil, domain.ErrOfferNotFound
	}
	clone := offer.Clone()
	return &clone, nil
}

func (r *offerRepositoryImpl) GetAllOffers(_ context.Context) ([]domain.Offer, error) {
	r.store.locker.RLock()
	defer r.store.locker.RUnlock()

	offers := make([]domain.Offer, 0, len(r.store.offers))
	for _, offer := range r.store.offers {
		offers = append(offers, offer.Clone())
	}
	sort.SliceStable(offers, func(i, j int) bool {
		if offers[i].CreatedAt == offers[j].CreatedAt {
			return offers[i].ID < offers[j].ID
		}
		return offers[i].CreatedAt < offers[j].CreatedAt
	})
	return offers, nil
}
